// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"plumb-cli/pkg/semver"
	"plumb-cli/pkg/types"
)

// manifestDoc is the raw decoded table form. Struct sections are decoded
// strictly (unknown keys are reported); the exports tree is decoded as nested
// maps and shape-checked during flattening.
type manifestDoc struct {
	Package      packageTable               `toml:"package"`
	Dependencies map[string]dependencyTable `toml:"dependencies"`
	Exports      map[string]any             `toml:"exports"`
}

type packageTable struct {
	Address      string   `toml:"address"`
	Version      string   `toml:"version"`
	Description  string   `toml:"description"`
	DisplayName  string   `toml:"display_name"`
	Authors      []string `toml:"authors"`
	License      string   `toml:"license"`
	MthdsVersion string   `toml:"mthds_version"`
	MainPipe     string   `toml:"main_pipe"`
}

type dependencyTable struct {
	Address string `toml:"address"`
	Version string `toml:"version"`
	Path    string `toml:"path"`
}

// Parse parses and validates manifest text under the given schema variant.
// Structural failures return a *ParseError, semantic failures a
// *ValidationError; in both cases the manifest result is nil — a failed parse
// never yields a partial manifest.
func Parse(text string, variant Variant) (*Manifest, error) {
	var doc manifestDoc
	structural := decodeStrict(text, &doc)

	if variant == Declarative && doc.Dependencies != nil {
		structural = append(structural, ValidationIssue{
			Section: "dependencies",
			Message: "dependency tables are not accepted by the declarative schema",
		})
	}

	exports, exportIssues := flattenExports(doc.Exports)
	structural = append(structural, exportIssues...)

	if len(structural) > 0 {
		return nil, &ParseError{Issues: structural}
	}

	m := buildManifest(doc, exports)
	if issues := validate(m); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return m, nil
}

// decodeStrict decodes TOML with the closed schema: any unknown top-level
// section, or unknown key inside [package] or a dependency table, is an
// issue; nothing is silently ignored.
func decodeStrict(text string, doc *manifestDoc) []ValidationIssue {
	dec := toml.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	err := dec.Decode(doc)
	if err == nil {
		return nil
	}

	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		issues := make([]ValidationIssue, 0, len(strict.Errors))
		for _, de := range strict.Errors {
			issues = append(issues, ValidationIssue{
				Section: strings.Join([]string(de.Key()), "."),
				Message: "unrecognized key",
			})
		}
		return issues
	}

	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return []ValidationIssue{{
			Section: strings.Join([]string(decodeErr.Key()), "."),
			Message: fmt.Sprintf("invalid TOML at line %d, column %d: %s", row, col, decodeErr.Error()),
		}}
	}

	return []ValidationIssue{{Message: fmt.Sprintf("invalid TOML: %v", err)}}
}

// flattenExports converts the hierarchical [exports.<domain>[.<sub>...]]
// tree into dotted domain paths, shape-checking on the way: a table may hold
// a "pipes" string array plus nested sub-domain tables, nothing else.
func flattenExports(tree map[string]any) (map[types.DomainPath]Export, []ValidationIssue) {
	if tree == nil {
		return nil, nil
	}
	out := make(map[types.DomainPath]Export)
	var issues []ValidationIssue
	flattenExportsInto("", tree, out, &issues)
	if len(out) == 0 {
		out = nil
	}
	return out, issues
}

func flattenExportsInto(prefix string, node map[string]any, out map[types.DomainPath]Export, issues *[]ValidationIssue) {
	section := "exports"
	if prefix != "" {
		section = "exports." + prefix
	}

	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := node[key]
		if key == "pipes" {
			if prefix == "" {
				*issues = append(*issues, ValidationIssue{
					Section: section, Field: "pipes",
					Message: "pipes must be declared under a domain",
				})
				continue
			}
			pipes, ok := stringArray(value)
			if !ok {
				*issues = append(*issues, ValidationIssue{
					Section: section, Field: "pipes",
					Message: "must be an array of strings",
				})
				continue
			}
			export := Export{Pipes: make([]types.PipeName, 0, len(pipes))}
			for _, p := range pipes {
				export.Pipes = append(export.Pipes, types.PipeName(p))
			}
			out[types.DomainPath(prefix)] = export
			continue
		}

		child, ok := value.(map[string]any)
		if !ok {
			*issues = append(*issues, ValidationIssue{
				Section: section, Field: key,
				Message: "only a pipes array or nested domain tables are accepted",
			})
			continue
		}
		childPrefix := key
		if prefix != "" {
			childPrefix = prefix + "." + key
		}
		flattenExportsInto(childPrefix, child, out, issues)
	}
}

func stringArray(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func buildManifest(doc manifestDoc, exports map[types.DomainPath]Export) *Manifest {
	m := &Manifest{
		Address:      types.Address(doc.Package.Address),
		Version:      doc.Package.Version,
		Description:  doc.Package.Description,
		DisplayName:  doc.Package.DisplayName,
		Authors:      doc.Package.Authors,
		License:      doc.Package.License,
		MthdsVersion: doc.Package.MthdsVersion,
		MainPipe:     types.PipeName(doc.Package.MainPipe),
		Exports:      exports,
	}
	if len(doc.Dependencies) > 0 {
		m.Dependencies = make(map[types.DependencyAlias]Dependency, len(doc.Dependencies))
		for alias, dep := range doc.Dependencies {
			m.Dependencies[types.DependencyAlias(alias)] = Dependency{
				Alias:             types.DependencyAlias(alias),
				Address:           types.Address(dep.Address),
				VersionConstraint: dep.Version,
				LocalPath:         dep.Path,
			}
		}
	}
	return m
}

// validate is the semantic pass. It assumes a structurally valid document and
// returns every field-level problem found.
func validate(m *Manifest) []ValidationIssue {
	var issues []ValidationIssue
	add := func(section, field, message string) {
		issues = append(issues, ValidationIssue{Section: section, Field: field, Message: message})
	}

	if err := m.Address.Validate(); err != nil {
		add("package", "address", err.Error())
	}
	if !semver.IsValid(m.Version) {
		add("package", "version", fmt.Sprintf("%q is not a valid semantic version", m.Version))
	}
	if strings.TrimSpace(m.Description) == "" {
		add("package", "description", "must not be empty")
	}
	for i, author := range m.Authors {
		if strings.TrimSpace(author) == "" {
			add("package", "authors", fmt.Sprintf("entry %d must not be blank", i))
		}
	}
	if m.DisplayName != "" {
		if strings.TrimSpace(m.DisplayName) == "" {
			add("package", "display_name", "must not be blank")
		}
		if len(m.DisplayName) > MaxDisplayNameLength {
			add("package", "display_name", fmt.Sprintf("exceeds %d characters", MaxDisplayNameLength))
		}
	}
	if m.MthdsVersion != "" && !semver.IsValid(m.MthdsVersion) {
		add("package", "mthds_version", fmt.Sprintf("%q is not a valid semantic version", m.MthdsVersion))
	}
	if m.MainPipe != "" {
		if err := m.MainPipe.Validate(); err != nil {
			add("package", "main_pipe", err.Error())
		}
	}

	for alias, dep := range m.Dependencies {
		section := "dependencies." + string(alias)
		if err := alias.Validate(); err != nil {
			add(section, "", err.Error())
		}
		issues = append(issues, validateDependency(section, dep)...)
	}

	for domain, export := range m.Exports {
		section := "exports." + string(domain)
		if err := domain.Validate(); err != nil {
			add(section, "", err.Error())
		} else if err := domain.CheckReserved(); err != nil {
			add(section, "", err.Error())
		}
		for _, pipe := range export.Pipes {
			if err := pipe.Validate(); err != nil {
				add(section, "pipes", err.Error())
			}
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Section != issues[j].Section {
			return issues[i].Section < issues[j].Section
		}
		return issues[i].Field < issues[j].Field
	})
	return issues
}

func validateDependency(section string, dep Dependency) []ValidationIssue {
	var issues []ValidationIssue
	add := func(field, message string) {
		issues = append(issues, ValidationIssue{Section: section, Field: field, Message: message})
	}

	local := dep.LocalPath != ""
	remote := dep.Address != "" || dep.VersionConstraint != ""

	switch {
	case local && remote:
		add("", "declares both path and address/version; exactly one form is allowed")
	case !local && !remote:
		add("", "declares neither path nor address+version")
	case local:
		if len(dep.LocalPath) > MaxLocalPathLength {
			add("path", fmt.Sprintf("too long (%d chars, max %d)", len(dep.LocalPath), MaxLocalPathLength))
		}
		clean := filepath.Clean(dep.LocalPath)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			add("path", "path traversal or absolute paths are not allowed")
		}
	default:
		if dep.Address == "" {
			add("address", "required for remote dependencies")
		} else if err := dep.Address.Validate(); err != nil {
			add("address", err.Error())
		}
		if dep.VersionConstraint == "" {
			add("version", "required for remote dependencies")
		} else if !semver.IsValidConstraint(dep.VersionConstraint) {
			add("version", fmt.Sprintf("%q is not a valid version constraint", dep.VersionConstraint))
		}
	}
	return issues
}
