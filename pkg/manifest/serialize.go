// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"sort"
	"strings"

	"plumb-cli/pkg/types"
)

// Serialize renders the manifest back to TOML text. Output is deterministic:
// dependency aliases and export domains are emitted in sorted order, and
// Parse(Serialize(m)) reproduces m field for field.
func Serialize(m *Manifest) string {
	var sb strings.Builder

	sb.WriteString("[package]\n")
	fmt.Fprintf(&sb, "address = %q\n", m.Address)
	fmt.Fprintf(&sb, "version = %q\n", m.Version)
	fmt.Fprintf(&sb, "description = %q\n", m.Description)
	if m.DisplayName != "" {
		fmt.Fprintf(&sb, "display_name = %q\n", m.DisplayName)
	}
	if m.Authors != nil {
		fmt.Fprintf(&sb, "authors = %s\n", tomlStringArray(m.Authors))
	}
	if m.License != "" {
		fmt.Fprintf(&sb, "license = %q\n", m.License)
	}
	if m.MthdsVersion != "" {
		fmt.Fprintf(&sb, "mthds_version = %q\n", m.MthdsVersion)
	}
	if m.MainPipe != "" {
		fmt.Fprintf(&sb, "main_pipe = %q\n", m.MainPipe)
	}

	for _, alias := range sortedAliases(m.Dependencies) {
		dep := m.Dependencies[alias]
		fmt.Fprintf(&sb, "\n[dependencies.%s]\n", alias)
		if dep.IsLocal() {
			fmt.Fprintf(&sb, "path = %q\n", dep.LocalPath)
			continue
		}
		fmt.Fprintf(&sb, "address = %q\n", dep.Address)
		fmt.Fprintf(&sb, "version = %q\n", dep.VersionConstraint)
	}

	for _, domain := range sortedDomains(m.Exports) {
		export := m.Exports[domain]
		fmt.Fprintf(&sb, "\n[exports.%s]\n", domain)
		pipes := make([]string, 0, len(export.Pipes))
		for _, p := range export.Pipes {
			pipes = append(pipes, string(p))
		}
		fmt.Fprintf(&sb, "pipes = %s\n", tomlStringArray(pipes))
	}

	return sb.String()
}

func sortedAliases(deps map[types.DependencyAlias]Dependency) []types.DependencyAlias {
	aliases := make([]types.DependencyAlias, 0, len(deps))
	for alias := range deps {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i] < aliases[j] })
	return aliases
}

func sortedDomains(exports map[types.DomainPath]Export) []types.DomainPath {
	domains := make([]types.DomainPath, 0, len(exports))
	for domain := range exports {
		domains = append(domains, domain)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
	return domains
}

func tomlStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
