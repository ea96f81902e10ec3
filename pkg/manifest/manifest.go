// SPDX-License-Identifier: MPL-2.0

// Package manifest parses, validates, and serializes plumb.toml package
// manifests. Parsing runs two composable passes over one decoded table form:
// a structural pass enforcing the closed schema (unknown sections or keys are
// never silently ignored) and a semantic pass validating field values. Both
// passes collect every problem they find instead of stopping at the first;
// a failed parse never returns a partial manifest.
package manifest

import (
	"fmt"
	"strings"

	"plumb-cli/pkg/types"
)

// ManifestFileName is the name of the package manifest file.
const ManifestFileName = "plumb.toml"

// MaxDisplayNameLength caps the optional human-readable package name.
const MaxDisplayNameLength = 128

// MaxLocalPathLength is the maximum allowed length for local dependency paths.
const MaxLocalPathLength = 4096

var (
	// ErrManifest is the root sentinel for manifest failures.
	ErrManifest = fmt.Errorf("%w: manifest", types.Err)

	// ErrParse is the sentinel wrapped by ParseError (structural failures).
	ErrParse = fmt.Errorf("%w: parse", ErrManifest)

	// ErrValidation is the sentinel wrapped by ValidationError (semantic failures).
	ErrValidation = fmt.Errorf("%w: validation", ErrManifest)
)

type (
	// Variant selects which manifest schema is accepted. Two variants coexist
	// in the ecosystem: the declarative form used inside published packages,
	// which carries no dependency tables, and the full form used at a
	// consumer's package root. Neither is canonical; callers state which one
	// they expect.
	Variant int

	// Manifest is the flat typed form of a plumb.toml file. A Manifest is
	// immutable once parsed: no method mutates it, and callers must not.
	Manifest struct {
		// Address is the globally unique "<hostname>/<path>" source identifier.
		Address types.Address

		// Version is the package's own concrete semantic version.
		Version string

		// Description summarizes the package. Required, non-empty.
		Description string

		// DisplayName is an optional human-readable name (max 128 chars).
		DisplayName string

		// Authors lists the package authors.
		Authors []string

		// License is an optional license identifier.
		License string

		// MthdsVersion optionally pins the pipeline-methods format version.
		MthdsVersion string

		// MainPipe is the package's optional default pipe.
		MainPipe types.PipeName

		// Dependencies maps local aliases to dependency declarations.
		// Only populated under the WithDependencies variant.
		Dependencies map[types.DependencyAlias]Dependency

		// Exports maps flattened dotted domain paths to their visible pipes.
		Exports map[types.DomainPath]Export
	}

	// Dependency declares a requirement on another package. Exactly one of
	// LocalPath or Address+VersionConstraint is set: local dependencies
	// resolve by filesystem path and are never recursed into; remote
	// dependencies resolve via VCS and cache and are walked transitively.
	Dependency struct {
		// Alias is the manifest-local name for this dependency.
		Alias types.DependencyAlias

		// Address is the remote source identifier (remote dependencies only).
		Address types.Address

		// VersionConstraint is the semver constraint (remote dependencies only).
		VersionConstraint string

		// LocalPath points at a package directory relative to the dependent's
		// root (local dependencies only).
		LocalPath string
	}

	// Export is the declared visible-pipe list of one domain.
	Export struct {
		// Pipes are the pipe names this domain exposes to other domains.
		Pipes []types.PipeName
	}

	// ValidationIssue is a single structural or semantic problem found in a
	// manifest. Issues are collected and reported as a batch; they are not
	// thrown one at a time.
	ValidationIssue struct {
		// Section locates the issue ("package", "dependencies.etl", "exports.api").
		Section string
		// Field names the offending key within the section (optional).
		Field string
		// Message describes the specific problem.
		Message string
	}

	// ParseError reports structural failures: malformed TOML, unknown
	// sections, unknown keys, or a schema variant mismatch.
	ParseError struct {
		Issues []ValidationIssue
	}

	// ValidationError reports semantic failures over a structurally valid
	// document.
	ValidationError struct {
		Issues []ValidationIssue
	}
)

const (
	// Declarative accepts only [package] and [exports] sections; a
	// [dependencies] section is a structural error.
	Declarative Variant = iota

	// WithDependencies additionally accepts [dependencies.<alias>] tables.
	WithDependencies
)

// IsLocal reports whether the dependency resolves by filesystem path.
func (d Dependency) IsLocal() bool { return d.LocalPath != "" }

// Error implements the error interface for ValidationIssue.
func (i ValidationIssue) Error() string {
	if i.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Section, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Section, i.Message)
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest parse failed: %s", joinIssues(e.Issues))
}

// Unwrap returns ErrParse so callers can use errors.Is for programmatic detection.
func (e *ParseError) Unwrap() error { return ErrParse }

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation failed: %s", joinIssues(e.Issues))
}

// Unwrap returns ErrValidation so callers can use errors.Is for programmatic detection.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func joinIssues(issues []ValidationIssue) string {
	msgs := make([]string, 0, len(issues))
	for _, i := range issues {
		msgs = append(msgs, i.Error())
	}
	return strings.Join(msgs, "; ")
}
