// SPDX-License-Identifier: MPL-2.0

// Package visibility enforces export rules between pipeline domains. Checks
// are pure: given a manifest and the bundles' reference metadata they return
// every violation found, never stopping at the first. A nil manifest, or one
// declaring no exports, means unrestricted visibility.
package visibility

import (
	"fmt"
	"sort"
	"strings"

	"plumb-cli/pkg/manifest"
	"plumb-cli/pkg/types"
)

var (
	// ErrVisibility is the root sentinel for visibility violations.
	ErrVisibility = fmt.Errorf("%w: visibility", types.Err)

	// ErrQualifiedRef marks a syntactically malformed pipe reference.
	ErrQualifiedRef = fmt.Errorf("%w: qualified reference", types.Err)
)

type (
	// Ref is a parsed pipe reference. Bare references carry only LocalCode;
	// qualified references add a Domain; cross-package references add an
	// Alias.
	Ref struct {
		// Alias is the dependency alias of a cross-package reference
		// ("alias->domain.pipe"). Empty for in-package references.
		Alias types.DependencyAlias

		// Domain is the target domain of a qualified reference. Empty for
		// bare references.
		Domain types.DomainPath

		// LocalCode is the pipe name within the target domain.
		LocalCode types.PipeName
	}

	// Bundle is the visibility-relevant metadata of one pipe bundle.
	Bundle struct {
		// Domain is the bundle's own domain.
		Domain types.DomainPath

		// MainPipe is the domain's default pipe, implicitly exported.
		MainPipe types.PipeName

		// PipeReferences are the raw references the bundle's pipes make.
		PipeReferences []string
	}

	// Violation is one disallowed reference. A pure value, never persisted.
	Violation struct {
		PipeRef      string
		SourceDomain types.DomainPath
		TargetDomain types.DomainPath
		Context      string
		Message      string
	}

	// QualifiedRefError reports a reference that does not parse.
	QualifiedRefError struct {
		Raw    string
		Reason string
	}
)

// Error implements the error interface.
func (e *QualifiedRefError) Error() string {
	return fmt.Sprintf("malformed pipe reference %q: %s", e.Raw, e.Reason)
}

// Unwrap returns ErrQualifiedRef so callers can use errors.Is for
// programmatic detection.
func (e *QualifiedRefError) Unwrap() error { return ErrQualifiedRef }

// String renders the violation as a user-facing message.
func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s -> %s): %s", v.Context, v.PipeRef, v.SourceDomain, v.TargetDomain, v.Message)
}

// ParseRef parses a raw pipe reference into its tagged form. Accepted shapes
// are "pipe" (bare), "domain.path.pipe" (qualified, last segment is the
// pipe), and "alias->domain.path.pipe" (cross-package).
func ParseRef(raw string) (Ref, error) {
	rest := raw
	var ref Ref

	if alias, tail, found := strings.Cut(rest, "->"); found {
		alias = strings.TrimSpace(alias)
		tail = strings.TrimSpace(tail)
		a := types.DependencyAlias(alias)
		if err := a.Validate(); err != nil {
			return Ref{}, &QualifiedRefError{Raw: raw, Reason: "invalid dependency alias"}
		}
		if tail == "" {
			return Ref{}, &QualifiedRefError{Raw: raw, Reason: "missing target after alias"}
		}
		ref.Alias = a
		rest = tail
	}

	if idx := strings.LastIndex(rest, "."); idx >= 0 {
		domain := types.DomainPath(rest[:idx])
		pipe := types.PipeName(rest[idx+1:])
		if err := domain.Validate(); err != nil {
			return Ref{}, &QualifiedRefError{Raw: raw, Reason: "invalid domain path"}
		}
		if err := pipe.Validate(); err != nil {
			return Ref{}, &QualifiedRefError{Raw: raw, Reason: "invalid pipe name"}
		}
		ref.Domain = domain
		ref.LocalCode = pipe
		return ref, nil
	}

	if ref.Alias != "" {
		return Ref{}, &QualifiedRefError{Raw: raw, Reason: "cross-package reference requires a qualified target"}
	}
	pipe := types.PipeName(rest)
	if err := pipe.Validate(); err != nil {
		return Ref{}, &QualifiedRefError{Raw: raw, Reason: "invalid pipe name"}
	}
	ref.LocalCode = pipe
	return ref, nil
}

// Check validates every reference in every bundle against the manifest's
// exports. A nil manifest or one without exports imposes no restrictions
// beyond reference syntax and reserved domains. The returned violations are
// sorted by source domain then reference for deterministic reporting.
func Check(m *manifest.Manifest, bundles []Bundle) []Violation {
	var violations []Violation

	exports := exportIndex(m)
	mains := make(map[types.DomainPath]types.PipeName, len(bundles))
	for _, b := range bundles {
		if b.MainPipe != "" {
			mains[b.Domain] = b.MainPipe
		}
	}

	for _, b := range bundles {
		if err := b.Domain.CheckReserved(); err != nil {
			violations = append(violations, Violation{
				SourceDomain: b.Domain,
				TargetDomain: b.Domain,
				Context:      "bundle",
				Message:      fmt.Sprintf("domain %q uses a reserved first segment", b.Domain),
			})
			continue
		}
		for _, raw := range b.PipeReferences {
			if v, ok := checkRef(raw, b.Domain, exports, mains); !ok {
				violations = append(violations, v)
			}
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].SourceDomain != violations[j].SourceDomain {
			return violations[i].SourceDomain < violations[j].SourceDomain
		}
		return violations[i].PipeRef < violations[j].PipeRef
	})
	return violations
}

// checkRef validates one reference from source. ok is false when a
// violation is returned.
func checkRef(raw string, source types.DomainPath, exports map[types.DomainPath]map[types.PipeName]bool, mains map[types.DomainPath]types.PipeName) (Violation, bool) {
	ref, err := ParseRef(raw)
	if err != nil {
		return Violation{
			PipeRef:      raw,
			SourceDomain: source,
			Context:      "reference",
			Message:      err.Error(),
		}, false
	}

	if ref.Alias != "" {
		return Violation{
			PipeRef:      raw,
			SourceDomain: source,
			TargetDomain: ref.Domain,
			Context:      "reference",
			Message:      "cross-package pipe references are not supported",
		}, false
	}

	// bare and same-domain references are always allowed
	if ref.Domain == "" || ref.Domain == source {
		return Violation{}, true
	}

	// no export declarations means unrestricted visibility
	if exports == nil {
		return Violation{}, true
	}

	if exports[ref.Domain][ref.LocalCode] {
		return Violation{}, true
	}
	if mains[ref.Domain] == ref.LocalCode {
		return Violation{}, true
	}
	return Violation{
		PipeRef:      raw,
		SourceDomain: source,
		TargetDomain: ref.Domain,
		Context:      "reference",
		Message:      fmt.Sprintf("pipe %q is not exported by domain %q", ref.LocalCode, ref.Domain),
	}, false
}

// exportIndex flattens manifest exports to domain -> pipe set. Nil means
// unrestricted.
func exportIndex(m *manifest.Manifest) map[types.DomainPath]map[types.PipeName]bool {
	if m == nil || len(m.Exports) == 0 {
		return nil
	}
	index := make(map[types.DomainPath]map[types.PipeName]bool, len(m.Exports))
	for domain, export := range m.Exports {
		set := make(map[types.PipeName]bool, len(export.Pipes))
		for _, pipe := range export.Pipes {
			set[pipe] = true
		}
		index[domain] = set
	}
	return index
}
