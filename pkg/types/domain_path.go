// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidDomainPath is the sentinel error wrapped by InvalidDomainPathError.
	ErrInvalidDomainPath = errors.New("invalid domain path")

	// ErrReservedDomain is the sentinel error wrapped by ReservedDomainError.
	ErrReservedDomain = errors.New("reserved domain")

	// domainSegmentPattern validates a single snake_case domain segment.
	domainSegmentPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ReservedDomainSegments lists first segments that user packages may not
// claim as a domain.
var ReservedDomainSegments = []string{"plumb", "internal"}

type (
	// DomainPath is a dot-hierarchical namespace grouping pipes within a
	// package, e.g. "etl" or "etl.staging". Segments are snake_case.
	DomainPath string

	// InvalidDomainPathError is returned when a DomainPath value does not
	// consist of dot-separated snake_case segments.
	InvalidDomainPathError struct {
		Value  DomainPath
		Reason string
	}

	// ReservedDomainError is returned when a DomainPath starts with a
	// reserved segment.
	ReservedDomainError struct {
		Value DomainPath
	}
)

// Error implements the error interface.
func (e *InvalidDomainPathError) Error() string {
	return fmt.Sprintf("invalid domain path %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidDomainPath so callers can use errors.Is for
// programmatic detection.
func (e *InvalidDomainPathError) Unwrap() error { return ErrInvalidDomainPath }

// Error implements the error interface.
func (e *ReservedDomainError) Error() string {
	return fmt.Sprintf("domain path %q starts with a reserved segment (reserved: %s)",
		e.Value, strings.Join(ReservedDomainSegments, ", "))
}

// Unwrap returns ErrReservedDomain so callers can use errors.Is for
// programmatic detection.
func (e *ReservedDomainError) Unwrap() error { return ErrReservedDomain }

// Validate returns nil if the DomainPath consists of dot-separated snake_case
// segments, or an error describing the validation failure. Reservation is
// checked separately via CheckReserved because some call sites (e.g. lookup of
// a foreign package's exports) accept reserved paths they did not declare.
func (d DomainPath) Validate() error {
	if d == "" {
		return &InvalidDomainPathError{Value: d, Reason: "must not be empty"}
	}
	for _, seg := range strings.Split(string(d), ".") {
		if !domainSegmentPattern.MatchString(seg) {
			return &InvalidDomainPathError{Value: d, Reason: fmt.Sprintf("segment %q is not snake_case", seg)}
		}
	}
	return nil
}

// CheckReserved returns an error if the first segment of the path is reserved.
func (d DomainPath) CheckReserved() error {
	first, _, _ := strings.Cut(string(d), ".")
	for _, reserved := range ReservedDomainSegments {
		if first == reserved {
			return &ReservedDomainError{Value: d}
		}
	}
	return nil
}

// First returns the first segment of the domain path.
func (d DomainPath) First() string {
	first, _, _ := strings.Cut(string(d), ".")
	return first
}

// String returns the string representation of the DomainPath.
func (d DomainPath) String() string { return string(d) }
