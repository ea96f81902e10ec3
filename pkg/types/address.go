// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAddress is the sentinel error wrapped by InvalidAddressError.
var ErrInvalidAddress = errors.New("invalid package address")

// addressSegmentPattern validates a single path segment of an address.
var addressSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

type (
	// Address identifies the source location of a package as "<hostname>/<path>".
	// Examples: "example.com/org/pipes", "git.corp.io/platform/etl-core".
	// The hostname segment must contain a dot; at least one path segment must
	// follow it. Addresses are globally unique within a resolution run.
	Address string

	// InvalidAddressError is returned when an Address value does not match
	// the expected "<hostname>/<path>" format.
	InvalidAddressError struct {
		Value  Address
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid package address %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidAddress so callers can use errors.Is for
// programmatic detection.
func (e *InvalidAddressError) Unwrap() error { return ErrInvalidAddress }

// Validate returns nil if the Address is a well-formed "<hostname>/<path>"
// identifier, or an error describing the validation failure.
func (a Address) Validate() error {
	s := string(a)
	if s == "" {
		return &InvalidAddressError{Value: a, Reason: "must not be empty"}
	}
	segments := strings.Split(s, "/")
	if len(segments) < 2 {
		return &InvalidAddressError{Value: a, Reason: "must contain a hostname and at least one path segment"}
	}
	if !strings.Contains(segments[0], ".") {
		return &InvalidAddressError{Value: a, Reason: "hostname segment must contain a dot"}
	}
	for _, seg := range segments {
		if seg == "" {
			return &InvalidAddressError{Value: a, Reason: "empty path segment"}
		}
		if seg == "." || seg == ".." {
			return &InvalidAddressError{Value: a, Reason: "relative path segments are not allowed"}
		}
		if !addressSegmentPattern.MatchString(seg) {
			return &InvalidAddressError{Value: a, Reason: fmt.Sprintf("segment %q contains invalid characters", seg)}
		}
	}
	return nil
}

// Hostname returns the hostname segment of the address.
func (a Address) Hostname() string {
	host, _, _ := strings.Cut(string(a), "/")
	return host
}

// String returns the string representation of the Address.
func (a Address) String() string { return string(a) }
