// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidDigest is the sentinel error wrapped by InvalidDigestError.
var ErrInvalidDigest = errors.New("invalid digest")

// digestPattern validates the "<algo>:<lowercase hex>" digest shape.
// sha256 digests additionally require exactly 64 hex characters.
var digestPattern = regexp.MustCompile(`^([a-z0-9]+):([0-9a-f]+)$`)

type (
	// Digest is a content digest in "<algo>:<hex>" form, e.g.
	// "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08".
	Digest string

	// InvalidDigestError is returned when a Digest value does not match the
	// expected "<algo>:<hex>" shape.
	InvalidDigestError struct {
		Value  Digest
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidDigestError) Error() string {
	return fmt.Sprintf("invalid digest %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidDigest so callers can use errors.Is for
// programmatic detection.
func (e *InvalidDigestError) Unwrap() error { return ErrInvalidDigest }

// Validate returns nil if the Digest has a well-formed "<algo>:<hex>" shape,
// or an error describing the validation failure.
func (d Digest) Validate() error {
	m := digestPattern.FindStringSubmatch(string(d))
	if m == nil {
		return &InvalidDigestError{Value: d, Reason: "must be <algo>:<lowercase hex>"}
	}
	if m[1] == "sha256" && len(m[2]) != 64 {
		return &InvalidDigestError{Value: d, Reason: fmt.Sprintf("sha256 digests require 64 hex characters, got %d", len(m[2]))}
	}
	return nil
}

// Algorithm returns the digest algorithm prefix, or "" for malformed digests.
func (d Digest) Algorithm() string {
	m := digestPattern.FindStringSubmatch(string(d))
	if m == nil {
		return ""
	}
	return m[1]
}

// String returns the string representation of the Digest.
func (d Digest) String() string { return string(d) }
