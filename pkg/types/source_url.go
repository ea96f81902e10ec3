// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSourceURL is the sentinel error wrapped by InvalidSourceURLError.
var ErrInvalidSourceURL = errors.New("invalid source URL")

type (
	// SourceURL is the fetchable location of a package's source repository.
	// Lock files only accept secure HTTPS sources.
	SourceURL string

	// InvalidSourceURLError is returned when a SourceURL value is not a
	// secure URL.
	InvalidSourceURLError struct {
		Value SourceURL
	}
)

// Error implements the error interface.
func (e *InvalidSourceURLError) Error() string {
	return fmt.Sprintf("invalid source URL %q (must start with https://)", e.Value)
}

// Unwrap returns ErrInvalidSourceURL so callers can use errors.Is for
// programmatic detection.
func (e *InvalidSourceURLError) Unwrap() error { return ErrInvalidSourceURL }

// Validate returns nil if the SourceURL is a secure URL,
// or an error describing the validation failure.
func (u SourceURL) Validate() error {
	if !strings.HasPrefix(string(u), "https://") {
		return &InvalidSourceURLError{Value: u}
	}
	return nil
}

// String returns the string representation of the SourceURL.
func (u SourceURL) String() string { return string(u) }
