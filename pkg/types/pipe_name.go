// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPipeName is the sentinel error wrapped by InvalidPipeNameError.
var ErrInvalidPipeName = errors.New("invalid pipe name")

// pipeNamePattern validates a snake_case pipe identifier.
var pipeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type (
	// PipeName identifies a single invokable pipeline step within a domain.
	// Pipe names are snake_case.
	PipeName string

	// InvalidPipeNameError is returned when a PipeName value is not
	// snake_case.
	InvalidPipeNameError struct {
		Value PipeName
	}
)

// Error implements the error interface.
func (e *InvalidPipeNameError) Error() string {
	return fmt.Sprintf("invalid pipe name %q (must be snake_case)", e.Value)
}

// Unwrap returns ErrInvalidPipeName so callers can use errors.Is for
// programmatic detection.
func (e *InvalidPipeNameError) Unwrap() error { return ErrInvalidPipeName }

// Validate returns nil if the PipeName is snake_case,
// or an error describing the validation failure.
func (p PipeName) Validate() error {
	if !pipeNamePattern.MatchString(string(p)) {
		return &InvalidPipeNameError{Value: p}
	}
	return nil
}

// String returns the string representation of the PipeName.
func (p PipeName) String() string { return string(p) }
