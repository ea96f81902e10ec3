// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidDependencyAlias is the sentinel error wrapped by
// InvalidDependencyAliasError.
var ErrInvalidDependencyAlias = errors.New("invalid dependency alias")

// aliasPattern validates a dependency alias: lowercase first letter followed
// by 1-24 lowercase alphanumerics, underscores, or hyphens.
var aliasPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,24}$`)

type (
	// DependencyAlias is the local name a manifest gives one of its
	// dependencies, used to qualify cross-package references.
	DependencyAlias string

	// InvalidDependencyAliasError is returned when a DependencyAlias value
	// does not match the expected shape.
	InvalidDependencyAliasError struct {
		Value DependencyAlias
	}
)

// Error implements the error interface.
func (e *InvalidDependencyAliasError) Error() string {
	return fmt.Sprintf("invalid dependency alias %q (must match %s)", e.Value, aliasPattern)
}

// Unwrap returns ErrInvalidDependencyAlias so callers can use errors.Is for
// programmatic detection.
func (e *InvalidDependencyAliasError) Unwrap() error { return ErrInvalidDependencyAlias }

// Validate returns nil if the DependencyAlias matches the expected shape,
// or an error describing the validation failure.
func (a DependencyAlias) Validate() error {
	if !aliasPattern.MatchString(string(a)) {
		return &InvalidDependencyAliasError{Value: a}
	}
	return nil
}

// String returns the string representation of the DependencyAlias.
func (a DependencyAlias) String() string { return string(a) }
