// SPDX-License-Identifier: MPL-2.0

// Package semver implements version parsing, constraint checking, and Minimal
// Version Selection for package resolution. Parsing and the constraint grammar
// (exact, caret, tilde, comparison operators, wildcards, comma-joined
// conjunctions) are provided by github.com/Masterminds/semver; this package
// layers the MVS selection rules on top: of all versions satisfying the active
// constraints, the oldest wins, which keeps resolution deterministic and
// monotonic as constraints are added.
package semver

import (
	"fmt"
	"sort"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"

	"plumb-cli/pkg/types"
)

// Version is a parsed concrete semantic version.
type Version = mmsemver.Version

// Constraint is a parsed version constraint, possibly a conjunction.
type Constraint = mmsemver.Constraints

var (
	// ErrInvalidVersion is returned when a string cannot be parsed as a
	// semantic version.
	ErrInvalidVersion = fmt.Errorf("%w: invalid version", types.Err)

	// ErrInvalidConstraint is returned when a string cannot be parsed as a
	// version constraint.
	ErrInvalidConstraint = fmt.Errorf("%w: invalid constraint", types.Err)
)

// Parse parses a concrete semantic version, stripping one leading "v".
func Parse(s string) (*Version, error) {
	trimmed := strings.TrimPrefix(s, "v")
	v, err := mmsemver.StrictNewVersion(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	return v, nil
}

// IsValid reports whether s parses as a concrete semantic version.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// ParseConstraint parses a version constraint string. Supported forms are
// exact versions, caret and tilde ranges, comparison operators, wildcards,
// and comma-joined conjunctions of those.
func ParseConstraint(s string) (*Constraint, error) {
	c, err := mmsemver.NewConstraint(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidConstraint, s, err)
	}
	return c, nil
}

// IsValidConstraint reports whether s parses as a version constraint.
func IsValidConstraint(s string) bool {
	_, err := ParseConstraint(s)
	return err == nil
}

// Satisfies reports whether version v satisfies constraint c.
func Satisfies(v *Version, c *Constraint) bool {
	return c.Check(v)
}

// SortAscending sorts versions in place from oldest to newest.
func SortAscending(versions []*Version) {
	sort.Sort(mmsemver.Collection(versions))
}

// SelectMinimum returns the oldest version satisfying c, or nil when no
// version does. The input slice is not modified.
func SelectMinimum(versions []*Version, c *Constraint) *Version {
	return SelectMinimumForAll(versions, []*Constraint{c})
}

// SelectMinimumForAll returns the oldest version simultaneously satisfying
// every constraint, or nil when none does. Used to reconcile diamond
// dependencies, where multiple dependents constrain one address.
func SelectMinimumForAll(versions []*Version, constraints []*Constraint) *Version {
	sorted := make([]*Version, len(versions))
	copy(sorted, versions)
	SortAscending(sorted)

	for _, v := range sorted {
		ok := true
		for _, c := range constraints {
			if !c.Check(v) {
				ok = false
				break
			}
		}
		if ok {
			return v
		}
	}
	return nil
}
