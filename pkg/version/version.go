// Package version implements semantic version and constraint handling for
// package resolution.
//
// Versions follow semver 2.0 precedence exactly: numeric comparison per
// segment, pre-release below the release with the same numeric triple, and
// build metadata ignored in ordering. Constraints come in five shapes:
// exact ("1.2.3"), caret ("^1.2"), tilde ("~1.2.3"), wildcard ("*"), and
// explicit comparator ranges (">=1.0.0, <2.0.0").
package version

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

// Version is a parsed semantic version. It is a value type; compare with
// Compare or Equal, never by pointer identity.
type Version = semver.Version

// Parse parses a strict semantic version string (major.minor.patch with
// optional pre-release and build metadata). A leading "v" is not accepted.
func Parse(s string) (*Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.CodeInvalidVersion, err, "parsing version %q", s)
	}
	return v, nil
}

// MustParse is Parse for known-good literals; it panics on error.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Sort orders versions ascending by semver precedence, in place.
func Sort(vs []*Version) {
	sort.Sort(semver.Collection(vs))
}

// Max returns the highest version by semver precedence, or nil for an
// empty slice.
func Max(vs []*Version) *Version {
	var max *Version
	for _, v := range vs {
		if max == nil || v.GreaterThan(max) {
			max = v
		}
	}
	return max
}

// ConstraintKind classifies the surface syntax of a constraint.
type ConstraintKind int

const (
	// KindAny matches every valid version, including pre-releases.
	KindAny ConstraintKind = iota
	// KindExact matches exactly one version.
	KindExact
	// KindCaret matches versions compatible with the stated one
	// (no change to the leftmost non-zero segment).
	KindCaret
	// KindTilde matches patch-level changes against the stated version.
	KindTilde
	// KindRange is an explicit comparator range, comma-joined conjunction.
	KindRange
)

func (k ConstraintKind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindExact:
		return "exact"
	case KindCaret:
		return "caret"
	case KindTilde:
		return "tilde"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Constraint is a parsed version requirement. The zero value matches every
// version, same as the "*" wildcard.
type Constraint struct {
	raw  string
	kind ConstraintKind
	set  *semver.Constraints
}

// Any returns the wildcard constraint.
func Any() Constraint {
	return Constraint{raw: "*", kind: KindAny}
}

// Exact returns a constraint matched only by v.
func Exact(v *Version) Constraint {
	set, err := semver.NewConstraint("= " + v.String())
	if err != nil {
		// v came from Parse, so its string form is always valid syntax.
		panic(err)
	}
	return Constraint{raw: v.String(), kind: KindExact, set: set}
}

// ParseConstraint parses a constraint string. The empty string and "*" are
// the wildcard. Unrecognized syntax fails with an INVALID_CONSTRAINT error.
func ParseConstraint(s string) (Constraint, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		return Any(), nil
	}

	kind, err := classify(trimmed)
	if err != nil {
		return Constraint{}, err
	}

	set, err := semver.NewConstraint(trimmed)
	if err != nil {
		return Constraint{}, fetcherr.Wrap(fetcherr.CodeInvalidConstraint, err, "parsing constraint %q", s)
	}
	return Constraint{raw: trimmed, kind: kind, set: set}, nil
}

// classify determines the constraint kind from its leading syntax. Exact
// constraints must be full versions; partial forms like "1.2" are only
// valid behind a caret or tilde operator.
func classify(s string) (ConstraintKind, error) {
	switch {
	case strings.HasPrefix(s, "^"):
		return KindCaret, nil
	case strings.HasPrefix(s, "~"):
		return KindTilde, nil
	case strings.ContainsAny(s, "><!=,"):
		return KindRange, nil
	case strings.ContainsAny(s, "*xX"):
		// Partial wildcards ("1.2.*") behave as ranges.
		return KindRange, nil
	default:
		if _, err := semver.StrictNewVersion(s); err != nil {
			return 0, fetcherr.Wrap(fetcherr.CodeInvalidConstraint, err,
				"constraint %q is neither a full version nor a recognized range", s)
		}
		return KindExact, nil
	}
}

// Matches reports whether v satisfies the constraint. It is pure and total
// for all parsed constraints and versions.
func (c Constraint) Matches(v *Version) bool {
	if c.set == nil || c.kind == KindAny {
		return true
	}
	if c.kind == KindExact {
		// Exact pins compare by full precedence, pre-release included,
		// sidestepping the range engine's pre-release exclusion rule.
		pin, err := semver.StrictNewVersion(c.raw)
		if err == nil {
			return v.Equal(pin) && v.Prerelease() == pin.Prerelease()
		}
	}
	return c.set.Check(v)
}

// Kind returns the constraint's syntactic classification.
func (c Constraint) Kind() ConstraintKind {
	return c.kind
}

// String returns the constraint in its normalized textual form.
func (c Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// IsAny reports whether the constraint matches every version.
func (c Constraint) IsAny() bool {
	return c.set == nil || c.kind == KindAny
}
