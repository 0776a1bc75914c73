package version

import (
	"testing"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

func TestParseRoundTrip(t *testing.T) {
	tests := map[string]string{
		"plain release":  "1.2.3",
		"zero version":   "0.0.0",
		"pre-release":    "1.0.0-alpha.1",
		"build metadata": "2.1.0+build.55",
		"pre-release and build": "1.0.0-rc.2+exp.sha.5114f85",
		"large segments":        "10.20.30",
	}

	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := Parse(in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", in, err)
			}
			if got := v.String(); got != in {
				t.Errorf("round-trip: Parse(%q).String() = %q", in, got)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "1", "1.2", "v1.2.3", "1.2.3.4", "a.b.c", "1.2.-3", "1.0.0-"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		} else if !fetcherr.Is(err, fetcherr.CodeInvalidVersion) {
			t.Errorf("Parse(%q) error code = %q, want INVALID_VERSION", in, fetcherr.GetCode(err))
		}
	}
}

func TestOrdering(t *testing.T) {
	// Semver precedence: pre-release sorts below its release, build
	// metadata is ignored.
	ordered := []string{
		"0.9.9",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-beta",
		"1.0.0",
		"1.0.1",
		"1.2.0",
		"2.0.0",
	}
	for i := 0; i < len(ordered)-1; i++ {
		lo, hi := MustParse(ordered[i]), MustParse(ordered[i+1])
		if !lo.LessThan(hi) {
			t.Errorf("expected %s < %s", lo, hi)
		}
	}

	if !MustParse("1.0.0+a").Equal(MustParse("1.0.0+b")) {
		t.Error("build metadata should not affect precedence")
	}
}

func TestMax(t *testing.T) {
	vs := []*Version{MustParse("1.2.0"), MustParse("2.0.0"), MustParse("1.9.9")}
	if got := Max(vs); got.String() != "2.0.0" {
		t.Errorf("Max = %s, want 2.0.0", got)
	}
	if Max(nil) != nil {
		t.Error("Max(nil) should be nil")
	}
}

func TestParseConstraintKinds(t *testing.T) {
	tests := map[string]struct {
		in   string
		want ConstraintKind
	}{
		"wildcard":         {"*", KindAny},
		"empty is any":     {"", KindAny},
		"exact":            {"1.2.3", KindExact},
		"caret":            {"^1.2.0", KindCaret},
		"caret partial":    {"^1.2", KindCaret},
		"tilde":            {"~1.2.3", KindTilde},
		"range":            {">=1.0.0, <2.0.0", KindRange},
		"single comparator": {">=1.4.0", KindRange},
		"partial wildcard": {"1.2.*", KindRange},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := ParseConstraint(tc.in)
			if err != nil {
				t.Fatalf("ParseConstraint(%q): %v", tc.in, err)
			}
			if c.Kind() != tc.want {
				t.Errorf("Kind = %s, want %s", c.Kind(), tc.want)
			}
		})
	}
}

func TestParseConstraintInvalid(t *testing.T) {
	for _, in := range []string{"1.2", "nope", "^^1.0.0", ">= banana"} {
		if _, err := ParseConstraint(in); err == nil {
			t.Errorf("ParseConstraint(%q) should fail", in)
		} else if !fetcherr.Is(err, fetcherr.CodeInvalidConstraint) {
			t.Errorf("ParseConstraint(%q) error code = %q, want INVALID_CONSTRAINT", in, fetcherr.GetCode(err))
		}
	}
}

func TestMatches(t *testing.T) {
	tests := map[string]struct {
		constraint string
		version    string
		want       bool
	}{
		"wildcard matches release":     {"*", "1.2.3", true},
		"wildcard matches pre-release": {"*", "1.0.0-alpha", true},
		"exact hit":                    {"1.0.0", "1.0.0", true},
		"exact miss":                   {"1.0.0", "1.0.1", false},
		"exact ignores build metadata": {"1.0.0", "1.0.0", true},
		"exact pre-release hit":        {"1.0.0-alpha", "1.0.0-alpha", true},
		"exact pre-release miss":       {"1.0.0-alpha", "1.0.0", false},
		"caret in range":               {"^1.2.0", "1.3.0", true},
		"caret major bump":             {"^1.2.0", "2.0.0", false},
		"caret below floor":            {"^1.2.0", "1.1.9", false},
		"caret zero major":             {"^0.2.0", "0.3.0", false},
		"tilde patch ok":               {"~1.2.3", "1.2.9", true},
		"tilde minor bump":             {"~1.2.3", "1.3.0", false},
		"range inside":                 {">=1.0.0, <2.0.0", "1.5.0", true},
		"range at floor":               {">=1.0.0, <2.0.0", "1.0.0", true},
		"range at ceiling":             {">=1.0.0, <2.0.0", "2.0.0", false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := ParseConstraint(tc.constraint)
			if err != nil {
				t.Fatalf("ParseConstraint(%q): %v", tc.constraint, err)
			}
			v := MustParse(tc.version)
			if got := c.Matches(v); got != tc.want {
				t.Errorf("Matches(%q, %s) = %v, want %v", tc.constraint, v, got, tc.want)
			}
			// Pure predicate: repeated evaluation gives the same answer.
			if got := c.Matches(v); got != tc.want {
				t.Errorf("second Matches call disagreed")
			}
		})
	}
}

func TestZeroConstraintIsAny(t *testing.T) {
	var c Constraint
	if !c.IsAny() {
		t.Error("zero Constraint should match anything")
	}
	if !c.Matches(MustParse("3.4.5")) {
		t.Error("zero Constraint should match arbitrary versions")
	}
	if c.String() != "*" {
		t.Errorf("zero Constraint String = %q, want *", c.String())
	}
}
