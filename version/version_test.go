package version

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "2.0", -1},
		{"2.0", "1.0", 1},
		{"1:1.0", "2.0", 1},
		{"1.0~rc1", "1.0", -1},
		{"1.0~rc1", "1.0~rc2", -1},
		{"1.0-1", "1.0-2", -1},
		{"1.0a", "1.0", 1},
		{"0.9", "1.0", -1},
		{"1.0.0", "1.0", 1},
		{"1~~", "1~~a", -1},
		{"1~~a", "1~", -1},
		{"1~", "1", -1},
		{"1", "1a", -1},
		{"9.10", "9.9", 1},
	}
	for _, c := range cases {
		a, err := Parse(c.a)
		if err != nil {
			t.Fatalf("parse %q: %v", c.a, err)
		}
		b, err := Parse(c.b)
		if err != nil {
			t.Fatalf("parse %q: %v", c.b, err)
		}
		got := a.Compare(b)
		if sign(got) != sign(c.want) {
			t.Errorf("Compare(%q, %q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
		// Antisymmetry.
		if sign(b.Compare(a)) != -sign(got) {
			t.Errorf("Compare(%q, %q) not antisymmetric", c.a, c.b)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"1.0", "2:1.0-3", "1.2.3-1ubuntu1", "0.1"} {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := v.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}

func TestParseRejectsEmptyOrBadStart(t *testing.T) {
	for _, s := range []string{"", "a1.0", ":1.0"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}

func TestRequirementWithin(t *testing.T) {
	r, err := ParseRequirement(">= 1.2.3-1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Within(MustParse("1.2.3-1")) {
		t.Error("expected 1.2.3-1 to satisfy >= 1.2.3-1")
	}
	if !r.Within(MustParse("1.2.4-1")) {
		t.Error("expected 1.2.4-1 to satisfy >= 1.2.3-1")
	}
	if r.Within(MustParse("1.2.2-1")) {
		t.Error("did not expect 1.2.2-1 to satisfy >= 1.2.3-1")
	}
}

func TestRequirementParensOptional(t *testing.T) {
	a, err := ParseRequirement("(>= 1.0)")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseRequirement(">= 1.0")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("parenthesized and bare forms parsed differently: %+v vs %+v", a, b)
	}
}

func TestAppSemverAcceptsVOptionalPrefix(t *testing.T) {
	sv, err := AppSemver("v1.4.0")
	if err != nil {
		t.Fatal(err)
	}
	if sv.String() != "1.4.0" {
		t.Errorf("AppSemver(\"v1.4.0\").String() = %q, want 1.4.0", sv.String())
	}
}

func TestAppSemverRejectsDebianStyleVersion(t *testing.T) {
	if _, err := AppSemver("1:2.3-1"); err == nil {
		t.Fatal("expected a Debian-style version to be rejected as non-semver")
	}
}
