package semver

import "testing"

func mustParse(t *testing.T, s string) Parsed {
	t.Helper()
	p, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return p
}

func TestCompare(t *testing.T) {
	tt := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0", "1.0.1", -1},
		{"1.0.1", "2.0.0-alpha.1", -1},
		{"2.0.0-alpha.1", "1.0.1", 1},
		{"1.0.0", "1.0.0-alpha", 1}, // absent prerelease outranks present
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-alpha.1", -1},
		{"1.0.0+build1", "1.0.0+build2", 0}, // build metadata ignored
	}
	for _, tc := range tt {
		a, b := mustParse(t, tc.a), mustParse(t, tc.b)
		if got := Compare(a, b); got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStrictlyAhead(t *testing.T) {
	existing := []Parsed{mustParse(t, "1.0.0"), mustParse(t, "1.0.1")}

	if StrictlyAhead(mustParse(t, "1.0.0"), existing) {
		t.Error("equal version should not be strictly ahead")
	}
	if StrictlyAhead(mustParse(t, "1.0.0"), []Parsed{mustParse(t, "1.0.1")}) {
		t.Error("lower version should not be strictly ahead")
	}
	if !StrictlyAhead(mustParse(t, "1.0.2"), existing) {
		t.Error("1.0.2 should be strictly ahead of 1.0.0, 1.0.1")
	}
	if !StrictlyAhead(mustParse(t, "2.0.0-alpha.1"), existing) {
		t.Error("prerelease of a higher major should be strictly ahead")
	}
	if !StrictlyAhead(mustParse(t, "1.0.0"), nil) {
		t.Error("any version is strictly ahead of nothing")
	}
}

func TestMax(t *testing.T) {
	vs := []Parsed{mustParse(t, "1.0.1"), mustParse(t, "2.0.0-alpha.1")}

	if got, ok := Max(vs, false); !ok || got.String() != "1.0.1" {
		t.Errorf("Max(prerelease=false) = %v, %v; want 1.0.1, true", got, ok)
	}
	if got, ok := Max(vs, true); !ok || got.String() != "2.0.0-alpha.1" {
		t.Errorf("Max(prerelease=true) = %v, %v; want 2.0.0-alpha.1, true", got, ok)
	}
	if _, ok := Max(nil, true); ok {
		t.Error("Max of empty slice should report ok=false")
	}
}
