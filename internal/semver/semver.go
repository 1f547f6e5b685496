// Package semver wraps Masterminds/semver to implement the "strictly ahead"
// ordering rule spec §3 and §4.C7 require: numeric major/minor/patch, an
// absent prerelease outranks any present one, present prereleases compare by
// dot-segment rule, and build metadata is preserved but never compared.
package semver

import (
	"fmt"

	mmsemver "github.com/Masterminds/semver"

	registry "github.com/ipfsreg/registry"
)

// Parsed holds the decomposed components spec §3's Version row stores.
type Parsed struct {
	Major, Minor, Patch int64
	Pre, Build          string
}

// Parse validates s as semver and decomposes it into the columns the
// metadata store persists.
func Parse(s string) (Parsed, error) {
	const op = "semver.Parse"
	v, err := mmsemver.NewVersion(s)
	if err != nil {
		return Parsed{}, registry.New(op, registry.ErrBadRequest, err, fmt.Sprintf("invalid semver %q", s))
	}
	return Parsed{
		Major: int64(v.Major()),
		Minor: int64(v.Minor()),
		Patch: int64(v.Patch()),
		Pre:   v.Prerelease(),
		Build: v.Metadata(),
	}, nil
}

// String renders the dotted form.
func (p Parsed) String() string {
	s := fmt.Sprintf("%d.%d.%d", p.Major, p.Minor, p.Patch)
	if p.Pre != "" {
		s += "-" + p.Pre
	}
	if p.Build != "" {
		s += "+" + p.Build
	}
	return s
}

// toSemver builds a mmsemver.Version for comparison purposes. Build metadata
// is intentionally dropped: Masterminds/semver's Compare ignores it already,
// but dropping it here keeps this function's contract self-evident.
func (p Parsed) toSemver() *mmsemver.Version {
	// mmsemver.NewVersion always succeeds on a string it itself rendered.
	v, _ := mmsemver.NewVersion(fmt.Sprintf("%d.%d.%d", p.Major, p.Minor, p.Patch))
	if p.Pre != "" {
		s := fmt.Sprintf("%d.%d.%d-%s", p.Major, p.Minor, p.Patch, p.Pre)
		v, _ = mmsemver.NewVersion(s)
	}
	return v
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b,
// per standard semver precedence: an absent prerelease outranks any present
// prerelease at equal major.minor.patch; build metadata is ignored.
func Compare(a, b Parsed) int {
	return a.toSemver().Compare(b.toSemver())
}

// StrictlyAhead reports whether candidate orders strictly greater than every
// version in existing, i.e. Compare(candidate, v) > 0 for all v. An empty
// existing slice means there is no prior version to be ahead of, so any
// valid candidate qualifies. See spec §4.C7's "strictly ahead" rule.
func StrictlyAhead(candidate Parsed, existing []Parsed) bool {
	for _, v := range existing {
		if Compare(candidate, v) <= 0 {
			return false
		}
	}
	return true
}

// Max returns the highest-ordered version in vs, and ok=false if vs is
// empty. When includePrerelease is false, prerelease versions are skipped.
func Max(vs []Parsed, includePrerelease bool) (Parsed, bool) {
	var (
		best Parsed
		ok   bool
	)
	for _, v := range vs {
		if !includePrerelease && v.Pre != "" {
			continue
		}
		if !ok || Compare(v, best) > 0 {
			best, ok = v, true
		}
	}
	return best, ok
}
