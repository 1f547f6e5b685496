package postgres

import (
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/internal/semver"
)

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 50}, {-5, 50}, {10, 10}, {500, 500}, {1000, 500},
	}
	for _, c := range cases {
		if got := clampLimit(c.in); got != c.want {
			t.Errorf("clampLimit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

// TestSortVersionsPrereleaseNumeric pins the ordering a SQL string sort
// gets wrong: "rc.10" outranks "rc.2" because dot segments compare
// numerically, and a release outranks any prerelease.
func TestSortVersionsPrereleaseNumeric(t *testing.T) {
	vs := []registry.Version{
		{ID: 1, Major: 1, Pre: "rc.2"},
		{ID: 2, Major: 1},
		{ID: 3, Major: 1, Pre: "rc.10"},
	}
	sortVersions(vs, registry.Ascending)
	if vs[0].Pre != "rc.2" || vs[1].Pre != "rc.10" || vs[2].Pre != "" {
		t.Errorf("ascending order = [%q %q %q], want [rc.2 rc.10 \"\"]", vs[0].Pre, vs[1].Pre, vs[2].Pre)
	}
	sortVersions(vs, registry.Descending)
	if vs[0].Pre != "" || vs[1].Pre != "rc.10" || vs[2].Pre != "rc.2" {
		t.Errorf("descending order = [%q %q %q], want [\"\" rc.10 rc.2]", vs[0].Pre, vs[1].Pre, vs[2].Pre)
	}
}

func TestPageVersions(t *testing.T) {
	vs := []registry.Version{{ID: 1}, {ID: 2}, {ID: 3}}
	if got := pageVersions(vs, datastore.ListOpts{Limit: 2}); len(got) != 2 || got[0].ID != 1 {
		t.Errorf("pageVersions(limit=2) = %+v, want first two", got)
	}
	if got := pageVersions(vs, datastore.ListOpts{Limit: 2, Offset: 2}); len(got) != 1 || got[0].ID != 3 {
		t.Errorf("pageVersions(limit=2, offset=2) = %+v, want last one", got)
	}
	if got := pageVersions(vs, datastore.ListOpts{Offset: 9}); len(got) != 0 {
		t.Errorf("pageVersions(offset past end) = %+v, want empty", got)
	}
}

func TestApplyVersionRange(t *testing.T) {
	base := psql.Select("v.id").From(goqu.T("version").As("v"))
	min := semver.Parsed{Major: 1, Minor: 0, Patch: 0}
	max := semver.Parsed{Major: 2, Minor: 0, Patch: 0}

	rng := &datastore.VersionRange{Min: &min, MinInclusive: true, Max: &max, MaxInclusive: false}
	sql, _, err := applyVersionRange(base, rng).ToSQL()
	if err != nil {
		t.Fatalf("ToSQL: %v", err)
	}
	if !strings.Contains(sql, ">=") || !strings.Contains(sql, "<") || strings.Contains(sql, "<=") {
		t.Errorf("expected inclusive min / exclusive max operators, got %q", sql)
	}
}

func TestDirection(t *testing.T) {
	// Smoke-check both sort orders produce distinct, valid expressions.
	q := psql.Select("p.id").From(goqu.T("package").As("p")).Order(direction(0, "p.created_at"))
	sqlAsc, _, err := q.ToSQL()
	if err != nil {
		t.Fatalf("ToSQL asc: %v", err)
	}
	q = psql.Select("p.id").From(goqu.T("package").As("p")).Order(direction(1, "p.created_at"))
	sqlDesc, _, err := q.ToSQL()
	if err != nil {
		t.Fatalf("ToSQL desc: %v", err)
	}
	if sqlAsc == sqlDesc {
		t.Error("expected ascending and descending queries to differ")
	}
}
