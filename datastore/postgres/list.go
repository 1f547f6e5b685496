package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/doug-martin/goqu/v8/exp"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/internal/semver"
)

var psql = goqu.Dialect("postgres")

func direction(order registry.SortOrder, col string) exp.OrderedExpression {
	if order == registry.Descending {
		return goqu.I(col).Desc()
	}
	return goqu.I(col).Asc()
}

// ListPackages implements spec §4.C6: deterministic order by (created_at,
// package_id); optionally attaches each package's latest version.
func (s *Store) ListPackages(ctx context.Context, namespace string, opts datastore.ListOpts, with registry.VersionIncludeMode) ([]registry.Package, error) {
	const op = "postgres.ListPackages"

	query := psql.Select("p.id", "p.namespace_id", "p.name", "p.skeleton", "p.created_at").
		From(goqu.T("package").As("p")).
		Join(goqu.T("namespace").As("n"), goqu.On(goqu.Ex{"n.id": goqu.I("p.namespace_id")})).
		Where(goqu.Ex{"n.name": namespace}).
		Order(direction(opts.Sort, "p.created_at"), direction(opts.Sort, "p.id")).
		Limit(uint(clampLimit(opts.Limit))).
		Offset(uint(opts.Offset))

	sql, args, err := query.ToSQL()
	if err != nil {
		return nil, registry.New(op, registry.ErrInternal, err, "failed to build list_packages query")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, "failed to list packages")
	}
	defer rows.Close()

	var out []registry.Package
	for rows.Next() {
		var p registry.Package
		if err := rows.Scan(&p.ID, &p.NamespaceID, &p.Name, &p.Skeleton, &p.CreatedAt); err != nil {
			return nil, registry.New(op, registry.ErrStorageReadFailed, err, "failed to scan package row")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, "failed to iterate package rows")
	}

	if with == registry.VersionsLatest {
		for i := range out {
			v, err := s.LatestVersion(ctx, namespace, out[i].Name, true)
			if err != nil && registry.KindOf(err) != registry.ErrNotFound {
				return nil, err
			}
			if err == nil {
				out[i].LatestVersion = &v
			}
		}
	}
	return out, nil
}

// ListVersions implements spec §4.C6: semver-precedence order (prerelease
// dot segments compared numerically), then build metadata, then id,
// optionally bounded by rng. The ordering cannot be expressed as a SQL
// ORDER BY — a string sort puts "rc.2" after "rc.10" — so rows are fetched
// unordered and sorted here, with pagination applied after the sort.
func (s *Store) ListVersions(ctx context.Context, namespace, packageName string, rng *datastore.VersionRange, opts datastore.ListOpts) ([]registry.Version, error) {
	const op = "postgres.ListVersions"

	query := psql.Select(versionColumnList()...).
		From(goqu.T("version").As("v")).
		Join(goqu.T("package").As("p"), goqu.On(goqu.Ex{"p.id": goqu.I("v.package_id")})).
		Join(goqu.T("namespace").As("n"), goqu.On(goqu.Ex{"n.id": goqu.I("p.namespace_id")})).
		Where(goqu.Ex{"n.name": namespace, "p.name": packageName})

	if rng != nil {
		query = applyVersionRange(query, rng)
	}

	out, err := s.queryVersions(ctx, op, query)
	if err != nil {
		return nil, err
	}
	sortVersions(out, opts.Sort)
	return pageVersions(out, opts), nil
}

func (s *Store) queryVersions(ctx context.Context, op string, query *goqu.SelectDataset) ([]registry.Version, error) {
	sql, args, err := query.ToSQL()
	if err != nil {
		return nil, registry.New(op, registry.ErrInternal, err, "failed to build version query")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, "failed to query versions")
	}
	defer rows.Close()

	var out []registry.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, registry.New(op, registry.ErrStorageReadFailed, err, "failed to scan version row")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, "failed to iterate version rows")
	}
	return out, nil
}

// parsedOf decomposes a version row for ordering comparisons.
func parsedOf(v registry.Version) semver.Parsed {
	return semver.Parsed{Major: v.Major, Minor: v.Minor, Patch: v.Patch, Pre: v.Pre, Build: v.Build}
}

// sortVersions orders by semver precedence, breaking ties on build metadata
// (ignored by precedence but kept deterministic) and finally id.
func sortVersions(vs []registry.Version, order registry.SortOrder) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if order == registry.Descending {
			a, b = b, a
		}
		if c := semver.Compare(parsedOf(a), parsedOf(b)); c != 0 {
			return c < 0
		}
		if a.Build != b.Build {
			return a.Build < b.Build
		}
		return a.ID < b.ID
	})
}

// pageVersions applies offset/limit after the in-memory sort.
func pageVersions(vs []registry.Version, opts datastore.ListOpts) []registry.Version {
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(vs) {
		start = len(vs)
	}
	end := start + clampLimit(opts.Limit)
	if end > len(vs) {
		end = len(vs)
	}
	return vs[start:end]
}

func applyVersionRange(query *goqu.SelectDataset, rng *datastore.VersionRange) *goqu.SelectDataset {
	if rng.Min != nil {
		op := ">="
		if !rng.MinInclusive {
			op = ">"
		}
		query = query.Where(goqu.L(fmt.Sprintf("(v.major, v.minor, v.patch) %s (?, ?, ?)", op),
			rng.Min.Major, rng.Min.Minor, rng.Min.Patch))
	}
	if rng.Max != nil {
		op := "<="
		if !rng.MaxInclusive {
			op = "<"
		}
		query = query.Where(goqu.L(fmt.Sprintf("(v.major, v.minor, v.patch) %s (?, ?, ?)", op),
			rng.Max.Major, rng.Max.Minor, rng.Max.Patch))
	}
	return query
}

// LatestVersion implements spec §4.C6: highest version under semver
// precedence, eligibility for prerelease controlled by includePrerelease.
// The selection happens in Go for the same reason ListVersions sorts in Go:
// prerelease dot segments compare numerically, which ORDER BY can't do.
func (s *Store) LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (registry.Version, error) {
	const op = "postgres.LatestVersion"

	query := psql.Select(versionColumnList()...).
		From(goqu.T("version").As("v")).
		Join(goqu.T("package").As("p"), goqu.On(goqu.Ex{"p.id": goqu.I("v.package_id")})).
		Join(goqu.T("namespace").As("n"), goqu.On(goqu.Ex{"n.id": goqu.I("p.namespace_id")})).
		Where(goqu.Ex{"n.name": namespace, "p.name": packageName})

	out, err := s.queryVersions(ctx, op, query)
	if err != nil {
		return registry.Version{}, err
	}

	parsed := make([]semver.Parsed, len(out))
	for i, v := range out {
		parsed[i] = parsedOf(v)
	}
	best, ok := semver.Max(parsed, includePrerelease)
	if !ok {
		return registry.Version{}, registry.New(op, registry.ErrNotFound, nil,
			fmt.Sprintf("no versions for package %q", packageName))
	}
	for i := range parsed {
		if parsed[i] == best {
			return out[i], nil
		}
	}
	return registry.Version{}, registry.New(op, registry.ErrInternal, nil, "latest version selection failed")
}

func versionColumnList() []any {
	cols := []string{
		"v.id", "v.package_id", "v.publisher_id", "v.major", "v.minor", "v.patch", "v.pre", "v.build",
		"v.content_id", "v.pointer_id", "v.signature", "v.checksum", "v.package", "v.yanked", "v.created_at",
	}
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
