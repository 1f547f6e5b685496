package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/internal/semver"
)

const versionColumns = `id, package_id, publisher_id, major, minor, patch, pre, build,
	content_id, pointer_id, signature, checksum, package, yanked, created_at`

func (s *Store) ResolvePointer(ctx context.Context, namespace, packageName, version string) (registry.Version, error) {
	const op = "postgres.ResolvePointer"

	parsed, err := semver.Parse(version)
	if err != nil {
		return registry.Version{}, registry.New(op, registry.ErrBadRequest, err, "invalid version string")
	}

	row := s.pool.QueryRow(ctx, `
		SELECT v.id, v.package_id, v.publisher_id, v.major, v.minor, v.patch, v.pre, v.build,
			v.content_id, v.pointer_id, v.signature, v.checksum, v.package, v.yanked, v.created_at
		FROM version v
		JOIN package p ON p.id = v.package_id
		JOIN namespace n ON n.id = p.namespace_id
		WHERE n.name = $1 AND p.name = $2
			AND v.major = $3 AND v.minor = $4 AND v.patch = $5 AND v.pre = $6 AND v.build = $7`,
		namespace, packageName, parsed.Major, parsed.Minor, parsed.Patch, parsed.Pre, parsed.Build)

	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Version{}, registry.New(op, registry.ErrNotFound, err,
			fmt.Sprintf("version %s of %s/%s not found", version, namespace, packageName))
	}
	if err != nil {
		return registry.Version{}, registry.New(op, registry.ErrStorageReadFailed, err, "failed to resolve pointer")
	}
	return v, nil
}

func (s *Store) ResolvePointerID(ctx context.Context, pointerID string) (registry.Version, error) {
	const op = "postgres.ResolvePointerID"

	row := s.pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM version WHERE pointer_id = $1`, pointerID)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Version{}, registry.New(op, registry.ErrNotFound, err,
			fmt.Sprintf("pointer %q not found", pointerID))
	}
	if err != nil {
		return registry.Version{}, registry.New(op, registry.ErrStorageReadFailed, err, "failed to resolve pointer id")
	}
	return v, nil
}
