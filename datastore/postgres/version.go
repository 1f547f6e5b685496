package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/internal/semver"
)

// InsertVersion implements spec §4.C6: find-or-create the package, verify
// the strictly-ahead invariant against every existing version, insert
// within one transaction.
func (s *Store) InsertVersion(ctx context.Context, namespace, packageName string, publisher registry.Address, version semver.Parsed, contentID, pointerID string, sig registry.Signature, checksum registry.Checksum, metadata []byte) (registry.Version, error) {
	const op = "postgres.InsertVersion"

	var v registry.Version
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		ns, err := s.namespaceByName(ctx, tx, namespace)
		if err != nil {
			return err
		}
		pkgID, err := findOrCreatePackageIDTx(ctx, tx, ns.id, packageName)
		if err != nil {
			return err
		}
		// Lock the package row so concurrent inserts for the same package
		// serialize on the strictly-ahead check, per spec §5.
		if _, err := tx.Exec(ctx, `SELECT id FROM package WHERE id = $1 FOR UPDATE`, pkgID); err != nil {
			return registry.New(op, registry.ErrStorageWriteFailed, err, "failed to lock package row")
		}

		existing, err := existingVersions(ctx, tx, pkgID)
		if err != nil {
			return err
		}
		if !semver.StrictlyAhead(version, existing) {
			return registry.New(op, registry.ErrConflict, nil,
				fmt.Sprintf("version %s is not ahead of latest for package %q", version, packageName))
		}

		pub, err := findOrCreatePublisherTx(ctx, tx, publisher)
		if err != nil {
			return err
		}

		const query = `
			INSERT INTO version (package_id, publisher_id, major, minor, patch, pre, build,
				content_id, pointer_id, signature, checksum, package)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, package_id, publisher_id, major, minor, patch, pre, build,
				content_id, pointer_id, signature, checksum, package, yanked, created_at`

		row := tx.QueryRow(ctx, query,
			pkgID, pub.ID, version.Major, version.Minor, version.Patch, version.Pre, version.Build,
			contentID, pointerID, sig[:], checksum[:], metadata)
		v, err = scanVersion(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return registry.New(op, registry.ErrConflict, err,
					fmt.Sprintf("version %s of package %q already exists", version, packageName))
			}
			return registry.New(op, registry.ErrStorageWriteFailed, err, "failed to insert version")
		}
		return nil
	})
	return v, err
}

func existingVersions(ctx context.Context, tx pgx.Tx, packageID int64) ([]semver.Parsed, error) {
	rows, err := tx.Query(ctx, `SELECT major, minor, patch, pre, build FROM version WHERE package_id = $1`, packageID)
	if err != nil {
		return nil, registry.New("postgres.existingVersions", registry.ErrStorageReadFailed, err,
			"failed to list existing versions")
	}
	defer rows.Close()

	var out []semver.Parsed
	for rows.Next() {
		var p semver.Parsed
		if err := rows.Scan(&p.Major, &p.Minor, &p.Patch, &p.Pre, &p.Build); err != nil {
			return nil, registry.New("postgres.existingVersions", registry.ErrStorageReadFailed, err,
				"failed to scan version row")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, registry.New("postgres.existingVersions", registry.ErrStorageReadFailed, err,
			"failed to iterate version rows")
	}
	return out, nil
}

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query),
// letting scanVersion serve both single-row and iterated reads.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (registry.Version, error) {
	var v registry.Version
	var sig, checksum []byte
	if err := row.Scan(
		&v.ID, &v.PackageID, &v.PublisherID, &v.Major, &v.Minor, &v.Patch, &v.Pre, &v.Build,
		&v.ContentID, &v.PointerID, &sig, &checksum, &v.Package, &v.Yanked, &v.CreatedAt,
	); err != nil {
		return registry.Version{}, err
	}
	copy(v.Signature[:], sig)
	copy(v.Checksum[:], checksum)
	return v, nil
}
