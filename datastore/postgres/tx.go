package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/identifier"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// withTx runs fn inside a SERIALIZABLE transaction, per spec §5's
// shared-resource policy for every multi-statement C6 operation. A
// serialization failure rolls back and reruns fn, as PostgreSQL requires of
// serializable clients; the bound keeps a pathological interleaving from
// looping forever, and conflicting inserts still resolve deterministically
// through the unique constraints once the retries run dry.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	const maxAttempts = 4
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			(pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) &&
			ctx.Err() == nil {
			continue
		}
		return err
	}
	return err
}

func findOrCreatePublisherTx(ctx context.Context, tx pgx.Tx, addr registry.Address) (registry.Publisher, error) {
	const op = "postgres.findOrCreatePublisherTx"
	const query = `
		INSERT INTO publisher (address) VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = excluded.address
		RETURNING id, address, created_at`

	var p registry.Publisher
	var addrBytes []byte
	if err := tx.QueryRow(ctx, query, addr[:]).Scan(&p.ID, &addrBytes, &p.CreatedAt); err != nil {
		return registry.Publisher{}, registry.New(op, registry.ErrStorageReadFailed, err,
			fmt.Sprintf("failed to find or create publisher %s", addr))
	}
	copy(p.Address[:], addrBytes)
	return p, nil
}

// findOrCreatePackageIDTx looks up (or creates) the package named name
// within namespaceID, validating and skeletonizing via the identifier
// package, and returns its id.
func findOrCreatePackageIDTx(ctx context.Context, tx pgx.Tx, namespaceID int64, name string) (int64, error) {
	const op = "postgres.findOrCreatePackageIDTx"

	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM package WHERE namespace_id = $1 AND name = $2`, namespaceID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, registry.New(op, registry.ErrStorageReadFailed, err, "failed to look up package")
	}

	skeleton := identifier.Skeleton(name)
	err = tx.QueryRow(ctx, `
		INSERT INTO package (namespace_id, name, skeleton) VALUES ($1, $2, $3)
		ON CONFLICT (namespace_id, skeleton) DO UPDATE SET skeleton = excluded.skeleton
		RETURNING id`, namespaceID, name, skeleton).Scan(&id)
	if err != nil {
		return 0, registry.New(op, registry.ErrStorageWriteFailed, err, fmt.Sprintf("failed to create package %q", name))
	}
	return id, nil
}

// authorizeAgainstNamespace decides whether signerID may act on packageName
// within ns, per the rule shared by authorize_publish and yank_version in
// spec §4.C6: Allow iff signer is owner, or is a member with no
// restrictions or with packageName among its restrictions.
func authorizeAgainstNamespace(ctx context.Context, tx pgx.Tx, ns namespaceRow, signerID int64, packageName string) (registry.Decision, error) {
	const op = "postgres.authorizeAgainstNamespace"

	if signerID == ns.ownerID {
		return registry.Allow, nil
	}

	var administrator bool
	err := tx.QueryRow(ctx,
		`SELECT administrator FROM namespace_member WHERE namespace_id = $1 AND publisher_id = $2`,
		ns.id, signerID).Scan(&administrator)
	switch {
	case err == pgx.ErrNoRows:
		return registry.Deny, nil
	case err != nil:
		return registry.Deny, registry.New(op, registry.ErrStorageReadFailed, err, "failed to look up namespace membership")
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM publisher_restriction WHERE publisher_id = $1`, signerID).Scan(&count); err != nil {
		return registry.Deny, registry.New(op, registry.ErrStorageReadFailed, err, "failed to count publisher restrictions")
	}
	if count == 0 {
		return registry.Allow, nil
	}

	var restricted bool
	err = tx.QueryRow(ctx, `
		SELECT true FROM publisher_restriction pr
		JOIN package p ON p.id = pr.package_id
		WHERE pr.publisher_id = $1 AND p.namespace_id = $2 AND p.name = $3`,
		signerID, ns.id, packageName).Scan(&restricted)
	switch {
	case err == pgx.ErrNoRows:
		return registry.Deny, nil
	case err != nil:
		return registry.Deny, registry.New(op, registry.ErrStorageReadFailed, err, "failed to evaluate publisher restriction")
	default:
		return registry.Allow, nil
	}
}
