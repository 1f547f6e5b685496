package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/identifier"
)

const pgUniqueViolation = "23505"

func (s *Store) CreateNamespace(ctx context.Context, name string, owner registry.Address) (registry.Namespace, error) {
	const op = "postgres.CreateNamespace"

	skeleton := identifier.Skeleton(name)

	var ns registry.Namespace
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		// The skeleton-collision check runs before validation: a confusable
		// look-alike of a registered namespace is a Conflict even when the
		// candidate (say, a mixed-script spoof) would also fail Validate.
		var exists bool
		err := tx.QueryRow(ctx, `SELECT true FROM namespace WHERE name = $1 OR skeleton = $2`, name, skeleton).Scan(&exists)
		switch {
		case err == nil:
			return registry.New(op, registry.ErrConflict, nil,
				fmt.Sprintf("namespace %q collides with an existing name or a confusable skeleton", name))
		case !errors.Is(err, pgx.ErrNoRows):
			return registry.New(op, registry.ErrStorageReadFailed, err, "failed to check namespace collision")
		}

		if err := identifier.Validate(name); err != nil {
			return registry.New(op, registry.ErrBadRequest, err, "invalid namespace name")
		}

		pub, err := findOrCreatePublisherTx(ctx, tx, owner)
		if err != nil {
			return err
		}

		const query = `
			INSERT INTO namespace (owner_id, name, skeleton) VALUES ($1, $2, $3)
			RETURNING id, owner_id, name, skeleton, created_at`

		// The owner is an implicit super-admin and gets no namespace_member
		// row; every authorization check compares against owner_id directly.
		if err := tx.QueryRow(ctx, query, pub.ID, name, skeleton).
			Scan(&ns.ID, &ns.OwnerID, &ns.Name, &ns.Skeleton, &ns.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return registry.New(op, registry.ErrConflict, err,
					fmt.Sprintf("namespace %q collides with an existing name or a confusable skeleton", name))
			}
			return registry.New(op, registry.ErrStorageWriteFailed, err,
				fmt.Sprintf("failed to create namespace %q", name))
		}
		return nil
	})
	if err != nil {
		return registry.Namespace{}, err
	}
	return ns, nil
}
