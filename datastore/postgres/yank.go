package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	registry "github.com/ipfsreg/registry"
)

// YankVersion implements spec §4.C6: authorized as for AuthorizePublish,
// requires yanked IS NULL.
func (s *Store) YankVersion(ctx context.Context, versionID int64, signer registry.Address, reason string) error {
	const op = "postgres.YankVersion"

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var namespaceName, packageName string
		var yanked *string
		err := tx.QueryRow(ctx, `
			SELECT n.name, p.name, v.yanked
			FROM version v
			JOIN package p ON p.id = v.package_id
			JOIN namespace n ON n.id = p.namespace_id
			WHERE v.id = $1`, versionID).Scan(&namespaceName, &packageName, &yanked)
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.New(op, registry.ErrNotFound, err, "version not found")
		}
		if err != nil {
			return registry.New(op, registry.ErrStorageReadFailed, err, "failed to look up version")
		}
		if yanked != nil {
			return registry.New(op, registry.ErrConflict, nil, "version is already yanked")
		}

		ns, err := s.namespaceByName(ctx, tx, namespaceName)
		if err != nil {
			return err
		}
		signerPub, err := findOrCreatePublisherTx(ctx, tx, signer)
		if err != nil {
			return err
		}
		decision, err := authorizeAgainstNamespace(ctx, tx, ns, signerPub.ID, packageName)
		if err != nil {
			return err
		}
		if decision != registry.Allow {
			return registry.New(op, registry.ErrUnauthorized, nil, "signer is not authorized to yank this version")
		}

		if _, err := tx.Exec(ctx, `UPDATE version SET yanked = $1 WHERE id = $2`, reason, versionID); err != nil {
			return registry.New(op, registry.ErrStorageWriteFailed, err, "failed to mark version yanked")
		}
		return nil
	})
}
