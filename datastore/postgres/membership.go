package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	registry "github.com/ipfsreg/registry"
)

// namespaceRow is the subset of namespace columns membership checks need.
type namespaceRow struct {
	id      int64
	ownerID int64
}

func (s *Store) namespaceByName(ctx context.Context, tx pgx.Tx, name string) (namespaceRow, error) {
	var ns namespaceRow
	err := tx.QueryRow(ctx, `SELECT id, owner_id FROM namespace WHERE name = $1`, name).Scan(&ns.id, &ns.ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return namespaceRow{}, registry.New("postgres.namespaceByName", registry.ErrNotFound, err,
			fmt.Sprintf("namespace %q not found", name))
	}
	if err != nil {
		return namespaceRow{}, registry.New("postgres.namespaceByName", registry.ErrStorageReadFailed, err,
			fmt.Sprintf("failed to look up namespace %q", name))
	}
	return ns, nil
}

// memberRow reports a publisher's standing within a namespace. isMember is
// false when the publisher holds no namespace_member row at all.
type memberRow struct {
	isMember      bool
	administrator bool
}

func (s *Store) memberOf(ctx context.Context, tx pgx.Tx, namespaceID, publisherID int64) (memberRow, error) {
	var m memberRow
	err := tx.QueryRow(ctx,
		`SELECT administrator FROM namespace_member WHERE namespace_id = $1 AND publisher_id = $2`,
		namespaceID, publisherID).Scan(&m.administrator)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return memberRow{}, nil
	case err != nil:
		return memberRow{}, registry.New("postgres.memberOf", registry.ErrStorageReadFailed, err,
			"failed to look up namespace membership")
	}
	m.isMember = true
	return m, nil
}

// AddMember implements spec §4.C6: authorized iff signer is owner, or signer
// is an administrator member adding a non-administrator.
func (s *Store) AddMember(ctx context.Context, namespace string, signer registry.Address, target registry.Address, administrator bool, restriction string) error {
	const op = "postgres.AddMember"

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		ns, err := s.namespaceByName(ctx, tx, namespace)
		if err != nil {
			return err
		}
		signerPub, err := findOrCreatePublisherTx(ctx, tx, signer)
		if err != nil {
			return err
		}

		isOwner := signerPub.ID == ns.ownerID
		if !isOwner {
			signerMember, err := s.memberOf(ctx, tx, ns.id, signerPub.ID)
			if err != nil {
				return err
			}
			if !signerMember.administrator || administrator {
				return registry.New(op, registry.ErrUnauthorized, nil,
					"signer is not authorized to add this member")
			}
		}

		targetPub, err := findOrCreatePublisherTx(ctx, tx, target)
		if err != nil {
			return err
		}
		existing, err := s.memberOf(ctx, tx, ns.id, targetPub.ID)
		if err != nil {
			return err
		}
		if existing.isMember {
			return registry.New(op, registry.ErrConflict, nil, "target is already a member of this namespace")
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO namespace_member (namespace_id, publisher_id, administrator) VALUES ($1, $2, $3)`,
			ns.id, targetPub.ID, administrator); err != nil {
			return registry.New(op, registry.ErrStorageWriteFailed, err, "failed to add member")
		}

		if restriction != "" {
			pkgID, err := findOrCreatePackageIDTx(ctx, tx, ns.id, restriction)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO publisher_restriction (publisher_id, package_id) VALUES ($1, $2)`,
				targetPub.ID, pkgID); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
					return nil
				}
				return registry.New(op, registry.ErrStorageWriteFailed, err, "failed to record publisher restriction")
			}
		}
		return nil
	})
}

// RemoveMember implements spec §4.C6: same authorization rules as AddMember;
// the owner can never be removed.
func (s *Store) RemoveMember(ctx context.Context, namespace string, signer registry.Address, target registry.Address) error {
	const op = "postgres.RemoveMember"

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		ns, err := s.namespaceByName(ctx, tx, namespace)
		if err != nil {
			return err
		}
		signerPub, err := findOrCreatePublisherTx(ctx, tx, signer)
		if err != nil {
			return err
		}
		targetPub, err := findOrCreatePublisherTx(ctx, tx, target)
		if err != nil {
			return err
		}
		if targetPub.ID == ns.ownerID {
			return registry.New(op, registry.ErrUnauthorized, nil, "cannot remove the namespace owner")
		}

		isOwner := signerPub.ID == ns.ownerID
		if !isOwner {
			signerMember, err := s.memberOf(ctx, tx, ns.id, signerPub.ID)
			if err != nil {
				return err
			}
			targetMember, err := s.memberOf(ctx, tx, ns.id, targetPub.ID)
			if err != nil {
				return err
			}
			if !signerMember.administrator || targetMember.administrator {
				return registry.New(op, registry.ErrUnauthorized, nil,
					"signer is not authorized to remove this member")
			}
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM namespace_member WHERE namespace_id = $1 AND publisher_id = $2`,
			ns.id, targetPub.ID)
		if err != nil {
			return registry.New(op, registry.ErrStorageWriteFailed, err, "failed to remove member")
		}
		if tag.RowsAffected() == 0 {
			return registry.New(op, registry.ErrNotFound, nil, "target is not a member of this namespace")
		}
		return nil
	})
}

// AuthorizePublish implements spec §4.C6: Allow iff signer is owner, or is a
// member with no restrictions or with packageName among its restrictions.
func (s *Store) AuthorizePublish(ctx context.Context, namespace string, signer registry.Address, packageName string) (registry.Decision, error) {
	var decision registry.Decision
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		ns, err := s.namespaceByName(ctx, tx, namespace)
		if err != nil {
			return err
		}
		signerPub, err := findOrCreatePublisherTx(ctx, tx, signer)
		if err != nil {
			return err
		}
		decision, err = authorizeAgainstNamespace(ctx, tx, ns, signerPub.ID, packageName)
		return err
	})
	return decision, err
}
