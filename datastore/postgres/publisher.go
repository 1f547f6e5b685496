package postgres

import (
	"context"
	"fmt"

	registry "github.com/ipfsreg/registry"
)

// FindOrCreatePublisher upserts addr's row. The "(xmax = 0)" trick reports
// whether this statement was the one that inserted the row (true) versus one
// that hit the ON CONFLICT branch on an already-existing row (false):
// freshly inserted tuples carry xmax 0, while a row touched by the conflict
// UPDATE carries the current transaction's xid.
func (s *Store) FindOrCreatePublisher(ctx context.Context, addr registry.Address) (registry.Publisher, bool, error) {
	const op = "postgres.FindOrCreatePublisher"
	const query = `
		INSERT INTO publisher (address) VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = excluded.address
		RETURNING id, address, created_at, (xmax = 0) AS inserted`

	var p registry.Publisher
	var addrBytes []byte
	var created bool
	row := s.pool.QueryRow(ctx, query, addr[:])
	if err := row.Scan(&p.ID, &addrBytes, &p.CreatedAt, &created); err != nil {
		return registry.Publisher{}, false, registry.New(op, registry.ErrStorageReadFailed, err,
			fmt.Sprintf("failed to find or create publisher %s", addr))
	}
	copy(p.Address[:], addrBytes)
	return p, created, nil
}

func (s *Store) PublisherByID(ctx context.Context, id int64) (registry.Publisher, error) {
	const op = "postgres.PublisherByID"
	const query = `SELECT id, address, created_at FROM publisher WHERE id = $1`

	var p registry.Publisher
	var addrBytes []byte
	row := s.pool.QueryRow(ctx, query, id)
	if err := row.Scan(&p.ID, &addrBytes, &p.CreatedAt); err != nil {
		return registry.Publisher{}, registry.New(op, registry.ErrNotFound, err,
			fmt.Sprintf("publisher %d not found", id))
	}
	copy(p.Address[:], addrBytes)
	return p, nil
}
