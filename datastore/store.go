// Package datastore defines the transactional metadata-store contract (spec
// §4.C6) that datastore/postgres implements. Keeping the interface in its
// own package (rather than alongside the concrete implementation, or in the
// root registry package) lets the publish pipeline and resolver depend on
// the contract without pulling in pgx.
package datastore

import (
	"context"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/internal/semver"
)

// ListOpts bounds and orders a paginated read. See spec §4.C6.
type ListOpts struct {
	Limit  int
	Offset int
	Sort   registry.SortOrder
}

// VersionRange optionally narrows list_versions to a semver range; nil means
// "no filter".
type VersionRange struct {
	Min, Max *semver.Parsed
	// MinInclusive/MaxInclusive set to true select >= / <= bounds; their zero
	// value false gives strict > / < bounds.
	MinInclusive, MaxInclusive bool
}

// Store is the transactional interface the publish pipeline, identifier
// resolver, and api/http handlers use for all metadata access. See spec
// §4.C6 for the semantics of each method.
type Store interface {
	// FindOrCreatePublisher returns the Publisher for addr, creating it (and
	// recording CreatedAt as now) if this is its first signup. created
	// reports whether this call was the one that created the row, so the
	// api/http signup handler can return 409 on a repeat signup per spec §6.
	FindOrCreatePublisher(ctx context.Context, addr registry.Address) (p registry.Publisher, created bool, err error)

	// PublisherByID returns the Publisher row for id, used by the identifier
	// resolver (spec §4.C8) to compare a version's recovered signer against
	// its recorded publisher.
	PublisherByID(ctx context.Context, id int64) (registry.Publisher, error)

	// CreateNamespace registers name, owned by owner. Fails ErrConflict on
	// name or skeleton collision; fails ErrBadRequest if name doesn't
	// validate under the identifier package's rules.
	CreateNamespace(ctx context.Context, name string, owner registry.Address) (registry.Namespace, error)

	// AddMember adds target as a member of namespace, authorized per spec
	// §4.C6 (signer must be owner, or signer must be a non-"administrator"-
	// granting administrator). restriction, if non-empty, limits target to
	// publishing only that package name within namespace.
	AddMember(ctx context.Context, namespace string, signer registry.Address, target registry.Address, administrator bool, restriction string) error

	// RemoveMember removes target from namespace's membership, under the
	// same authorization rules as AddMember. The owner can never be removed.
	RemoveMember(ctx context.Context, namespace string, signer registry.Address, target registry.Address) error

	// AuthorizePublish reports whether signer may publish packageName within
	// namespace: owner always can; a member can unless restricted to a
	// different package list. See spec §4.C6.
	AuthorizePublish(ctx context.Context, namespace string, signer registry.Address, packageName string) (registry.Decision, error)

	// InsertVersion looks up or creates the (namespace, packageName) package,
	// verifies the strictly-ahead invariant against every existing version of
	// that package (spec §3 invariant 4), and inserts version within one
	// transaction. Fails ErrConflict if not strictly ahead or if the exact
	// (package, version) tuple already exists.
	InsertVersion(ctx context.Context, namespace, packageName string, publisher registry.Address, version semver.Parsed, contentID, pointerID string, sig registry.Signature, checksum registry.Checksum, metadata []byte) (registry.Version, error)

	// ResolvePointer looks up a version by its human-readable coordinates.
	ResolvePointer(ctx context.Context, namespace, packageName, version string) (registry.Version, error)
	// ResolvePointerID looks up a version by its pointer_id (spec §3).
	ResolvePointerID(ctx context.Context, pointerID string) (registry.Version, error)

	// YankVersion marks versionID yanked with reason, authorized as for
	// AuthorizePublish. Fails ErrConflict if already yanked.
	YankVersion(ctx context.Context, versionID int64, signer registry.Address, reason string) error

	// ListPackages returns packages in namespace, deterministically ordered
	// by (created_at, package_id), optionally attaching each package's
	// latest version.
	ListPackages(ctx context.Context, namespace string, opts ListOpts, with registry.VersionIncludeMode) ([]registry.Package, error)
	// ListVersions returns versions of (namespace, packageName), optionally
	// bounded by rng, deterministically ordered by
	// (major, minor, patch, pre-null-last, pre, build).
	ListVersions(ctx context.Context, namespace, packageName string, rng *VersionRange, opts ListOpts) ([]registry.Version, error)
	// LatestVersion returns the highest-ordered version of (namespace,
	// packageName); includePrerelease controls whether prerelease versions
	// are eligible.
	LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (registry.Version, error)

	// Ping checks connectivity to the underlying database.
	Ping(ctx context.Context) error
	// Close releases underlying resources (e.g. the connection pool).
	Close(ctx context.Context) error
}
