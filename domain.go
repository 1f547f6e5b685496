package registry

import (
	"encoding/hex"
	"strconv"
	"time"
)

// Address is a 20-byte publisher address: the rightmost 20 bytes of the
// Keccak-256 hash of an uncompressed secp256k1 public key. See the address
// package for recovery from a signature.
type Address [20]byte

// String renders the address as a "0x"-prefixed lowercase hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Signature is a 65-byte recoverable ECDSA signature: 32 bytes r, 32 bytes s,
// 1 byte recovery id. The recovery id may be presented in either the {0,1}
// or {27,28} convention; see the address package.
type Signature [65]byte

// Checksum is a SHA-256 digest of an archive blob.
type Checksum [32]byte

// String renders the checksum as a lowercase hex string.
func (c Checksum) String() string { return hex.EncodeToString(c[:]) }

// Publisher is an account identified by a recovered address. Created on
// first successful signup; never deleted. See spec §3.
type Publisher struct {
	ID        int64
	Address   Address
	CreatedAt time.Time
}

// Namespace is a publisher-owned naming scope. Name and Skeleton are both
// globally unique; Owner is immutable once set. See spec §3.
type Namespace struct {
	ID        int64
	OwnerID   int64
	Name      string
	Skeleton  string
	CreatedAt time.Time
}

// NamespaceMember grants publishing rights within a Namespace. The
// namespace's owner is an implicit super-admin and has no row here.
type NamespaceMember struct {
	NamespaceID   int64
	PublisherID   int64
	Administrator bool
}

// PublisherRestriction limits a publisher, within the namespaces they are a
// member of, to publishing only the listed packages. Absence of any rows for
// a publisher means unrestricted (within namespaces they belong to).
type PublisherRestriction struct {
	PublisherID int64
	PackageID   int64
}

// Package is created implicitly on its first version. (NamespaceID,
// Skeleton) is unique. See spec §3.
type Package struct {
	ID          int64
	NamespaceID int64
	Name        string
	Skeleton    string
	CreatedAt   time.Time

	// LatestVersion is populated by list_packages when called with
	// VersionsLatest; nil otherwise or if the package has no versions.
	LatestVersion *Version
}

// Version is one published release of a Package. Uniqueness is
// (PackageID, Major, Minor, Patch, Pre, Build). ContentID is the opaque key
// returned by the primary storage layer; PointerID is
// hex(Keccak256("namespace/package/version")), used for pointer-form lookup.
// See spec §3 and §4.C8.
type Version struct {
	ID          int64
	PackageID   int64
	PublisherID int64

	Major, Minor, Patch int64
	Pre, Build          string

	ContentID string
	PointerID string
	Signature Signature
	Checksum  Checksum
	Package   []byte // raw extracted manifest JSON, spec §3 "package: JSON text"

	Yanked    *string
	CreatedAt time.Time
}

// SemverString renders the dotted major.minor.patch[-pre][+build] form.
func (v Version) SemverString() string {
	s := strconv.FormatInt(v.Major, 10) + "." +
		strconv.FormatInt(v.Minor, 10) + "." +
		strconv.FormatInt(v.Patch, 10)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Decision is the result of an authorization check (spec §4.C6
// authorize_publish / yank authorization).
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// SortOrder is the deterministic sort direction for paginated reads. See
// spec §4.C6.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// VersionIncludeMode controls whether list_packages attaches the latest
// version per package. See spec §4.C6.
type VersionIncludeMode int

const (
	VersionsNone VersionIncludeMode = iota
	VersionsLatest
)
