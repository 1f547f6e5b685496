// Package resolver implements the identifier resolver (spec §4.C8): it
// parses an incoming id as either a "/ipfs/<cid>"-style direct storage
// reference or a "namespace/package/version" pointer reference, and routes
// the read to the right collaborator. Pointer-form reads are additionally
// verified against the recorded checksum and signer, since the name→content
// mapping is operator-mutable (see spec GLOSSARY "Pointer reference").
package resolver

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/address"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/storage"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/ipfsreg/registry/resolver")
}

// directPrefix is the scheme a direct storage reference is given under, per
// spec §4.C8.
const directPrefix = "/ipfs/"

// Resolver routes a fetch-by-id call to either the metadata store (pointer
// form) or directly to storage (direct form).
type Resolver struct {
	Store  datastore.Store
	Mirror storage.Layer
}

// New returns a Resolver over store and mirror, both required.
func New(store datastore.Store, mirror storage.Layer) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("resolver: field Store cannot be nil")
	}
	if mirror == nil {
		return nil, fmt.Errorf("resolver: field Mirror cannot be nil")
	}
	return &Resolver{Store: store, Mirror: mirror}, nil
}

// Result is what Fetch returns: the raw blob, and — for pointer-form
// references only — the resolved Version row the blob was checked against.
// Version is the zero value for direct-form references, since no metadata
// lookup happens in that path.
type Result struct {
	Blob    []byte
	Version registry.Version
	Direct  bool
}

// Fetch resolves id and returns its blob. If id begins with "/ipfs/" it is
// read directly from storage with no integrity verification possible (spec
// §4.C8): the caller is trusting the direct reference as-is. Otherwise id is
// parsed as "namespace/package/version", resolved through the metadata
// store, fetched via the mirror using the resolved content_id, and verified
// with fetchAndVerify.
func (r *Resolver) Fetch(ctx context.Context, id string) (Result, error) {
	ctx, span := tracer.Start(ctx, "resolver.Fetch")
	defer span.End()

	var err error
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	if strings.HasPrefix(id, directPrefix) {
		blob, ferr := r.Mirror.Get(ctx, id)
		if ferr != nil {
			err = ferr
			return Result{}, err
		}
		return Result{Blob: blob, Direct: true}, nil
	}

	namespace, pkg, version, perr := parsePointer(id)
	if perr != nil {
		err = perr
		return Result{}, err
	}

	v, rerr := r.Store.ResolvePointer(ctx, namespace, pkg, version)
	if rerr != nil {
		err = rerr
		return Result{}, err
	}

	res, verr := r.fetchAndVerify(ctx, v, id)
	err = verr
	return res, err
}

// ResolvePointerID behaves like Fetch but looks the version up by its
// pointer_id (hex(Keccak256(namespace/package/version))) instead of parsing
// the dotted coordinates out of id, for callers that already hold a
// pointer_id.
func (r *Resolver) ResolvePointerID(ctx context.Context, pointerID string) (Result, error) {
	v, err := r.Store.ResolvePointerID(ctx, pointerID)
	if err != nil {
		return Result{}, err
	}
	return r.fetchAndVerify(ctx, v, pointerID)
}

// fetchAndVerify reads v's blob from the mirror by its content_id, then
// checks SHA-256(blob) against v.Checksum and recovers the signer of
// v.Signature over blob, comparing it against v's recorded publisher. Either
// mismatch is reported as ErrIntegrityFailure (spec §4.C8): the stored blob
// was tampered with, or the namespace/package/version pointer was swapped by
// the operator to point at a different version's content.
func (r *Resolver) fetchAndVerify(ctx context.Context, v registry.Version, label string) (Result, error) {
	const op = "resolver.fetchAndVerify"

	blob, err := r.Mirror.Get(ctx, v.ContentID)
	if err != nil {
		return Result{}, err
	}

	sum := sha256.Sum256(blob)
	var checksum registry.Checksum
	copy(checksum[:], sum[:])
	if checksum != v.Checksum {
		return Result{}, registry.New(op, registry.ErrIntegrityFailure, nil,
			fmt.Sprintf("%s: checksum mismatch (got %s, want %s)", label, checksum, v.Checksum))
	}

	signer, err := address.Recover(v.Signature, blob)
	if err != nil {
		return Result{}, registry.New(op, registry.ErrIntegrityFailure, err,
			fmt.Sprintf("%s: recorded signature does not recover against blob", label))
	}

	publisher, err := r.Store.PublisherByID(ctx, v.PublisherID)
	if err != nil {
		return Result{}, err
	}
	if signer != publisher.Address {
		return Result{}, registry.New(op, registry.ErrIntegrityFailure, nil,
			fmt.Sprintf("%s: recovered signer %s does not match recorded publisher %s", label, signer, publisher.Address))
	}

	return Result{Blob: blob, Version: v}, nil
}

// parsePointer splits id into its three "/"-separated pointer coordinates.
func parsePointer(id string) (namespace, pkg, version string, err error) {
	const op = "resolver.parsePointer"
	parts := strings.SplitN(id, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", registry.New(op, registry.ErrBadRequest, nil,
			fmt.Sprintf("id %q is not a valid namespace/package/version pointer", id))
	}
	return parts[0], parts[1], parts[2], nil
}
