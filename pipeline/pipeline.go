// Package pipeline orchestrates the publish pipeline (spec §4.C7): the
// single exported type strings together signature recovery, authorization,
// archive introspection, checksum, mirrored storage, and metadata commit,
// the way Libindex strings together fetch, layer-scan, and index-report
// commit in the teacher's libindex package.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/address"
	"github.com/ipfsreg/registry/archive"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/identifier"
	"github.com/ipfsreg/registry/internal/semver"
	"github.com/ipfsreg/registry/storage"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/ipfsreg/registry/pipeline")
}

// DefaultBodyLimit is the default maximum accepted archive size (spec §6,
// "registry.body-limit").
const DefaultBodyLimit = 16 << 20

// Options configures a Pipeline. Store and Mirror are required; the rest
// have spec-mandated defaults applied by New.
type Options struct {
	Store  datastore.Store
	Mirror storage.Layer

	// ArchiveKind selects which archive.Kind to introspect uploads as.
	// Defaults to archive.Npm.
	ArchiveKind archive.Kind
	// BodyLimit bounds accepted archive size in bytes. Defaults to
	// DefaultBodyLimit.
	BodyLimit int64
	// Allow, if non-empty, restricts publishing to these addresses. Deny
	// always takes precedence. Both are read-only after startup (spec §9
	// "global mutable state").
	Allow []registry.Address
	Deny  []registry.Address
}

// Pipeline implements the publish pipeline described in spec §4.C7.
type Pipeline struct {
	*Options
}

// New validates opts and returns a ready Pipeline.
func New(opts *Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: field Store cannot be nil")
	}
	if opts.Mirror == nil {
		return nil, fmt.Errorf("pipeline: field Mirror cannot be nil")
	}
	if opts.ArchiveKind == "" {
		opts.ArchiveKind = archive.Npm
	}
	if opts.BodyLimit == 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	return &Pipeline{Options: opts}, nil
}

// PublishRequest is the input to Publish: a signed archive upload targeting
// a namespace, per spec §6's POST /api/package/{namespace}.
type PublishRequest struct {
	Namespace   string
	Body        []byte
	Signature   registry.Signature
	ContentType string
}

// PublishResult is what Publish returns on success: the committed version
// row plus the identifier the spec's API surface reports as "id".
type PublishResult struct {
	Version registry.Version
	ID      string
}

// Publish runs the eleven-step pipeline of spec §4.C7.
func (p *Pipeline) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	const op = "pipeline.Publish"
	reqID := uuid.NewString()
	ctx = zlog.ContextWithValues(ctx, "component", "pipeline.Publish", "request_id", reqID)
	ctx, span := tracer.Start(ctx, "pipeline.Publish")
	defer span.End()

	var err error
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	// 1. Body size.
	if int64(len(req.Body)) > p.BodyLimit {
		err = registry.New(op, registry.ErrPayloadTooLarge, nil,
			fmt.Sprintf("body of %d bytes exceeds configured limit of %d", len(req.Body), p.BodyLimit))
		return PublishResult{}, err
	}

	// 2. Content type.
	if req.ContentType != p.ArchiveKind.MIME() {
		err = registry.New(op, registry.ErrUnsupportedMediaType, nil,
			fmt.Sprintf("content type %q does not match configured archive mime %q", req.ContentType, p.ArchiveKind.MIME()))
		return PublishResult{}, err
	}

	// 3. Recover signer.
	signer, err := address.Recover(req.Signature, req.Body)
	if err != nil {
		return PublishResult{}, err
	}

	// 4. Allow/deny.
	if addressIn(signer, p.Deny) || (len(p.Allow) > 0 && !addressIn(signer, p.Allow)) {
		err = registry.New(op, registry.ErrUnauthorized, nil, "signer address is not permitted to publish")
		return PublishResult{}, err
	}

	// 7. Introspect archive (done before authorize_publish needs the package
	// name; spec numbers this step 7 but the package name it extracts is an
	// input to step 6, so introspection runs here).
	result, err := archive.Introspect(p.ArchiveKind, req.Body)
	if err != nil {
		return PublishResult{}, err
	}
	if err = identifier.Validate(result.Name); err != nil {
		err = registry.New(op, registry.ErrBadRequest, err, "invalid package name")
		return PublishResult{}, err
	}

	// 6. Authorize.
	decision, err := p.Store.AuthorizePublish(ctx, req.Namespace, signer, result.Name)
	if err != nil {
		return PublishResult{}, err
	}
	if decision != registry.Allow {
		err = registry.New(op, registry.ErrUnauthorized, nil, "signer is not authorized to publish this package")
		return PublishResult{}, err
	}

	version, err := semver.Parse(result.Version)
	if err != nil {
		err = registry.New(op, registry.ErrBadRequest, err, "invalid semver version")
		return PublishResult{}, err
	}

	// 8. Checksum.
	sum := sha256.Sum256(req.Body)
	var checksum registry.Checksum
	copy(checksum[:], sum[:])

	// 9. Pointer id.
	pointerID := hex.EncodeToString(address.Keccak256([]byte(req.Namespace + "/" + result.Name + "/" + result.Version)))

	// 10. Mirror write.
	contentID, err := p.Mirror.Put(ctx, req.Body)
	if err != nil {
		return PublishResult{}, err
	}

	// 11. Metadata commit.
	v, err := p.Store.InsertVersion(ctx, req.Namespace, result.Name, signer, version, contentID, pointerID, req.Signature, checksum, result.Metadata)
	if err != nil {
		return PublishResult{}, err
	}

	zlog.Info(ctx).Str("pointer_id", pointerID).Str("content_id", contentID).Msg("publish committed")
	return PublishResult{Version: v, ID: req.Namespace + "/" + result.Name + "/" + result.Version}, nil
}

func addressIn(a registry.Address, set []registry.Address) bool {
	for _, s := range set {
		if s == a {
			return true
		}
	}
	return false
}
