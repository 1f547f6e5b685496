// Package mirror implements the layered-store fan-out protocol: write to
// every configured storage.Layer in order with all-or-nothing success;
// read from the first layer that can serve. See spec §4.C5.
package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/storage"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/ipfsreg/registry/storage/mirror")
}

// Mirror holds an ordered, non-empty list of storage layers. The first layer
// is primary: its Put key is the one callers should treat as canonical
// (spec §4.C4's content_id). Mirror is itself a storage.Layer, so callers
// that take a single layer (the publish pipeline, the resolver) can be
// handed a mirror without knowing it fans out.
type Mirror struct {
	layers     []storage.Layer
	opDeadline time.Duration
}

var _ storage.Layer = (*Mirror)(nil)

// New returns a Mirror over layers in the given order. Panics if layers is
// empty, since spec §4.C5 requires length ≥ 1 and every other method assumes
// a primary layer exists.
func New(layers ...storage.Layer) *Mirror {
	if len(layers) == 0 {
		panic("mirror: at least one storage layer is required")
	}
	return &Mirror{layers: layers}
}

// NewWithDeadline is New with a per-layer-operation deadline: each
// individual layer call gets at most d before it is cancelled and reported
// as a storage failure. d <= 0 means no deadline.
func NewWithDeadline(d time.Duration, layers ...storage.Layer) *Mirror {
	m := New(layers...)
	m.opDeadline = d
	return m
}

// Name identifies the mirror by its layer list.
func (m *Mirror) Name() string {
	names := make([]string, len(m.layers))
	for i, l := range m.layers {
		names[i] = l.Name()
	}
	return "mirror[" + strings.Join(names, ",") + "]"
}

// opCtx bounds a single layer operation by the configured deadline.
func (m *Mirror) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opDeadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.opDeadline)
}

// Primary returns the canonical (first) layer.
func (m *Mirror) Primary() storage.Layer { return m.layers[0] }

// Put writes blob to every layer in configured order, sequentially, aborting
// on the first failure. There is no rollback of already-written layers: since
// every layer is content-addressed, a leftover blob on a layer that
// succeeded before a later layer failed is a harmless duplicate. Returns the
// primary layer's key. See spec §4.C5 "Write".
func (m *Mirror) Put(ctx context.Context, blob []byte) (key string, err error) {
	const op = "mirror.Put"
	ctx, span := tracer.Start(ctx, "mirror.Put")
	defer span.End()
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	var primaryKey string
	for i, l := range m.layers {
		if err := ctx.Err(); err != nil {
			return "", registry.New(op, registry.ErrStorageWriteFailed, err,
				fmt.Sprintf("layer %d (%s): context canceled", i, l.Name()))
		}
		lctx, cancel := m.opCtx(ctx)
		k, err := l.Put(lctx, blob)
		cancel()
		if err != nil {
			span.SetAttributes(attribute.Int("failed_layer_index", i))
			return "", registry.New(op, registry.ErrStorageWriteFailed, err,
				fmt.Sprintf("layer %d (%s) write failed", i, l.Name()))
		}
		if i == 0 {
			primaryKey = k
		}
	}
	return primaryKey, nil
}

// Get iterates layers in order and returns the first successful Get. A
// per-layer ErrNotFound is not fatal: the mirror only reports ErrNotFound if
// every layer reports it. Any other per-layer error short-circuits as
// ErrStorageReadFailed. See spec §4.C5 "Read".
func (m *Mirror) Get(ctx context.Context, key string) (blob []byte, err error) {
	const op = "mirror.Get"
	ctx, span := tracer.Start(ctx, "mirror.Get")
	defer span.End()
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	for i, l := range m.layers {
		lctx, cancel := m.opCtx(ctx)
		b, lerr := l.Get(lctx, key)
		cancel()
		switch {
		case lerr == nil:
			return b, nil
		case registry.KindOf(lerr) == registry.ErrNotFound:
			continue
		default:
			span.SetAttributes(attribute.Int("failed_layer_index", i))
			return nil, registry.New(op, registry.ErrStorageReadFailed, lerr,
				fmt.Sprintf("layer %d (%s) read failed", i, l.Name()))
		}
	}
	return nil, registry.New(op, registry.ErrNotFound, nil, fmt.Sprintf("key %q not found in any layer", key))
}

// Has reports whether the primary layer has key; the other layers are not
// consulted. See spec §4.C5 "Has".
func (m *Mirror) Has(ctx context.Context, key string) (bool, error) {
	return m.Primary().Has(ctx, key)
}
