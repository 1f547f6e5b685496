// Package ipfslayer implements the content-addressed-network-gateway
// storage.Layer backend: put uploads a blob and returns the gateway-assigned
// "/ipfs/<cid>" identifier; get fetches by that identifier. Modeled on the
// teacher's libindex.RemoteFetchArena HTTP-fetch-by-digest shape. See spec
// §4.C4 variant 1.
package ipfslayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	registry "github.com/ipfsreg/registry"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/ipfsreg/registry/storage/ipfslayer")
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// Layer talks to a single content-addressed network gateway over HTTP, in
// the add/cat style of Kubo's HTTP RPC API.
type Layer struct {
	client *http.Client
	base   string // e.g. "http://127.0.0.1:5001"
}

// New returns a Layer that calls the gateway at baseURL.
func New(client *http.Client, baseURL string) *Layer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Layer{client: client, base: strings.TrimSuffix(baseURL, "/")}
}

func (l *Layer) Name() string { return "ipfs:" + l.base }

type addResponse struct {
	Hash string `json:"Hash"`
}

// Put uploads blob via the gateway's "/api/v0/add" RPC and returns the
// "/ipfs/<cid>"-prefixed identifier it assigns. The gateway is itself
// content-addressed, so repeated uploads of the same blob are idempotent by
// construction.
func (l *Layer) Put(ctx context.Context, blob []byte) (key string, err error) {
	const op = "ipfslayer.Put"
	ctx, span := tracer.Start(ctx, "ipfslayer.Put")
	defer span.End()
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, ferr := mw.CreateFormFile("file", "blob")
	if ferr != nil {
		return "", registry.New(op, registry.ErrInternal, ferr, "building multipart body")
	}
	if _, ferr = fw.Write(blob); ferr != nil {
		return "", registry.New(op, registry.ErrInternal, ferr, "writing multipart body")
	}
	if ferr = mw.Close(); ferr != nil {
		return "", registry.New(op, registry.ErrInternal, ferr, "closing multipart body")
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, l.base+"/api/v0/add", &body)
	if rerr != nil {
		return "", registry.New(op, registry.ErrStorageWriteFailed, rerr, "building request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	span.SetAttributes(attribute.String("layer", l.Name()))

	resp, rerr := l.client.Do(req)
	if rerr != nil {
		return "", registry.New(op, registry.ErrStorageWriteFailed, rerr, "gateway add request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", registry.New(op, registry.ErrStorageWriteFailed, nil, fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}

	var ar addResponse
	if derr := decodeJSON(resp.Body, &ar); derr != nil {
		return "", registry.New(op, registry.ErrStorageWriteFailed, derr, "decoding gateway response")
	}
	if ar.Hash == "" {
		return "", registry.New(op, registry.ErrStorageWriteFailed, nil, "gateway returned empty hash")
	}
	return "/ipfs/" + ar.Hash, nil
}

// Get fetches the blob identified by key (a "/ipfs/<cid>" string, or a bare
// cid) via the gateway's "/api/v0/cat" RPC.
func (l *Layer) Get(ctx context.Context, key string) (blob []byte, err error) {
	const op = "ipfslayer.Get"
	ctx, span := tracer.Start(ctx, "ipfslayer.Get")
	defer span.End()
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	cid := strings.TrimPrefix(key, "/ipfs/")
	u := l.base + "/api/v0/cat?arg=" + url.QueryEscape(cid)
	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if rerr != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, rerr, "building request")
	}

	resp, rerr := l.client.Do(req)
	if rerr != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, rerr, "gateway cat request failed")
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusInternalServerError, http.StatusNotFound:
		return nil, registry.New(op, registry.ErrNotFound, nil, fmt.Sprintf("cid %q not found", cid))
	default:
		return nil, registry.New(op, registry.ErrStorageReadFailed, nil, fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}

	b, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, rerr, "reading gateway response body")
	}
	return b, nil
}

// Has issues a "/api/v0/object/stat" RPC and reports whether it succeeds.
func (l *Layer) Has(ctx context.Context, key string) (bool, error) {
	const op = "ipfslayer.Has"
	cid := strings.TrimPrefix(key, "/ipfs/")
	u := l.base + "/api/v0/object/stat?arg=" + url.QueryEscape(cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return false, registry.New(op, registry.ErrStorageReadFailed, err, "building request")
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false, registry.New(op, registry.ErrStorageReadFailed, err, "gateway stat request failed")
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
