// Package http wires api's request/response contracts to net/http handlers:
// one handler method on API per endpoint, a {code, message} JSON body on
// every error path.
// TLS termination, CORS, and any broader HTTP framework are left to the
// operator per spec §1's stated non-goals; this package only implements the
// request surface named in spec §6.
package http

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/quay/zlog"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/address"
	"github.com/ipfsreg/registry/api"
	"github.com/ipfsreg/registry/archive"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/internal/semver"
	"github.com/ipfsreg/registry/pipeline"
	"github.com/ipfsreg/registry/resolver"
)

// API bundles the collaborators every handler needs.
type API struct {
	Store     datastore.Store
	Pipeline  *pipeline.Pipeline
	Resolver  *resolver.Resolver
	Archive   archive.Kind
	BodyLimit int64
}

// NewMux registers every endpoint named in spec §6 on a fresh ServeMux.
func NewMux(a *API) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/publisher", a.signup)
	mux.HandleFunc("POST /api/namespace/{namespace}", a.createNamespace)
	mux.HandleFunc("POST /api/namespace/{namespace}/user/{address}", a.addMember)
	mux.HandleFunc("DELETE /api/namespace/{namespace}/user/{address}", a.removeMember)
	mux.HandleFunc("POST /api/package/{namespace}", a.publish)
	mux.HandleFunc("GET /api/package", a.getBlob)
	mux.HandleFunc("GET /api/package/{namespace}", a.listPackages)
	mux.HandleFunc("GET /api/package/{namespace}/{package}", a.listVersions)
	mux.HandleFunc("GET /api/package/{namespace}/{package}/latest", a.latestVersion)
	mux.HandleFunc("GET /api/package/version", a.versionMetadata)
	mux.HandleFunc("POST /api/package/yank", a.yank)
	return mux
}

// errResponse is the JSON body every failing endpoint returns. Code is the
// registry.ErrorKind string, so clients can dispatch on it without parsing
// Message.
type errResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorResponse maps a registry.Error (or any error wrapping one) to its
// spec §7 HTTP status and body.
func errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	kind := registry.KindOf(err)
	zlog.Info(r.Context()).Err(err).Str("kind", string(kind)).Msg("request failed")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(&errResponse{Code: string(kind), Message: err.Error()})
}

func statusFor(kind registry.ErrorKind) int {
	switch kind {
	case registry.ErrBadRequest:
		return http.StatusBadRequest
	case registry.ErrUnauthorized:
		return http.StatusUnauthorized
	case registry.ErrNotFound:
		return http.StatusNotFound
	case registry.ErrConflict:
		return http.StatusConflict
	case registry.ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case registry.ErrUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case registry.ErrIntegrityFailure:
		return http.StatusBadGateway
	case registry.ErrStorageWriteFailed:
		return http.StatusBadGateway
	case registry.ErrStorageReadFailed:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// signatureHeader reads and decodes the "x-signature" header: base64 of
// exactly 65 bytes (spec §6 "Signature header").
func signatureHeader(r *http.Request) (registry.Signature, error) {
	const op = "http.signatureHeader"
	h := r.Header.Get("x-signature")
	if h == "" {
		return registry.Signature{}, registry.New(op, registry.ErrUnauthorized, nil, "missing x-signature header")
	}
	raw, err := base64.StdEncoding.DecodeString(h)
	if err != nil {
		return registry.Signature{}, registry.New(op, registry.ErrUnauthorized, err, "x-signature is not valid base64")
	}
	if len(raw) != address.SignatureLength {
		return registry.Signature{}, registry.New(op, registry.ErrUnauthorized, nil,
			"x-signature must decode to exactly 65 bytes")
	}
	var sig registry.Signature
	copy(sig[:], raw)
	return sig, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// signup implements "POST /api/publisher".
func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	sig, err := signatureHeader(r)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	signer, err := address.Recover(sig, []byte(address.SignupPayload))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	pub, created, err := a.Store.FindOrCreatePublisher(r.Context(), signer)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	if !created {
		errorResponse(w, r, registry.New("http.signup", registry.ErrConflict, nil, "publisher already registered"))
		return
	}
	writeJSON(w, http.StatusOK, api.SignupResponse{Address: pub.Address.String(), CreatedAt: pub.CreatedAt})
}

// createNamespace implements "POST /api/namespace/{namespace}".
func (a *API) createNamespace(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("namespace")
	sig, err := signatureHeader(r)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	owner, err := address.Recover(sig, []byte(name))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	ns, err := a.Store.CreateNamespace(r.Context(), name, owner)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NamespaceResponse{Name: ns.Name, Owner: owner.String(), CreatedAt: ns.CreatedAt})
}

func parseTargetAddress(s string) (registry.Address, error) {
	const op = "http.parseTargetAddress"
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(registry.Address{}) {
		return registry.Address{}, registry.New(op, registry.ErrBadRequest, err, "address must be 20 bytes hex-encoded")
	}
	var addr registry.Address
	copy(addr[:], raw)
	return addr, nil
}

// addMember implements "POST /api/namespace/{namespace}/user/{address}".
func (a *API) addMember(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	target, err := parseTargetAddress(r.PathValue("address"))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	sig, err := signatureHeader(r)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	signer, err := address.Recover(sig, []byte(r.PathValue("address")))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	admin, _ := strconv.ParseBool(r.URL.Query().Get("admin"))
	restriction := r.URL.Query().Get("package")

	if err := a.Store.AddMember(r.Context(), namespace, signer, target, admin, restriction); err != nil {
		errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"namespace": namespace, "address": target.String()})
}

// removeMember implements "DELETE /api/namespace/{namespace}/user/{address}".
func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	target, err := parseTargetAddress(r.PathValue("address"))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	sig, err := signatureHeader(r)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	signer, err := address.Recover(sig, []byte(r.PathValue("address")))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	if err := a.Store.RemoveMember(r.Context(), namespace, signer, target); err != nil {
		errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"namespace": namespace, "address": target.String()})
}

// publish implements "POST /api/package/{namespace}".
func (a *API) publish(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	sig, err := signatureHeader(r)
	if err != nil {
		errorResponse(w, r, err)
		return
	}

	limit := a.BodyLimit
	if limit == 0 {
		limit = pipeline.DefaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		errorResponse(w, r, registry.New("http.publish", registry.ErrInternal, err, "failed to read body"))
		return
	}

	res, err := a.Pipeline.Publish(r.Context(), pipeline.PublishRequest{
		Namespace:   namespace,
		Body:        body,
		Signature:   sig,
		ContentType: r.Header.Get("content-type"),
	})
	if err != nil {
		errorResponse(w, r, err)
		return
	}

	resp := api.PublishResponse{
		ID:       res.ID,
		Key:      res.Version.ContentID,
		Checksum: res.Version.Checksum.String(),
	}
	resp.Artifact.Namespace = namespace
	resp.Artifact.Package.Name = strings.Split(res.ID, "/")[1]
	resp.Artifact.Package.Version = res.Version.SemverString()
	writeJSON(w, http.StatusOK, resp)
}

// getBlob implements "GET /api/package?id=...".
func (a *API) getBlob(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errorResponse(w, r, registry.New("http.getBlob", registry.ErrBadRequest, nil, "missing id query parameter"))
		return
	}
	res, err := a.Resolver.Fetch(r.Context(), id)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", a.Archive.MIME())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Blob)
}

func parseListOpts(r *http.Request) datastore.ListOpts {
	q := r.URL.Query()
	opts := datastore.ListOpts{Limit: 50}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	if strings.EqualFold(q.Get("sort"), "desc") {
		opts.Sort = registry.Descending
	}
	return opts
}

// listPackages implements "GET /api/package/{namespace}".
func (a *API) listPackages(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	pkgs, err := a.Store.ListPackages(r.Context(), namespace, parseListOpts(r), registry.VersionsLatest)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	out := make([]api.PackageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, api.ToPackageResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// listVersions implements "GET /api/package/{namespace}/{package}?range=...".
func (a *API) listVersions(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	pkg := r.PathValue("package")
	rng, err := parseVersionRange(r.URL.Query().Get("range"))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	versions, err := a.Store.ListVersions(r.Context(), namespace, pkg, rng, parseListOpts(r))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	out := make([]api.VersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, api.ToVersionResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseVersionRange parses "range=min..max" (either bound may be omitted,
// e.g. "1.0.0.." or "..2.0.0") into a datastore.VersionRange. An empty
// string means no filter. Bounds are inclusive.
func parseVersionRange(s string) (*datastore.VersionRange, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, "..", 2)
	if len(parts) != 2 {
		return nil, registry.New("http.parseVersionRange", registry.ErrBadRequest, nil,
			"range must be of the form min..max")
	}
	rng := &datastore.VersionRange{MinInclusive: true, MaxInclusive: true}
	if parts[0] != "" {
		min, err := semver.Parse(parts[0])
		if err != nil {
			return nil, err
		}
		rng.Min = &min
	}
	if parts[1] != "" {
		max, err := semver.Parse(parts[1])
		if err != nil {
			return nil, err
		}
		rng.Max = &max
	}
	return rng, nil
}

// latestVersion implements "GET /api/package/{namespace}/{package}/latest?prerelease={bool}".
func (a *API) latestVersion(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	pkg := r.PathValue("package")
	prerelease, _ := strconv.ParseBool(r.URL.Query().Get("prerelease"))
	v, err := a.Store.LatestVersion(r.Context(), namespace, pkg, prerelease)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ToVersionResponse(v))
}

// versionMetadata implements "GET /api/package/version?id=...".
func (a *API) versionMetadata(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errorResponse(w, r, registry.New("http.versionMetadata", registry.ErrBadRequest, nil, "missing id query parameter"))
		return
	}
	namespace, pkg, version, err := splitPointer(id)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	v, err := a.Store.ResolvePointer(r.Context(), namespace, pkg, version)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ToVersionResponse(v))
}

// yank implements "POST /api/package/yank?id=...".
func (a *API) yank(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errorResponse(w, r, registry.New("http.yank", registry.ErrBadRequest, nil, "missing id query parameter"))
		return
	}
	reason, err := io.ReadAll(r.Body)
	if err != nil {
		errorResponse(w, r, registry.New("http.yank", registry.ErrInternal, err, "failed to read body"))
		return
	}
	sig, err := signatureHeader(r)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	signer, err := address.Recover(sig, reason)
	if err != nil {
		errorResponse(w, r, err)
		return
	}

	namespace, pkg, version, err := splitPointer(id)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	v, err := a.Store.ResolvePointer(r.Context(), namespace, pkg, version)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	if err := a.Store.YankVersion(r.Context(), v.ID, signer, string(reason)); err != nil {
		errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func splitPointer(id string) (namespace, pkg, version string, err error) {
	const op = "http.splitPointer"
	parts := strings.SplitN(id, "/", 3)
	if len(parts) != 3 {
		return "", "", "", registry.New(op, registry.ErrBadRequest, nil, "id must be namespace/package/version")
	}
	return parts[0], parts[1], parts[2], nil
}
