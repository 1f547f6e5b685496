package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/address"
	"github.com/ipfsreg/registry/archive"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/internal/semver"
)

// fakeLayer is a minimal in-memory storage.Layer, in the style of
// storage/mirror's fakeLayer.
type fakeLayer struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeLayer() *fakeLayer { return &fakeLayer{objects: make(map[string][]byte)} }

func (f *fakeLayer) Name() string { return "fake" }

func (f *fakeLayer) Put(ctx context.Context, blob []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := string(append([]byte("sha256:"), blob...))
	f.objects[k] = blob
	return k, nil
}

func (f *fakeLayer) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, registry.New("fakeLayer.Get", registry.ErrNotFound, nil, "not found")
	}
	return b, nil
}

func (f *fakeLayer) Has(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

// fakeStore implements datastore.Store with the minimum needed by Publish:
// AuthorizePublish and InsertVersion. Every other method panics, so a test
// calling one by accident fails loudly.
type fakeStore struct {
	decision    registry.Decision
	authErr     error
	insertErr   error
	insertCalls int
	lastVersion semver.Parsed
}

func (f *fakeStore) AuthorizePublish(ctx context.Context, namespace string, signer registry.Address, packageName string) (registry.Decision, error) {
	if f.authErr != nil {
		return registry.Deny, f.authErr
	}
	return f.decision, nil
}

func (f *fakeStore) InsertVersion(ctx context.Context, namespace, packageName string, publisher registry.Address, version semver.Parsed, contentID, pointerID string, sig registry.Signature, checksum registry.Checksum, metadata []byte) (registry.Version, error) {
	f.insertCalls++
	f.lastVersion = version
	if f.insertErr != nil {
		return registry.Version{}, f.insertErr
	}
	return registry.Version{ContentID: contentID, PointerID: pointerID, Major: version.Major, Minor: version.Minor, Patch: version.Patch}, nil
}

func (f *fakeStore) FindOrCreatePublisher(ctx context.Context, addr registry.Address) (registry.Publisher, bool, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) PublisherByID(ctx context.Context, id int64) (registry.Publisher, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) CreateNamespace(ctx context.Context, name string, owner registry.Address) (registry.Namespace, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) AddMember(ctx context.Context, namespace string, signer, target registry.Address, administrator bool, restriction string) error {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) RemoveMember(ctx context.Context, namespace string, signer, target registry.Address) error {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) ResolvePointer(ctx context.Context, namespace, packageName, version string) (registry.Version, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) ResolvePointerID(ctx context.Context, pointerID string) (registry.Version, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) YankVersion(ctx context.Context, versionID int64, signer registry.Address, reason string) error {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) ListPackages(ctx context.Context, namespace string, opts datastore.ListOpts, with registry.VersionIncludeMode) ([]registry.Package, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) ListVersions(ctx context.Context, namespace, packageName string, rng *datastore.VersionRange, opts datastore.ListOpts) ([]registry.Version, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (registry.Version, error) {
	panic("not used by pipeline.Publish")
}
func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close(ctx context.Context) error { return nil }

// npmArchive builds a gzip-tar archive with a single top-level dir
// containing package.json, as introspectNpm expects.
func npmArchive(t *testing.T, name, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	manifest := []byte(`{"name":"` + name + `","version":"` + version + `"}`)
	if err := tw.WriteHeader(&tar.Header{Name: "pkg/package.json", Size: int64(len(manifest)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(manifest); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func signedRequest(t *testing.T, namespace string, body []byte) (PublishRequest, registry.Address) {
	t.Helper()
	priv, err := address.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := address.Sign(priv, body)
	if err != nil {
		t.Fatal(err)
	}
	return PublishRequest{
		Namespace:   namespace,
		Body:        body,
		Signature:   sig,
		ContentType: archive.Npm.MIME(),
	}, address.AddressOf(priv)
}

func TestPublishSuccess(t *testing.T) {
	store := &fakeStore{decision: registry.Allow}
	layer := newFakeLayer()
	p, err := New(&Options{Store: store, Mirror: layer})
	if err != nil {
		t.Fatal(err)
	}

	body := npmArchive(t, "widget", "1.2.3")
	req, signer := signedRequest(t, "acme", body)

	res, err := p.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.ID != "acme/widget/1.2.3" {
		t.Errorf("ID = %q, want acme/widget/1.2.3", res.ID)
	}
	if store.insertCalls != 1 {
		t.Errorf("InsertVersion called %d times, want 1", store.insertCalls)
	}
	if store.lastVersion.String() != "1.2.3" {
		t.Errorf("inserted version = %s, want 1.2.3", store.lastVersion)
	}
	if len(layer.objects) != 1 {
		t.Errorf("mirror has %d objects, want 1", len(layer.objects))
	}
	_ = signer
}

func TestPublishDeniedAuthorization(t *testing.T) {
	store := &fakeStore{decision: registry.Deny}
	p, err := New(&Options{Store: store, Mirror: newFakeLayer()})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := signedRequest(t, "acme", npmArchive(t, "widget", "1.0.0"))

	_, err = p.Publish(context.Background(), req)
	if registry.KindOf(err) != registry.ErrUnauthorized {
		t.Fatalf("Publish() = %v, want ErrUnauthorized", err)
	}
}

func TestPublishDeniedByDenyList(t *testing.T) {
	priv, err := address.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	denied := address.AddressOf(priv)
	store := &fakeStore{decision: registry.Allow}
	p, err := New(&Options{Store: store, Mirror: newFakeLayer(), Deny: []registry.Address{denied}})
	if err != nil {
		t.Fatal(err)
	}

	body := npmArchive(t, "widget", "1.0.0")
	sig, err := address.Sign(priv, body)
	if err != nil {
		t.Fatal(err)
	}
	req := PublishRequest{Namespace: "acme", Body: body, Signature: sig, ContentType: archive.Npm.MIME()}

	_, err = p.Publish(context.Background(), req)
	if registry.KindOf(err) != registry.ErrUnauthorized {
		t.Fatalf("Publish() = %v, want ErrUnauthorized", err)
	}
}

func TestPublishRejectsOversizedBody(t *testing.T) {
	store := &fakeStore{decision: registry.Allow}
	p, err := New(&Options{Store: store, Mirror: newFakeLayer(), BodyLimit: 4})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := signedRequest(t, "acme", npmArchive(t, "widget", "1.0.0"))

	_, err = p.Publish(context.Background(), req)
	if registry.KindOf(err) != registry.ErrPayloadTooLarge {
		t.Fatalf("Publish() = %v, want ErrPayloadTooLarge", err)
	}
}

func TestPublishRejectsWrongContentType(t *testing.T) {
	store := &fakeStore{decision: registry.Allow}
	p, err := New(&Options{Store: store, Mirror: newFakeLayer()})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := signedRequest(t, "acme", npmArchive(t, "widget", "1.0.0"))
	req.ContentType = "application/zip"

	_, err = p.Publish(context.Background(), req)
	if registry.KindOf(err) != registry.ErrUnsupportedMediaType {
		t.Fatalf("Publish() = %v, want ErrUnsupportedMediaType", err)
	}
}

func TestPublishRejectsBadSignature(t *testing.T) {
	store := &fakeStore{decision: registry.Allow}
	p, err := New(&Options{Store: store, Mirror: newFakeLayer()})
	if err != nil {
		t.Fatal(err)
	}
	body := npmArchive(t, "widget", "1.0.0")
	var badSig registry.Signature
	badSig[64] = 2 // invalid recovery id

	_, err = p.Publish(context.Background(), PublishRequest{
		Namespace: "acme", Body: body, Signature: badSig, ContentType: archive.Npm.MIME(),
	})
	if registry.KindOf(err) != registry.ErrUnauthorized {
		t.Fatalf("Publish() = %v, want ErrUnauthorized", err)
	}
}

func TestPublishRejectsConflict(t *testing.T) {
	store := &fakeStore{decision: registry.Allow, insertErr: registry.New("fakeStore", registry.ErrConflict, nil, "not ahead")}
	p, err := New(&Options{Store: store, Mirror: newFakeLayer()})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := signedRequest(t, "acme", npmArchive(t, "widget", "0.1.0"))

	_, err = p.Publish(context.Background(), req)
	if registry.KindOf(err) != registry.ErrConflict {
		t.Fatalf("Publish() = %v, want ErrConflict", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(&Options{Mirror: newFakeLayer()}); err == nil {
		t.Fatal("New() with nil Store: want error")
	}
	if _, err := New(&Options{Store: &fakeStore{}}); err == nil {
		t.Fatal("New() with nil Mirror: want error")
	}
}
