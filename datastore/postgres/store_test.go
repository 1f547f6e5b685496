package postgres

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/internal/semver"
	pgtest "github.com/ipfsreg/registry/test/postgres"
)

func testStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()
	pool := pgtest.TestRegistryDB(ctx, t)
	return NewStore(pool)
}

func testAddress(b byte) registry.Address {
	var a registry.Address
	a[len(a)-1] = b
	return a
}

func TestPublishFlow(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	owner := testAddress(1)
	if _, err := s.CreateNamespace(ctx, "acme", owner); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	if _, err := s.CreateNamespace(ctx, "acme", owner); registry.KindOf(err) != registry.ErrConflict {
		t.Fatalf("expected ErrConflict on duplicate namespace, got %v", err)
	}

	v1 := semver.Parsed{Major: 1, Minor: 0, Patch: 0}
	sig := registry.Signature{}
	sum := registry.Checksum{}
	got, err := s.InsertVersion(ctx, "acme", "widget", owner, v1, "content-1", "pointer-1", sig, sum, []byte(`{}`))
	if err != nil {
		t.Fatalf("InsertVersion: %v", err)
	}
	if got.SemverString() != "1.0.0" {
		t.Errorf("SemverString() = %q, want 1.0.0", got.SemverString())
	}

	v0 := semver.Parsed{Major: 0, Minor: 9, Patch: 0}
	if _, err := s.InsertVersion(ctx, "acme", "widget", owner, v0, "content-0", "pointer-0", sig, sum, []byte(`{}`)); registry.KindOf(err) != registry.ErrConflict {
		t.Fatalf("expected ErrConflict inserting a version not ahead of latest, got %v", err)
	}

	resolved, err := s.ResolvePointer(ctx, "acme", "widget", "1.0.0")
	if err != nil {
		t.Fatalf("ResolvePointer: %v", err)
	}
	if resolved.ContentID != "content-1" {
		t.Errorf("ResolvePointer ContentID = %q, want content-1", resolved.ContentID)
	}

	byPointer, err := s.ResolvePointerID(ctx, "pointer-1")
	if err != nil {
		t.Fatalf("ResolvePointerID: %v", err)
	}
	if byPointer.ID != resolved.ID {
		t.Errorf("ResolvePointerID returned a different version than ResolvePointer")
	}

	latest, err := s.LatestVersion(ctx, "acme", "widget", true)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest.ID != resolved.ID {
		t.Errorf("LatestVersion did not return the only inserted version")
	}

	if err := s.YankVersion(ctx, resolved.ID, owner, "superseded"); err != nil {
		t.Fatalf("YankVersion: %v", err)
	}
	if err := s.YankVersion(ctx, resolved.ID, owner, "again"); registry.KindOf(err) != registry.ErrConflict {
		t.Fatalf("expected ErrConflict yanking an already-yanked version, got %v", err)
	}
}

// TestConcurrentInsertVersionLinearizes exercises spec §5's "two concurrent
// publishes of the same (package, version) resolve to exactly one success
// and one Conflict" guarantee: N racing inserts of the identical version
// must leave exactly one winner, the rest ErrConflict, via the
// "SELECT ... FOR UPDATE" package-row lock in InsertVersion.
func TestConcurrentInsertVersionLinearizes(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	owner := testAddress(7)
	if _, err := s.CreateNamespace(ctx, "racey", owner); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	const racers = 8
	v := semver.Parsed{Major: 1, Minor: 0, Patch: 0}
	sig, sum := registry.Signature{}, registry.Checksum{}

	results := make([]error, racers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			_, err := s.InsertVersion(gctx, "racey", "widget", owner, v,
				"content", "pointer", sig, sum, []byte(`{}`))
			results[i] = err
			return nil // collect per-racer outcomes instead of failing the group
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup.Wait: %v", err)
	}

	var ok, conflict int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case registry.KindOf(err) == registry.ErrConflict:
			conflict++
		default:
			t.Fatalf("unexpected error from racing InsertVersion: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful racing inserts = %d, want exactly 1", ok)
	}
	if conflict != racers-1 {
		t.Errorf("conflicting racing inserts = %d, want %d", conflict, racers-1)
	}
}

// TestConfusableNamespaceConflict is the "register paypal; attempt pаypal
// (Cyrillic а)" scenario: the look-alike must be rejected as a Conflict (the
// caller's 409), not as a merely invalid name, even though the mixed-script
// spoof would fail validation on its own.
func TestConfusableNamespaceConflict(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	owner := testAddress(12)
	if _, err := s.CreateNamespace(ctx, "paypal", owner); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	if _, err := s.CreateNamespace(ctx, "pаypal", owner); registry.KindOf(err) != registry.ErrConflict {
		t.Fatalf("expected ErrConflict registering a confusable of an existing namespace, got %v", err)
	}

	// With no collision to report, the same spoof is just an invalid name.
	if _, err := s.CreateNamespace(ctx, "pаypal-fresh", owner); registry.KindOf(err) != registry.ErrBadRequest {
		t.Fatalf("expected ErrBadRequest registering a fresh mixed-script name, got %v", err)
	}
}

// TestPrereleaseLatestOrdersNumerically publishes rc.2 then rc.10: the
// insert succeeds because dot segments compare numerically, and
// LatestVersion must agree with that ordering instead of a string sort.
func TestPrereleaseLatestOrdersNumerically(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	owner := testAddress(13)
	if _, err := s.CreateNamespace(ctx, "prerelease", owner); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	sig, sum := registry.Signature{}, registry.Checksum{}
	for i, v := range []semver.Parsed{
		{Major: 1, Minor: 0, Patch: 0, Pre: "rc.2"},
		{Major: 1, Minor: 0, Patch: 0, Pre: "rc.10"},
	} {
		if _, err := s.InsertVersion(ctx, "prerelease", "tool", owner, v, "c"+v.String(), "pre-ptr-"+string(rune('a'+i)), sig, sum, []byte(`{}`)); err != nil {
			t.Fatalf("InsertVersion(%s): %v", v, err)
		}
	}

	latest, err := s.LatestVersion(ctx, "prerelease", "tool", true)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest.SemverString() != "1.0.0-rc.10" {
		t.Errorf("LatestVersion(prerelease=true) = %s, want 1.0.0-rc.10", latest.SemverString())
	}

	if _, err := s.LatestVersion(ctx, "prerelease", "tool", false); registry.KindOf(err) != registry.ErrNotFound {
		t.Fatalf("LatestVersion(prerelease=false) with only prereleases = %v, want ErrNotFound", err)
	}

	vs, err := s.ListVersions(ctx, "prerelease", "tool", nil, datastore.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(vs) != 2 || vs[0].SemverString() != "1.0.0-rc.2" || vs[1].SemverString() != "1.0.0-rc.10" {
		t.Fatalf("ListVersions order = %+v, want rc.2 before rc.10", vs)
	}
}

func TestMembershipAuthorization(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	owner := testAddress(2)
	member := testAddress(3)
	stranger := testAddress(4)
	if _, err := s.CreateNamespace(ctx, "membership", owner); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	if d, err := s.AuthorizePublish(ctx, "membership", stranger, "anything"); err != nil || d != registry.Deny {
		t.Fatalf("AuthorizePublish(stranger) = %v, %v; want Deny, nil", d, err)
	}

	if err := s.AddMember(ctx, "membership", owner, member, false, "gadget"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if d, err := s.AuthorizePublish(ctx, "membership", member, "gadget"); err != nil || d != registry.Allow {
		t.Fatalf("AuthorizePublish(member, restricted package) = %v, %v; want Allow, nil", d, err)
	}
	if d, err := s.AuthorizePublish(ctx, "membership", member, "other"); err != nil || d != registry.Deny {
		t.Fatalf("AuthorizePublish(member, unrestricted package) = %v, %v; want Deny, nil", d, err)
	}

	if err := s.RemoveMember(ctx, "membership", owner, member); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := s.RemoveMember(ctx, "membership", owner, owner); registry.KindOf(err) != registry.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized removing the owner, got %v", err)
	}
}

func TestListPackagesAndVersions(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	owner := testAddress(5)
	if _, err := s.CreateNamespace(ctx, "listing", owner); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	sig, sum := registry.Signature{}, registry.Checksum{}
	versions := []semver.Parsed{
		{Major: 1, Minor: 0, Patch: 0},
		{Major: 1, Minor: 1, Patch: 0},
		{Major: 2, Minor: 0, Patch: 0},
	}
	for i, v := range versions {
		if _, err := s.InsertVersion(ctx, "listing", "tool", owner, v, "c"+v.String(), "p"+string(rune('a'+i)), sig, sum, []byte(`{}`)); err != nil {
			t.Fatalf("InsertVersion(%s): %v", v, err)
		}
	}

	pkgs, err := s.ListPackages(ctx, "listing", datastore.ListOpts{Limit: 10}, registry.VersionsLatest)
	if err != nil {
		t.Fatalf("ListPackages: %v", err)
	}
	if len(pkgs) != 1 || pkgs[0].Name != "tool" {
		t.Fatalf("ListPackages = %+v, want one package named tool", pkgs)
	}
	if pkgs[0].LatestVersion == nil || pkgs[0].LatestVersion.SemverString() != "2.0.0" {
		t.Errorf("ListPackages latest version = %+v, want 2.0.0", pkgs[0].LatestVersion)
	}

	vs, err := s.ListVersions(ctx, "listing", "tool", nil, datastore.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(vs) != 3 || vs[0].SemverString() != "1.0.0" || vs[2].SemverString() != "2.0.0" {
		t.Fatalf("ListVersions returned unexpected order: %+v", vs)
	}

	min := semver.Parsed{Major: 1, Minor: 1, Patch: 0}
	ranged, err := s.ListVersions(ctx, "listing", "tool", &datastore.VersionRange{Min: &min, MinInclusive: true}, datastore.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListVersions(ranged): %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("ListVersions(ranged) = %d results, want 2", len(ranged))
	}
}

func TestPublisherLifecycle(t *testing.T) {
	ctx := context.Background()
	s := testStore(ctx, t)

	addr := testAddress(9)
	p, created, err := s.FindOrCreatePublisher(ctx, addr)
	if err != nil {
		t.Fatalf("FindOrCreatePublisher: %v", err)
	}
	if !created {
		t.Error("first FindOrCreatePublisher: created = false, want true")
	}

	again, createdAgain, err := s.FindOrCreatePublisher(ctx, addr)
	if err != nil {
		t.Fatalf("FindOrCreatePublisher (repeat): %v", err)
	}
	if createdAgain {
		t.Error("repeat FindOrCreatePublisher: created = true, want false")
	}
	if again.ID != p.ID {
		t.Errorf("repeat FindOrCreatePublisher returned a different id: %d != %d", again.ID, p.ID)
	}

	byID, err := s.PublisherByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("PublisherByID: %v", err)
	}
	if byID.Address != addr {
		t.Errorf("PublisherByID address = %x, want %x", byID.Address, addr)
	}

	if _, err := s.PublisherByID(ctx, -1); registry.KindOf(err) != registry.ErrNotFound {
		t.Fatalf("PublisherByID(-1) = %v, want ErrNotFound", err)
	}
}
