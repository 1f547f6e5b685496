package archive

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	registry "github.com/ipfsreg/registry"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buf.Bytes()
}

func TestIntrospectNpm(t *testing.T) {
	manifest := `{"name":"mock-package","version":"1.0.0"}`
	blob := buildTarGz(t, map[string]string{
		"package/package.json": manifest,
	})
	res, err := Introspect(Npm, blob)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	want := Result{
		Name:     "mock-package",
		Version:  "1.0.0",
		Metadata: []byte(manifest),
		Purl:     "pkg:npm/mock-package@1.0.0",
	}
	if got, want := res, want; !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestIntrospectNpmMissingManifest(t *testing.T) {
	blob := buildTarGz(t, map[string]string{"package/README.md": "hi"})
	_, err := Introspect(Npm, blob)
	if registry.KindOf(err) != registry.ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestIntrospectNpmInvalidVersion(t *testing.T) {
	blob := buildTarGz(t, map[string]string{
		"package/package.json": `{"name":"mock-package","version":"not-semver"}`,
	})
	_, err := Introspect(Npm, blob)
	if registry.KindOf(err) != registry.ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestIntrospectCargo(t *testing.T) {
	blob := buildTarGz(t, map[string]string{
		"mock-crate-0.1.0/Cargo.toml":           "[package]\nname = \"mock-crate\"\nversion = \"0.1.0\"\n",
		"mock-crate-0.1.0/.cargo_vcs_info.json": `{"git":{"sha1":"deadbeef"}}`,
	})
	res, err := Introspect(Cargo, blob)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if res.Name != "mock-crate" || res.Version != "0.1.0" {
		t.Errorf("got name=%q version=%q", res.Name, res.Version)
	}
}

func TestIntrospectCargoMissingVcsInfo(t *testing.T) {
	blob := buildTarGz(t, map[string]string{
		"mock-crate-0.1.0/Cargo.toml": "[package]\nname = \"mock-crate\"\nversion = \"0.1.0\"\n",
	})
	_, err := Introspect(Cargo, blob)
	if registry.KindOf(err) != registry.ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestIntrospectUnknownKind(t *testing.T) {
	_, err := Introspect(Kind("deb"), nil)
	if registry.KindOf(err) != registry.ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}
