package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"

	registry "github.com/ipfsreg/registry"
)

// npmManifest is the subset of package.json this introspector cares about.
type npmManifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// introspectNpm treats blob as a gzip-compressed tar archive, finds the
// single top-level directory's package.json, and extracts (name, version).
// Metadata is that file's raw bytes. See spec §4.C3 "npm-style".
func introspectNpm(blob []byte) (Result, error) {
	const op = "archive.introspectNpm"

	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return Result{}, registry.New(op, registry.ErrBadRequest, err, "not a valid gzip stream")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var (
		manifestBytes []byte
		found         bool
	)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, registry.New(op, registry.ErrBadRequest, err, "malformed tar stream")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		// Expect "<pkgdir>/package.json" at depth 1 under the single
		// top-level directory; reject ambiguity from multiple candidates.
		clean := path.Clean(hdr.Name)
		parts := strings.Split(clean, "/")
		if len(parts) != 2 || parts[1] != "package.json" {
			continue
		}
		if found {
			return Result{}, registry.New(op, registry.ErrBadRequest, nil, "multiple package.json files found")
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return Result{}, registry.New(op, registry.ErrBadRequest, err, "failed reading package.json")
		}
		manifestBytes = b
		found = true
	}
	if !found {
		return Result{}, registry.New(op, registry.ErrBadRequest, nil, "no top-level package.json found")
	}

	var m npmManifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return Result{}, registry.New(op, registry.ErrBadRequest, err, "failed parsing package.json")
	}
	if m.Name == "" || m.Version == "" {
		return Result{}, registry.New(op, registry.ErrBadRequest, nil, "package.json missing name or version")
	}
	if err := validateVersion(op, m.Version); err != nil {
		return Result{}, err
	}

	return Result{
		Name:     m.Name,
		Version:  m.Version,
		Metadata: manifestBytes,
		Purl:     purlFor("npm", m.Name, m.Version),
	}, nil
}
