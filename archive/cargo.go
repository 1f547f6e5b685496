package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pelletier/go-toml/v2"

	registry "github.com/ipfsreg/registry"
)

// cargoManifest is the subset of Cargo.toml this introspector cares about.
type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

// cargoVcsInfo is the shape of .cargo_vcs_info.json, which `cargo package`
// always emits alongside Cargo.toml in a published crate.
type cargoVcsInfo struct {
	GitRef    string `json:"git_ref,omitempty"`
	PathInVcs string `json:"path_in_vcs,omitempty"`
	Git       struct {
		SHA1 string `json:"sha1"`
	} `json:"git"`
}

// cargoMetadata is the structured JSON stamped into the version row's
// metadata column: the decoded Cargo.toml package table plus the VCS info.
// See spec §4.C3 "cargo-style": "metadata = structured JSON of the extracted
// fields".
type cargoMetadata struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	VCS     *cargoVcsInfo `json:"vcs,omitempty"`
}

// introspectCargo treats blob as a gzip-compressed tar archive and requires
// both Cargo.toml and .cargo_vcs_info.json directly inside the archive's
// top-level directory (e.g. "pkg-1.0.0/Cargo.toml"). See spec §4.C3
// "cargo-style".
func introspectCargo(blob []byte) (Result, error) {
	const op = "archive.introspectCargo"

	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return Result{}, registry.New(op, registry.ErrBadRequest, err, "not a valid gzip stream")
	}
	defer zr.Close()

	var tomlBytes, vcsBytes []byte
	tr := tar.NewReader(zr)
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
		clean := path.Clean(hdr.Name)
		parts := strings.Split(clean, "/")
		if len(parts) != 2 {
			continue
		}
		switch parts[1] {
		case "Cargo.toml":
			b, err := io.ReadAll(tr)
			if err != nil {
				return Result{}, registry.New(op, registry.ErrBadRequest, err, "failed reading Cargo.toml")
			}
			tomlBytes = b
		case ".cargo_vcs_info.json":
			b, err := io.ReadAll(tr)
			if err != nil {
				return Result{}, registry.New(op, registry.ErrBadRequest, err, "failed reading .cargo_vcs_info.json")
			}
			vcsBytes = b
		}
	}

	switch {
	case tomlBytes == nil:
		return Result{}, registry.New(op, registry.ErrBadRequest, nil, "missing top-level Cargo.toml")
	case vcsBytes == nil:
		return Result{}, registry.New(op, registry.ErrBadRequest, nil, "missing top-level .cargo_vcs_info.json")
	}

	var cm cargoManifest
	if err := toml.Unmarshal(tomlBytes, &cm); err != nil {
		return Result{}, registry.New(op, registry.ErrBadRequest, err, "failed parsing Cargo.toml")
	}
	if cm.Package.Name == "" || cm.Package.Version == "" {
		return Result{}, registry.New(op, registry.ErrBadRequest, nil, "Cargo.toml missing package.name or package.version")
	}
	if err := validateVersion(op, cm.Package.Version); err != nil {
		return Result{}, err
	}

	var vcs cargoVcsInfo
	if err := json.Unmarshal(vcsBytes, &vcs); err != nil {
		return Result{}, registry.New(op, registry.ErrBadRequest, err, "failed parsing .cargo_vcs_info.json")
	}

	meta := cargoMetadata{Name: cm.Package.Name, Version: cm.Package.Version, VCS: &vcs}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return Result{}, registry.New(op, registry.ErrInternal, err, "failed serializing extracted metadata")
	}

	return Result{
		Name:     cm.Package.Name,
		Version:  cm.Package.Version,
		Metadata: metaBytes,
		Purl:     purlFor("cargo", cm.Package.Name, cm.Package.Version),
	}, nil
}
