// Package archive introspects uploaded package archives to extract the
// (name, version, metadata) tuple the publish pipeline needs, pluggable by
// configured archive Kind. See spec §4.C3.
package archive

import (
	"fmt"

	"github.com/package-url/packageurl-go"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/internal/semver"
)

// Kind selects which archive-introspection variant to run. See spec §9
// "pluggable archive kinds": adding a kind means adding a variant here and
// its extractor in npm.go/cargo.go.
type Kind string

const (
	Npm   Kind = "npm"
	Cargo Kind = "cargo"
)

// MIME is the Content-Type each Kind expects on upload, per spec §6 (default
// "application/gzip" for both variants presently defined).
func (k Kind) MIME() string {
	return "application/gzip"
}

// Result is what Introspect extracts from an archive: the declared package
// name and version, the raw manifest bytes the spec calls "metadata_json",
// and a purl rendering of the coordinates (a supplemented convenience; see
// SPEC_FULL.md).
type Result struct {
	Name     string
	Version  string
	Metadata []byte
	Purl     string
}

// Introspect dispatches to the extractor for kind and returns the extracted
// (name, version, metadata) tuple. Fails with ErrBadRequest (InvalidArchive,
// MissingManifest, InvalidManifest, or InvalidVersion in spec terms) if blob
// is malformed for the given kind.
func Introspect(kind Kind, blob []byte) (Result, error) {
	const op = "archive.Introspect"
	switch kind {
	case Npm:
		return introspectNpm(blob)
	case Cargo:
		return introspectCargo(blob)
	default:
		return Result{}, registry.New(op, registry.ErrBadRequest, nil, fmt.Sprintf("unknown archive kind %q", kind))
	}
}

// validateVersion parses version as semver, mapping a parse failure to the
// InvalidVersion failure mode from spec §4.C3.
func validateVersion(op, version string) error {
	if _, err := semver.Parse(version); err != nil {
		return registry.New(op, registry.ErrBadRequest, err, fmt.Sprintf("invalid semver version %q", version))
	}
	return nil
}

func purlFor(typ, name, version string) string {
	p := packageurl.PackageURL{Type: typ, Name: name, Version: version}
	return p.ToString()
}
