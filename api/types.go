// Package api defines the HTTP-agnostic request/response contracts for the
// operations in spec §6, plus (api/http) thin net/http handlers that marshal
// them. Keeping the types here independent of net/http lets future transport
// bindings (gRPC, an internal CLI) reuse the same shapes. See spec §C9.
package api

import (
	"time"

	registry "github.com/ipfsreg/registry"
)

// SignupResponse is the body of "POST /api/publisher".
type SignupResponse struct {
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// NamespaceResponse is the body of "POST /api/namespace/{namespace}".
type NamespaceResponse struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

// PublishArtifact describes the archive coordinates extracted during
// publish, embedded in PublishResponse.
type PublishArtifact struct {
	Namespace string `json:"namespace"`
	Package   struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"package"`
}

// PublishResponse is the body of "POST /api/package/{namespace}".
type PublishResponse struct {
	ID       string          `json:"id"`
	Artifact PublishArtifact `json:"artifact"`
	Key      string          `json:"key"`
	Checksum string          `json:"checksum"`
}

// PackageResponse renders a registry.Package for "GET /api/package/{namespace}".
type PackageResponse struct {
	Name          string           `json:"name"`
	CreatedAt     time.Time        `json:"created_at"`
	LatestVersion *VersionResponse `json:"latest_version,omitempty"`
}

// VersionResponse renders a registry.Version for version-returning endpoints.
type VersionResponse struct {
	Version   string    `json:"version"`
	ContentID string    `json:"content_id"`
	PointerID string    `json:"pointer_id"`
	Checksum  string    `json:"checksum"`
	Yanked    *string   `json:"yanked,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToVersionResponse renders v for inclusion in an HTTP response body.
func ToVersionResponse(v registry.Version) VersionResponse {
	return VersionResponse{
		Version:   v.SemverString(),
		ContentID: v.ContentID,
		PointerID: v.PointerID,
		Checksum:  v.Checksum.String(),
		Yanked:    v.Yanked,
		CreatedAt: v.CreatedAt,
	}
}

// ToPackageResponse renders p, attaching its latest version if populated.
func ToPackageResponse(p registry.Package) PackageResponse {
	out := PackageResponse{Name: p.Name, CreatedAt: p.CreatedAt}
	if p.LatestVersion != nil {
		v := ToVersionResponse(*p.LatestVersion)
		out.LatestVersion = &v
	}
	return out
}
