// Package registry implements the core of a signed, content-addressed
// package registry: publisher/namespace/package metadata, a pluggable
// archive introspector, a mirrored storage-layer abstraction, and the
// publish/resolve pipelines that tie them together.
//
// The HTTP framework, TLS termination, CORS configuration, and CLI/config
// parsing are treated as external collaborators; see the config and
// cmd/registryd packages for the thin wiring this module does provide.
package registry
