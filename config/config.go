// Package config decodes the TOML configuration surface named in spec §6
// into a plain Go struct, in the style of sunxth-ocpack's pkg/config:
// os.ReadFile followed by toml.Unmarshal, no env-var overlay or flag
// binding (that's cmd/registryd's job via cobra).
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	registry "github.com/ipfsreg/registry"
	"github.com/ipfsreg/registry/archive"
)

// StorageLayer is one entry of storage.layers[*]. Exactly one of the three
// groups of fields should be populated, selecting the ipfslayer, s3layer,
// or fslayer backend respectively.
type StorageLayer struct {
	// ipfslayer: a gateway base URL.
	URL string `toml:"url"`

	// s3layer.
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
	Bucket  string `toml:"bucket"`

	// fslayer.
	Directory string `toml:"directory"`
}

// Kind reports which backend this entry configures, or an error if it
// matches none or more than one.
func (l StorageLayer) Kind() (string, error) {
	n := 0
	var kind string
	if l.URL != "" {
		n++
		kind = "ipfs"
	}
	if l.Region != "" || l.Profile != "" || l.Bucket != "" {
		n++
		kind = "s3"
	}
	if l.Directory != "" {
		n++
		kind = "fs"
	}
	if n != 1 {
		return "", fmt.Errorf("config: storage layer entry must set exactly one of {url}, {region,profile,bucket}, {directory}, got %d", n)
	}
	return kind, nil
}

// Storage holds the ordered storage-layer list. Order matters: the first
// entry is the primary layer whose key becomes each version's content_id.
type Storage struct {
	Layers []StorageLayer `toml:"layers"`
}

// Database holds the metadata store's connection settings.
type Database struct {
	URL string `toml:"url"`
}

// Registry holds the publish pipeline's tunables.
type Registry struct {
	Kind      string   `toml:"kind"`
	BodyLimit int64    `toml:"body-limit"`
	Allow     []string `toml:"allow"`
	Deny      []string `toml:"deny"`
}

// CORS holds the reverse proxy's CORS origin allowlist. Registryd itself
// does not enforce CORS (spec §1 leaves the HTTP framework out of scope);
// this is carried through so an operator-supplied proxy config can be
// generated from the same file.
type CORS struct {
	Origins []string `toml:"origins"`
}

// TLS holds the reverse proxy's certificate paths, carried through for the
// same reason as CORS.
type TLS struct {
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// Config is the full TOML document described in spec §6.
type Config struct {
	Database Database `toml:"database"`
	Storage  Storage  `toml:"storage"`
	Registry Registry `toml:"registry"`
	CORS     CORS     `toml:"cors"`
	TLS      TLS      `toml:"tls"`
}

// Load reads and parses the TOML file at path, then fills in the
// spec-mandated defaults for any field left zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Registry.Kind == "" {
		c.Registry.Kind = "npm"
	}
	if c.Registry.BodyLimit == 0 {
		c.Registry.BodyLimit = 16 << 20
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if len(c.Storage.Layers) == 0 {
		return fmt.Errorf("config: at least one storage.layers entry is required")
	}
	for i, l := range c.Storage.Layers {
		if _, err := l.Kind(); err != nil {
			return fmt.Errorf("config: storage.layers[%d]: %w", i, err)
		}
	}
	switch archive.Kind(c.Registry.Kind) {
	case archive.Npm, archive.Cargo:
	default:
		return fmt.Errorf("config: registry.kind %q must be one of npm, cargo", c.Registry.Kind)
	}
	if _, err := c.AllowAddresses(); err != nil {
		return err
	}
	if _, err := c.DenyAddresses(); err != nil {
		return err
	}
	return nil
}

// ArchiveKind returns the registry.kind value as an archive.Kind.
func (c *Config) ArchiveKind() archive.Kind {
	return archive.Kind(c.Registry.Kind)
}

// AllowAddresses parses registry.allow[] into registry.Address values.
func (c *Config) AllowAddresses() ([]registry.Address, error) {
	return parseAddresses(c.Registry.Allow)
}

// DenyAddresses parses registry.deny[] into registry.Address values.
func (c *Config) DenyAddresses() ([]registry.Address, error) {
	return parseAddresses(c.Registry.Deny)
}

func parseAddresses(in []string) ([]registry.Address, error) {
	out := make([]registry.Address, 0, len(in))
	for _, s := range in {
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil || len(b) != 20 {
			return nil, fmt.Errorf("config: %q is not a 20-byte hex address", s)
		}
		var a registry.Address
		copy(a[:], b)
		out = append(out, a)
	}
	return out, nil
}
