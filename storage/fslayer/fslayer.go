// Package fslayer implements the local-directory storage.Layer backend: put
// writes "<root>/<sha256hex>", get reads it back. See spec §4.C4 variant 3.
package fslayer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	registry "github.com/ipfsreg/registry"
)

// Layer stores blobs as files named by their SHA-256 hex digest under root.
type Layer struct {
	root *os.Root
	name string
}

// New opens root (which must already exist) and returns a Layer rooted
// there. Using [os.Root] (rather than raw path joins) keeps this backend
// safe against path traversal from a maliciously-shaped key, mirroring the
// teacher's RemoteFetchArena handling of its own temp directory.
func New(root string) (*Layer, error) {
	const op = "fslayer.New"
	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, registry.New(op, registry.ErrInternal, err, fmt.Sprintf("opening storage root %q", root))
	}
	return &Layer{root: r, name: "fs:" + filepath.Clean(root)}, nil
}

func (l *Layer) Name() string { return l.name }

func key(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Put writes blob under its SHA-256 hex name. Idempotent: an existing file
// with that name is left untouched.
func (l *Layer) Put(ctx context.Context, blob []byte) (string, error) {
	const op = "fslayer.Put"
	k := key(blob)
	if ok, err := l.Has(ctx, k); err != nil {
		return "", err
	} else if ok {
		return k, nil
	}
	f, err := l.root.Create(k)
	if err != nil {
		return "", registry.New(op, registry.ErrStorageWriteFailed, err, fmt.Sprintf("creating object %q", k))
	}
	defer f.Close()
	if _, err := f.Write(blob); err != nil {
		return "", registry.New(op, registry.ErrStorageWriteFailed, err, fmt.Sprintf("writing object %q", k))
	}
	return k, nil
}

func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "fslayer.Get"
	f, err := l.root.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, registry.New(op, registry.ErrNotFound, err, fmt.Sprintf("object %q not found", key))
		}
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, fmt.Sprintf("opening object %q", key))
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, fmt.Sprintf("reading object %q", key))
	}
	return buf, nil
}

func (l *Layer) Has(ctx context.Context, key string) (bool, error) {
	_, err := l.root.Stat(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	const op = "fslayer.Has"
	return false, registry.New(op, registry.ErrStorageReadFailed, err, fmt.Sprintf("stat object %q", key))
}
