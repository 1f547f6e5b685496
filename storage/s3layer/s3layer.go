// Package s3layer implements the S3-compatible-bucket storage.Layer backend:
// put stores a blob under its SHA-256 hex digest as the object key, get
// reads the same key. Configured with (region, profile, bucket) per spec
// §4.C4 variant 2.
package s3layer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	registry "github.com/ipfsreg/registry"
)

// client is the subset of *s3.Client this layer calls, so tests can supply a
// fake without standing up a real bucket.
type client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Layer stores blobs as objects in a single S3-compatible bucket.
type Layer struct {
	c      client
	bucket string
}

// Config is the (region, profile, bucket) triple spec §6 names for an S3
// storage layer entry.
type Config struct {
	Region  string
	Profile string
	Bucket  string
}

// New resolves the AWS SDK's default credential chain for cfg.Region and
// cfg.Profile, exactly as awsconfig.LoadDefaultConfig does for any AWS SDK
// v2 client in this dependency pack.
func New(ctx context.Context, cfg Config) (*Layer, error) {
	const op = "s3layer.New"
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, registry.New(op, registry.ErrInternal, err, "loading AWS config")
	}
	return &Layer{c: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket}, nil
}

// NewWithClient wraps an already-constructed client, for tests and for
// pointing at S3-compatible-but-not-AWS endpoints the caller configured
// directly on the *s3.Client.
func NewWithClient(c *s3.Client, bucket string) *Layer {
	return &Layer{c: c, bucket: bucket}
}

func (l *Layer) Name() string { return "s3:" + l.bucket }

func key(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Put stores blob under its SHA-256 hex key. Idempotent: re-uploading
// identical content to the same key is a no-op from the registry's
// perspective (S3 PutObject itself is naturally idempotent for identical
// bytes).
func (l *Layer) Put(ctx context.Context, blob []byte) (string, error) {
	const op = "s3layer.Put"
	k := key(blob)
	_, err := l.c.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(k),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return "", registry.New(op, registry.ErrStorageWriteFailed, err, fmt.Sprintf("PutObject %q", k))
	}
	return k, nil
}

func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "s3layer.Get"
	out, err := l.c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, registry.New(op, registry.ErrNotFound, err, fmt.Sprintf("object %q not found", key))
		}
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, fmt.Sprintf("GetObject %q", key))
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, registry.New(op, registry.ErrStorageReadFailed, err, fmt.Sprintf("reading object %q", key))
	}
	return buf.Bytes(), nil
}

func (l *Layer) Has(ctx context.Context, key string) (bool, error) {
	const op = "s3layer.Has"
	_, err := l.c.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, registry.New(op, registry.ErrStorageReadFailed, err, fmt.Sprintf("HeadObject %q", key))
}
