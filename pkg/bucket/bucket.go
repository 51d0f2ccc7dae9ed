// Package bucket provides a magma.Store backed by a gocloud.dev blob
// bucket, supporting S3, GCS, Azure Blob Storage, local directories and
// memory.
//
// Artifacts are written as plain objects, so a bucket can be served as
// static files. Identity, route, encoding and modification time travel as
// object metadata.
package bucket

import (
	"context"
	"fmt"
	"mime"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/zoobzio/magma"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	metaID       = "magma-id"
	metaRoute    = "magma-route"
	metaEncoding = "magma-encoding"
	metaModified = "magma-modified"
)

// Store saves each flow's artifact as one object.
type Store struct {
	bucket *blob.Bucket
	prefix string
}

var (
	_ magma.Store  = (*Store)(nil)
	_ magma.Loader = (*Store)(nil)
)

// Open opens the bucket at bucketURL, e.g. "s3://assets", "file:///srv/out"
// or "mem://".
func Open(ctx context.Context, bucketURL, prefix string) (*Store, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}
	return New(b, prefix), nil
}

// New wraps an open bucket. Objects are named prefix + flow id.
func New(b *blob.Bucket, prefix string) *Store {
	return &Store{bucket: b, prefix: prefix}
}

// Save writes the artifact data with its metadata.
func (s *Store) Save(ctx context.Context, artifact magma.Artifact) error {
	opts := &blob.WriterOptions{
		ContentType: contentType(artifact),
		Metadata: map[string]string{
			metaID:       magma.ArtifactKey(artifact.ID),
			metaRoute:    artifact.Route,
			metaEncoding: artifact.Encoding,
			metaModified: artifact.Modified.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := s.bucket.WriteAll(ctx, s.keyFor(artifact.ID), artifact.Data, opts); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.keyFor(artifact.ID), err)
	}
	return nil
}

// Load reads the artifact object and its metadata.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	key := s.keyFor(id)
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
		}
		return magma.Artifact{}, err
	}
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
		}
		return magma.Artifact{}, err
	}

	artifact := magma.Artifact{
		ID:       id,
		Route:    attrs.Metadata[metaRoute],
		MIMEType: mimeType(attrs.ContentType),
		Encoding: attrs.Metadata[metaEncoding],
		Data:     data,
		Modified: attrs.ModTime,
	}
	if raw, ok := attrs.Metadata[metaModified]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			artifact.Modified = t
		}
	}
	return artifact, nil
}

// Delete removes a flow's artifact. Deleting a missing artifact succeeds.
func (s *Store) Delete(ctx context.Context, id magma.FlowID) error {
	err := s.bucket.Delete(ctx, s.keyFor(id))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) keyFor(id magma.FlowID) string {
	return s.prefix + magma.ArtifactKey(id)
}

func contentType(a magma.Artifact) string {
	if a.MIMEType == "" {
		return "application/octet-stream"
	}
	if a.Encoding == "" {
		return a.MIMEType
	}
	return a.MIMEType + "; charset=" + a.Encoding
}

func mimeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}
