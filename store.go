package magma

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Artifact is the output of one successful run, keyed by flow identity.
type Artifact struct {
	ID       FlowID    `json:"id" yaml:"id"`
	Route    string    `json:"route" yaml:"route"`
	MIMEType string    `json:"mime_type" yaml:"mime_type"`
	Encoding string    `json:"encoding" yaml:"encoding"`
	Data     []byte    `json:"data" yaml:"data"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// Key is the storage key for the artifact's flow.
func (a Artifact) Key() string {
	return ArtifactKey(a.ID)
}

// ArtifactKey returns the storage key for a flow identity.
func ArtifactKey(id FlowID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Store persists finished artifacts. Save is called once per successful
// run and is never retried.
type Store interface {
	Save(ctx context.Context, artifact Artifact) error
}

// Loader reads back the most recent artifact for a flow. Stores that can
// serve artifacts implement it alongside Store. Load returns an error
// wrapping ErrNotFound when nothing has been saved for id.
type Loader interface {
	Load(ctx context.Context, id FlowID) (Artifact, error)
}

// Subscriber streams a flow's artifact each time it is saved, starting
// with the current artifact if one exists. The channel closes when ctx is
// done.
type Subscriber interface {
	Watch(ctx context.Context, id FlowID) (<-chan Artifact, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, artifact Artifact) error

// Save calls f.
func (f StoreFunc) Save(ctx context.Context, artifact Artifact) error {
	return f(ctx, artifact)
}

// EncodeArtifact serializes an artifact envelope for key-value backends.
func EncodeArtifact(codec Codec, artifact Artifact) ([]byte, error) {
	data, err := codec.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("encode artifact %d: %w", artifact.ID, err)
	}
	return data, nil
}

// DecodeArtifact parses an envelope written by EncodeArtifact.
func DecodeArtifact(codec Codec, data []byte) (Artifact, error) {
	var artifact Artifact
	if err := codec.Unmarshal(data, &artifact); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return artifact, nil
}
