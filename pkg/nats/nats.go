// Package nats provides a magma.Store backed by a NATS JetStream
// key-value bucket.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zoobzio/magma"
)

// Store saves artifact envelopes in kv, keyed by prefix + flow id. Bucket
// history, replication and TTL are configured on the bucket itself.
type Store struct {
	kv     jetstream.KeyValue
	prefix string
	codec  magma.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Keys may not contain "/", so use "." as
// a separator.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithCodec sets the envelope codec. Defaults to JSON.
func WithCodec(codec magma.Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

// New creates a Store over kv.
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		prefix: "artifact.",
		codec:  magma.JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ magma.Store      = (*Store)(nil)
	_ magma.Loader     = (*Store)(nil)
	_ magma.Subscriber = (*Store)(nil)
)

// Save puts the artifact envelope.
func (s *Store) Save(ctx context.Context, artifact magma.Artifact) error {
	data, err := magma.EncodeArtifact(s.codec, artifact)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.key(artifact.ID), data); err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key(artifact.ID), err)
	}
	return nil
}

// Load gets the artifact envelope for id.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	entry, err := s.kv.Get(ctx, s.key(id))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to get %s: %w", s.key(id), err)
	}
	return magma.DecodeArtifact(s.codec, entry.Value())
}

// Watch emits the flow's artifact every time it is saved. The current
// value is delivered first by the KV watcher.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	watcher, err := s.kv.Watch(ctx, s.key(id))
	if err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	out := make(chan magma.Artifact)

	go func() {
		defer close(out)
		defer watcher.Stop() //nolint:errcheck // nothing to do on stop failure

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil entry marks the end of initial values
				if entry == nil {
					continue
				}
				if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
					continue
				}

				artifact, err := magma.DecodeArtifact(s.codec, entry.Value())
				if err != nil {
					continue
				}
				select {
				case out <- artifact:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) key(id magma.FlowID) string {
	return s.prefix + magma.ArtifactKey(id)
}
