// Package consul provides a magma.Store backed by Consul KV.
package consul

import (
	"context"
	"fmt"

	"github.com/hashicorp/consul/api"

	"github.com/zoobzio/magma"
)

// Store saves artifact envelopes under prefix + flow id. Consul limits
// values to 512KB by default.
type Store struct {
	client *api.Client
	prefix string
	codec  magma.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the envelope codec. Defaults to JSON.
func WithCodec(codec magma.Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

// New creates a Store for keys under prefix.
func New(client *api.Client, prefix string, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: prefix,
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
	pair := &api.KVPair{Key: s.key(artifact.ID), Value: data}
	if _, err := s.client.KV().Put(pair, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to put %s: %w", pair.Key, err)
	}
	return nil
}

// Load gets the artifact envelope for id.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	pair, _, err := s.client.KV().Get(s.key(id), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to get %s: %w", s.key(id), err)
	}
	if pair == nil {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	return magma.DecodeArtifact(s.codec, pair.Value)
}

// Watch emits the flow's artifact every time it is saved, using blocking
// queries. The current value is emitted first if one exists.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	kv := s.client.KV()
	key := s.key(id)

	pair, meta, err := kv.Get(key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan magma.Artifact)

	go func() {
		defer close(out)

		emit := func(p *api.KVPair) bool {
			artifact, err := magma.DecodeArtifact(s.codec, p.Value)
			if err != nil {
				return true
			}
			select {
			case out <- artifact:
				return true
			case <-ctx.Done():
				return false
			}
		}

		lastIndex := meta.LastIndex
		if pair != nil && !emit(pair) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			opts := (&api.QueryOptions{WaitIndex: lastIndex}).WithContext(ctx)
			pair, meta, err := kv.Get(key, opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			if meta.LastIndex <= lastIndex {
				continue
			}
			lastIndex = meta.LastIndex
			if pair != nil && !emit(pair) {
				return
			}
		}
	}()

	return out, nil
}

func (s *Store) key(id magma.FlowID) string {
	return s.prefix + magma.ArtifactKey(id)
}
