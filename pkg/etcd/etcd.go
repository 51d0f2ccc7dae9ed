// Package etcd provides a magma.Store backed by etcd keys.
package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zoobzio/magma"
)

// Store saves artifact envelopes under prefix + flow id.
type Store struct {
	client *clientv3.Client
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
func New(client *clientv3.Client, prefix string, opts ...Option) *Store {
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
	if _, err := s.client.Put(ctx, s.key(artifact.ID), string(data)); err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key(artifact.ID), err)
	}
	return nil
}

// Load gets the artifact envelope for id.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to get %s: %w", s.key(id), err)
	}
	if len(resp.Kvs) == 0 {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	return magma.DecodeArtifact(s.codec, resp.Kvs[0].Value)
}

// Watch emits the flow's artifact every time it is saved, starting from
// the current value if one exists. Deletes are ignored.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan magma.Artifact)

	go func() {
		defer close(out)

		emit := func(data []byte) bool {
			artifact, err := magma.DecodeArtifact(s.codec, data)
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

		if len(resp.Kvs) > 0 && !emit(resp.Kvs[0].Value) {
			return
		}

		watchChan := s.client.Watch(ctx, s.key(id), clientv3.WithRev(resp.Header.Revision+1))
		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					continue
				}
				for _, event := range watchResp.Events {
					if event.Type == clientv3.EventTypePut && !emit(event.Kv.Value) {
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) key(id magma.FlowID) string {
	return s.prefix + magma.ArtifactKey(id)
}
