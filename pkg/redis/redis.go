// Package redis provides a magma.Store backed by Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zoobzio/magma"
)

// DefaultPrefix is prepended to every artifact key.
const DefaultPrefix = "magma:artifact:"

// Store saves artifact envelopes under one key per flow. When a channel is
// configured, the flow identity is published after every save so other
// processes can pick up fresh artifacts.
type Store struct {
	client  *redis.Client
	prefix  string
	channel string
	codec   magma.Codec
	ttl     time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Defaults to DefaultPrefix.
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

// WithTTL expires artifacts after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithChannel publishes the saved key on channel after each save.
func WithChannel(channel string) Option {
	return func(s *Store) {
		s.channel = channel
	}
}

// New creates a Store using client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
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

// ErrNoChannel is returned by Watch when the store has no publish channel.
var ErrNoChannel = errors.New("redis store has no channel configured")

// Save writes the artifact envelope.
func (s *Store) Save(ctx context.Context, artifact magma.Artifact) error {
	data, err := magma.EncodeArtifact(s.codec, artifact)
	if err != nil {
		return err
	}

	key := s.key(artifact.ID)
	if s.channel == "" {
		return s.client.Set(ctx, key, data, s.ttl).Err()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.ttl)
		pipe.Publish(ctx, s.channel, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Load reads the latest artifact for id.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to load %s: %w", s.key(id), err)
	}
	return magma.DecodeArtifact(s.codec, data)
}

// Watch emits the flow's artifact after every save published on the
// store's channel. The current artifact is emitted immediately if one
// exists. Requires WithChannel.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	if s.channel == "" {
		return nil, ErrNoChannel
	}

	pubsub := s.client.Subscribe(ctx, s.channel)

	// Verify subscription worked
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	key := s.key(id)
	out := make(chan magma.Artifact)

	go func() {
		defer close(out)
		defer pubsub.Close()

		emit := func() bool {
			artifact, err := s.Load(ctx, id)
			if err != nil {
				return ctx.Err() == nil
			}
			select {
			case out <- artifact:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != key {
					continue
				}
				if !emit() {
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
