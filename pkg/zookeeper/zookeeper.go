// Package zookeeper provides a magma.Store backed by ZooKeeper nodes.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-zookeeper/zk"

	"github.com/zoobzio/magma"
)

// Store saves artifact envelopes as nodes under base, one per flow.
// ZooKeeper limits node data to 1MB by default.
type Store struct {
	conn  *zk.Conn
	base  string
	codec magma.Codec
	acl   []zk.ACL
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the envelope codec. Defaults to JSON.
func WithCodec(codec magma.Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

// WithACL sets the ACL for created nodes. Defaults to world-writable.
func WithACL(acl []zk.ACL) Option {
	return func(s *Store) {
		s.acl = acl
	}
}

// New creates a Store for nodes under base, e.g. "/magma/artifacts".
func New(conn *zk.Conn, base string, opts ...Option) *Store {
	s := &Store{
		conn:  conn,
		base:  path.Clean("/" + base),
		codec: magma.JSONCodec{},
		acl:   zk.WorldACL(zk.PermAll),
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

// Save sets the flow's node, creating it and its parents if needed.
func (s *Store) Save(_ context.Context, artifact magma.Artifact) error {
	data, err := magma.EncodeArtifact(s.codec, artifact)
	if err != nil {
		return err
	}

	node := s.node(artifact.ID)
	_, err = s.conn.Set(node, data, -1)
	if errors.Is(err, zk.ErrNoNode) {
		if err := s.ensureParents(); err != nil {
			return err
		}
		_, err = s.conn.Create(node, data, 0, s.acl)
		if errors.Is(err, zk.ErrNodeExists) {
			_, err = s.conn.Set(node, data, -1)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", node, err)
	}
	return nil
}

// Load reads the flow's node.
func (s *Store) Load(_ context.Context, id magma.FlowID) (magma.Artifact, error) {
	data, _, err := s.conn.Get(s.node(id))
	if errors.Is(err, zk.ErrNoNode) {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to get %s: %w", s.node(id), err)
	}
	return magma.DecodeArtifact(s.codec, data)
}

// Watch emits the flow's artifact every time its node changes, starting
// with the current value. If the node does not exist yet, Watch waits for
// it to be created.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	node := s.node(id)
	out := make(chan magma.Artifact)

	go func() {
		defer close(out)

		for {
			// Get current value and set watch
			data, _, eventCh, err := s.conn.GetW(node)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Node doesn't exist yet, watch for creation
				exists, _, existCh, err := s.conn.ExistsW(node)
				if err != nil {
					return
				}
				if !exists {
					select {
					case <-ctx.Done():
						return
					case <-existCh:
					}
				}
				continue
			}

			if artifact, err := magma.DecodeArtifact(s.codec, data); err == nil {
				select {
				case out <- artifact:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-eventCh:
			}
		}
	}()

	return out, nil
}

func (s *Store) ensureParents() error {
	current := ""
	for _, part := range strings.Split(strings.Trim(s.base, "/"), "/") {
		if part == "" {
			continue
		}
		current += "/" + part
		_, err := s.conn.Create(current, nil, 0, s.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("failed to create %s: %w", current, err)
		}
	}
	return nil
}

func (s *Store) node(id magma.FlowID) string {
	return path.Join(s.base, magma.ArtifactKey(id))
}
