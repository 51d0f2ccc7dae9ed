package magma

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps artifacts in memory. It records every save, which makes
// it the store of choice in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  map[FlowID]Artifact
	history []Artifact
	subs    map[FlowID]map[chan struct{}]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest: make(map[FlowID]Artifact),
		subs:   make(map[FlowID]map[chan struct{}]struct{}),
	}
}

// Save records the artifact as the latest for its flow.
func (s *MemoryStore) Save(_ context.Context, artifact Artifact) error {
	artifact.Data = slices.Clone(artifact.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[artifact.ID] = artifact
	s.history = append(s.history, artifact)
	for notify := range s.subs[artifact.ID] {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// Load returns the latest artifact saved for id.
func (s *MemoryStore) Load(_ context.Context, id FlowID) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.latest[id]
	if !ok {
		return Artifact{}, fmt.Errorf("flow %d: %w", id, ErrNotFound)
	}
	return artifact, nil
}

// Saved returns every artifact saved so far, in order.
func (s *MemoryStore) Saved() []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

// Count returns the number of saves.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Watch emits the flow's latest artifact, if any, and then the latest
// artifact after each save. Saves that land while the receiver is busy
// are coalesced into one delivery.
func (s *MemoryStore) Watch(ctx context.Context, id FlowID) (<-chan Artifact, error) {
	notify := make(chan struct{}, 1)

	s.mu.Lock()
	if s.subs[id] == nil {
		s.subs[id] = make(map[chan struct{}]struct{})
	}
	s.subs[id][notify] = struct{}{}
	if _, ok := s.latest[id]; ok {
		notify <- struct{}{}
	}
	s.mu.Unlock()

	out := make(chan Artifact)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs[id], notify)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				artifact, err := s.Load(ctx, id)
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

var (
	_ Store      = (*MemoryStore)(nil)
	_ Loader     = (*MemoryStore)(nil)
	_ Subscriber = (*MemoryStore)(nil)
)
