package magma

import (
	"context"
	"slices"
	"sync"
)

// ChannelWatcher wraps an existing event channel as a Watcher.
// Useful for testing and for custom change sources.
type ChannelWatcher struct {
	ch   <-chan Event
	sync bool

	mu    sync.Mutex
	paths []string
}

// NewChannelWatcher creates a ChannelWatcher that forwards events from the
// given channel through an internal goroutine.
func NewChannelWatcher(ch <-chan Event) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// NewSyncChannelWatcher creates a ChannelWatcher that returns the source
// channel directly without an intermediate goroutine.
// Use with WithSyncMode() for deterministic testing.
func NewSyncChannelWatcher(ch <-chan Event) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, sync: true}
}

// Paths returns the paths passed to the most recent Watch call.
func (w *ChannelWatcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.paths)
}

// Watch returns a channel that emits events from the wrapped channel.
func (w *ChannelWatcher) Watch(ctx context.Context, paths []string) (<-chan Event, error) {
	w.mu.Lock()
	w.paths = slices.Clone(paths)
	w.mu.Unlock()

	if w.sync {
		return w.ch, nil
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.ch:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
