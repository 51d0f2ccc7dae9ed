package magma

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/zoobzio/capitan"
)

// subscription tracks whether a watched path has produced its first event.
type subscription int

const (
	// justSubscribed paths existed when the watch was armed. Their first
	// event is the watcher announcing them and is swallowed.
	justSubscribed subscription = iota

	// armed paths trigger a reflow on every event.
	armed
)

// Start arms the watch if the flow has watching enabled, then performs the
// first run. The run's error is returned, but a watching flow stays armed
// after a failed run and reflows on the next change.
//
// In sync mode, Start does not spawn a goroutine. Use Process() to handle
// change notifications one at a time.
//
// Start can only be called once. Subsequent calls return ErrAlreadyStarted.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	f.mu.Unlock()

	if f.cfg.Watch {
		if err := f.arm(ctx); err != nil {
			return err
		}
	}
	return f.Run(ctx)
}

// Stop ends the watch subscription and waits for an in-flight reflow to
// finish. It is a no-op for flows that were never armed.
func (f *Flow) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
		return
	}
	f.runMu.Lock()
	f.setStopped(context.Background())
	f.runMu.Unlock()
}

// Process handles the next pending change notification.
// This is only available in sync mode and is used for deterministic testing.
// Returns false if no event is available or the channel is closed.
func (f *Flow) Process(ctx context.Context) bool {
	if !f.syncMode {
		return false
	}

	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events == nil {
		return false
	}

	select {
	case e, ok := <-events:
		if !ok {
			f.setStopped(ctx)
			return false
		}
		f.handle(ctx, e)
		return true
	default:
		return false
	}
}

// WatchedPaths returns every path the flow subscribed to, sorted.
func (f *Flow) WatchedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.subs))
	for p := range f.subs {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// arm resolves the configured paths and subscribes to them.
func (f *Flow) arm(ctx context.Context) error {
	roots, subs, err := f.resolveWatchPaths(ctx)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	events, err := f.watcher.Watch(watchCtx, roots)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	f.mu.Lock()
	f.subs = subs
	f.cancel = cancel
	if f.syncMode {
		f.events = events
	} else {
		f.done = make(chan struct{})
	}
	f.mu.Unlock()

	f.transitionState(ctx, StateUnarmed, StateArmed)
	capitan.Emit(ctx, WatchArmed,
		KeyFlowID.Field(int(f.id)),
		KeyRoute.Field(f.cfg.Route.String()),
		KeyFiles.Field(len(subs)),
	)

	if !f.syncMode {
		go f.watch(watchCtx, events)
	}
	return nil
}

// resolveWatchPaths returns the absolute configured paths that exist, and
// the subscription table holding them and everything below them.
func (f *Flow) resolveWatchPaths(ctx context.Context) ([]string, map[string]subscription, error) {
	var roots []string
	subs := make(map[string]subscription)

	for _, p := range f.cfg.Paths {
		full, err := filepath.Abs(f.cfg.Resolve(p))
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) {
			f.warnMissing(ctx, full)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", full, err)
		}

		switch {
		case info.IsDir():
			err := filepath.WalkDir(full, func(path string, _ fs.DirEntry, err error) error {
				if err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						return nil
					}
					return err
				}
				subs[path] = justSubscribed
				return nil
			})
			if err != nil {
				return nil, nil, fmt.Errorf("walk %s: %w", full, err)
			}
		case info.Mode().IsRegular():
			subs[full] = justSubscribed
		default:
			return nil, nil, &InvalidPathError{Path: full, Mode: info.Mode()}
		}
		if !slices.Contains(roots, full) {
			roots = append(roots, full)
		}
	}
	return roots, subs, nil
}

// watch handles events until the subscription ends.
func (f *Flow) watch(ctx context.Context, events <-chan Event) {
	defer close(f.done)
	defer f.setStopped(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			f.handle(ctx, e)
		}
	}
}

// handle swallows the first event for a just-subscribed path and reflows on
// every other event.
func (f *Flow) handle(ctx context.Context, e Event) {
	f.metrics.OnChangeReceived(f.id)
	capitan.Emit(ctx, ChangeReceived,
		KeyFlowID.Field(int(f.id)),
		KeyOp.Field(string(e.Op)),
		KeyPath.Field(e.Path),
	)

	if f.consumeFirst(e.Path) {
		capitan.Emit(ctx, ChangeSuppressed,
			KeyFlowID.Field(int(f.id)),
			KeyPath.Field(e.Path),
		)
		return
	}
	f.reflow(ctx)
}

// consumeFirst reports whether this is the first event for a path that was
// subscribed at arm time, and arms the path either way.
func (f *Flow) consumeFirst(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]subscription)
	}
	s, ok := f.subs[path]
	f.subs[path] = armed
	return ok && s == justSubscribed
}

// reflow runs the whole flow again. The run's error is kept in LastError.
func (f *Flow) reflow(ctx context.Context) {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if !f.transitionState(ctx, StateArmed, StateReflowing) {
		return
	}
	_ = f.run(ctx) //nolint:errcheck // Errors stored via fail
	f.transitionState(ctx, StateReflowing, StateArmed)
}

// setStopped moves the flow to StateStopped from any state.
func (f *Flow) setStopped(ctx context.Context) {
	old := State(f.state.Swap(int32(StateStopped)))
	if old == StateStopped {
		return
	}
	f.stateChanged(ctx, old, StateStopped)
	capitan.Emit(ctx, WatchStopped,
		KeyFlowID.Field(int(f.id)),
		KeyState.Field(old.String()),
	)
}
