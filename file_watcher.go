package magma

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher watches files and directory trees with fsnotify. Directories
// are watched recursively, including directories created after the
// subscription starts.
type FSWatcher struct{}

// NewFSWatcher creates a new FSWatcher.
func NewFSWatcher() *FSWatcher {
	return &FSWatcher{}
}

// Watch subscribes to the given paths. Every path that exists at
// subscription time, and every entry below a directory path, is reported
// once with OpAdd before live changes are delivered.
func (w *FSWatcher) Watch(ctx context.Context, paths []string) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	var initial []string
	for _, p := range paths {
		found, err := addTree(watcher, p)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		initial = append(initial, found...)
	}

	out := make(chan Event)

	go func() {
		defer close(out)
		defer watcher.Close()

		send := func(e Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, p := range initial {
			if !send(Event{Op: OpAdd, Path: p}) {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				op, ok := translateOp(event.Op)
				if !ok {
					continue
				}
				if op == OpAdd {
					// New directories need their own watches.
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_, _ = addTree(watcher, event.Name) //nolint:errcheck // best effort, the dir may vanish
					}
				}
				if !send(Event{Op: op, Path: event.Name}) {
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Continue watching despite errors
			}
		}
	}()

	return out, nil
}

// addTree watches root and, if it is a directory, every directory below it.
// It returns every path found, root first.
func addTree(watcher *fsnotify.Watcher, root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		found = append(found, path)
		if d.IsDir() || path == root {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func translateOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpAdd, true
	case op.Has(fsnotify.Write):
		return OpChange, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		return "", false
	}
}
