// Package testing provides test utilities and helpers for magma flows.
package testing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/magma"
)

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the flow reaches the expected state or timeout occurs.
func WaitForState(t *testing.T, f *magma.Flow, expected magma.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return f.State() == expected
	})
}

// RequireState fails the test immediately if the flow is not in the expected state.
func RequireState(t *testing.T, f *magma.Flow, expected magma.State) {
	t.Helper()
	if got := f.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// WriteTree writes files (relative path to contents) under a fresh temp
// directory and returns the directory.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// RequireArtifact fails the test unless loader holds an artifact for id
// whose data equals want. It returns the artifact.
func RequireArtifact(t *testing.T, loader magma.Loader, id magma.FlowID, want string) magma.Artifact {
	t.Helper()
	artifact, err := loader.Load(context.Background(), id)
	if errors.Is(err, magma.ErrNotFound) {
		t.Fatalf("expected artifact for flow %d, got none", id)
	}
	if err != nil {
		t.Fatalf("load flow %d: %v", id, err)
	}
	if string(artifact.Data) != want {
		t.Fatalf("flow %d: expected %q, got %q", id, want, artifact.Data)
	}
	return artifact
}

// NewTestFlow creates a watched flow rooted at root, driven by a sync
// channel watcher and saving into a memory store. Returns the flow, the
// store and a channel for sending watch events.
func NewTestFlow(t *testing.T, root string, spec magma.Spec, opts ...magma.Option) (*magma.Flow, *magma.MemoryStore, chan<- magma.Event) {
	t.Helper()
	ch := make(chan magma.Event, 10)
	store := magma.NewMemoryStore()

	watch := true
	spec.Watch = &watch

	opts = append([]magma.Option{
		magma.WithWatcher(magma.NewSyncChannelWatcher(ch)),
		magma.WithSyncMode(),
	}, opts...)

	engine := magma.NewEngine(magma.Defaults{Root: root}, store, opts...)
	t.Cleanup(func() { _ = engine.Close() })

	f, err := engine.NewFlow(spec)
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}
	return f, store, ch
}
