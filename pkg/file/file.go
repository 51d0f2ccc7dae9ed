// Package file provides a magma.Store that writes artifacts to a local
// directory.
//
// Each flow produces two files: "<id>" holds the artifact bytes and
// "<id>.json" its metadata. Both are replaced atomically, data first, so a
// reader that sees new metadata also sees the data it describes.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/zoobzio/magma"
)

const metaExt = ".json"

// Store writes artifacts below dir.
type Store struct {
	dir   string
	codec magma.Codec
}

// New creates a Store writing to dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{dir: dir, codec: magma.JSONCodec{}}
}

var (
	_ magma.Store      = (*Store)(nil)
	_ magma.Loader     = (*Store)(nil)
	_ magma.Subscriber = (*Store)(nil)
)

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// DataPath returns the path of the artifact bytes for id.
func (s *Store) DataPath(id magma.FlowID) string {
	return filepath.Join(s.dir, magma.ArtifactKey(id))
}

func (s *Store) metaPath(id magma.FlowID) string {
	return s.DataPath(id) + metaExt
}

// Save writes the artifact bytes, then its metadata.
func (s *Store) Save(_ context.Context, artifact magma.Artifact) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	meta := artifact
	meta.Data = nil
	encoded, err := magma.EncodeArtifact(s.codec, meta)
	if err != nil {
		return err
	}

	if err := writeAtomic(s.DataPath(artifact.ID), artifact.Data); err != nil {
		return err
	}
	return writeAtomic(s.metaPath(artifact.ID), encoded)
}

// Load reads the artifact metadata and bytes for id.
func (s *Store) Load(_ context.Context, id magma.FlowID) (magma.Artifact, error) {
	encoded, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, err
	}

	artifact, err := magma.DecodeArtifact(s.codec, encoded)
	if err != nil {
		return magma.Artifact{}, err
	}

	artifact.Data, err = os.ReadFile(s.DataPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, err
	}
	return artifact, nil
}

// Watch emits the flow's artifact whenever its metadata file is replaced.
// The current artifact is emitted immediately if one exists. The directory
// must exist.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	target := filepath.Clean(s.metaPath(id))
	out := make(chan magma.Artifact)

	go func() {
		defer close(out)
		defer watcher.Close()

		emit := func() bool {
			artifact, err := s.Load(ctx, id)
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

		if !emit() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				if !emit() {
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

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
