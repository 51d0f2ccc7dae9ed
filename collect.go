package magma

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Collection is the result of one collector pass.
type Collection struct {
	// Files are in traversal order: configured paths in declaration order,
	// directory children in lexical order, depth first.
	Files []*File

	// Missing lists configured paths that did not exist and were skipped.
	Missing []string
}

// collector accumulates files for one pass. A path is recorded at most once.
type collector struct {
	cfg   *Config
	files []*File
	index map[string]int
}

// Collect walks the configured paths and reads every matching file. Each
// call starts from an empty set. Missing paths are reported in
// Collection.Missing; a path that is neither a file nor a directory fails
// the pass with an *InvalidPathError.
func Collect(cfg *Config) (*Collection, error) {
	c := &collector{
		cfg:   cfg,
		index: make(map[string]int),
	}
	result := &Collection{}

	for _, p := range cfg.Paths {
		full := cfg.Resolve(p)
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) {
			result.Missing = append(result.Missing, full)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", full, err)
		}
		if err := c.add(full, info, nil); err != nil {
			return nil, err
		}
	}

	result.Files = c.files
	return result, nil
}

// add collects full. ancestors holds the directories above it; a directory
// that is one of its own ancestors through a symlink is skipped.
func (c *collector) add(full string, info fs.FileInfo, ancestors []fs.FileInfo) error {
	switch {
	case info.IsDir():
		for _, a := range ancestors {
			if os.SameFile(a, info) {
				return nil
			}
		}
		return c.addDir(full, append(ancestors, info))
	case info.Mode().IsRegular():
		return c.addFile(full)
	default:
		return &InvalidPathError{Path: full, Mode: info.Mode()}
	}
}

func (c *collector) addDir(dir string, ancestors []fs.FileInfo) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		info, err := os.Stat(child)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// dangling symlink
				continue
			}
			return fmt.Errorf("stat %s: %w", child, err)
		}
		if !info.IsDir() {
			if !c.cfg.HasExtension(extension(child)) {
				continue
			}
			if _, added := c.index[child]; added {
				continue
			}
		}
		if err := c.add(child, info, ancestors); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) addFile(full string) error {
	raw, err := os.ReadFile(full) //#nosec G304 -- paths come from flow configuration
	if err != nil {
		return fmt.Errorf("read %s: %w", full, err)
	}
	contents, err := decode(raw, c.cfg.Encoding)
	if err != nil {
		return fmt.Errorf("read %s: %w", full, err)
	}

	file := &File{
		Name:        filepath.Base(full),
		Path:        full,
		Contents:    contents,
		ContentType: DetectContentType(full),
	}

	if i, ok := c.index[full]; ok {
		c.files[i] = file
		return nil
	}
	c.index[full] = len(c.files)
	c.files = append(c.files, file)
	return nil
}
