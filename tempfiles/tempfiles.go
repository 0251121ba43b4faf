// Package tempfiles allocates paths for intermediate build artifacts.
package tempfiles

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
)

// Allocator hands out writable paths.
type Allocator interface {
	// Create returns a new, unique path named prefix + N + suffix. The
	// file exists and is empty when Create returns.
	Create(prefix, suffix string) (string, error)
}

// Dir is an Allocator backed by a lazily created directory.
// Not safe for concurrent use.
type Dir struct {
	// Parent is where the directory is created; os.TempDir() when empty.
	Parent string
	// KeepFiles leaves the directory in place on Dispose.
	KeepFiles bool

	path  string
	files []string
}

// Path returns the directory, or "" before the first Create.
func (d *Dir) Path() string {
	return d.path
}

// Files returns the paths created so far.
func (d *Dir) Files() []string {
	return append([]string(nil), d.files...)
}

func (d *Dir) Create(prefix, suffix string) (string, error) {
	if d.path == "" {
		if d.Parent != "" {
			if err := os.MkdirAll(d.Parent, 0o755); err != nil {
				return "", fmt.Errorf("create temp parent: %w", err)
			}
		}
		dir, err := os.MkdirTemp(d.Parent, "ltolink-")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		d.path = dir
	}

	f, err := os.CreateTemp(d.path, prefix+"*"+suffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	d.files = append(d.files, name)
	return name, nil
}

// Dispose removes every created file and the directory itself, unless
// KeepFiles is set.
func (d *Dir) Dispose() error {
	if d.KeepFiles || d.path == "" {
		return nil
	}

	var err error
	for _, f := range d.files {
		if rmErr := os.Remove(f); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	err = multierr.Append(err, os.RemoveAll(d.path))

	d.files = nil
	d.path = ""
	return err
}
