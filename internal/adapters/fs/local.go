// Package fs implements storage ports on the local file system.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bft-labs/insitu/internal/ports"
)

// ErrOutsideBase is returned for tile paths that resolve outside the base
// directory.
var ErrOutsideBase = errors.New("path escapes storage root")

// LocalStorage implements ports.Storage by resolving tile paths under a base
// directory, typically the mount point of the imaging bucket.
type LocalStorage struct {
	base string
}

// NewLocalStorage creates a LocalStorage rooted at base. An empty base
// resolves paths against the working directory.
func NewLocalStorage(base string) *LocalStorage {
	return &LocalStorage{base: base}
}

// Open opens the file at path, relative to the base directory.
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(name)
}

// Resolve returns the local file name for a normalized tile path. Paths that
// climb out of the base directory are rejected with ErrOutsideBase.
func (s *LocalStorage) Resolve(path string) (string, error) {
	native := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(path, "/")))
	if native == ".." || strings.HasPrefix(native, ".."+string(filepath.Separator)) || filepath.IsAbs(native) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	if s.base == "" {
		return native, nil
	}
	return filepath.Join(s.base, native), nil
}

// Base returns the base directory.
func (s *LocalStorage) Base() string {
	return s.base
}

func (s *LocalStorage) String() string {
	return fmt.Sprintf("local:%s", s.base)
}

var _ ports.Storage = (*LocalStorage)(nil)
