package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic writes the output of fn to path. Content goes to path+".tmp"
// first and is renamed over path only when fn, the sync and the close all
// succeed; on failure the temporary file is removed and path is untouched.
func WriteAtomic(path string, perm os.FileMode, fn func(w io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = fn(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmp, path)
}
