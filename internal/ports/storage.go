package ports

import (
	"context"
	"io"
)

// Storage resolves a normalized tile path against a base location and
// returns its content.
type Storage interface {
	// Open returns a reader over the full content of the file at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
