package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/insitu/internal/domain"
)

// FrameStore hands out scoped sessions on the imaging database.
type FrameStore interface {
	// Session opens a read session. The caller must Close it.
	Session(ctx context.Context) (Session, error)
}

// Session is a short-lived, read-only view of the imaging database.
// Queries are order-insensitive; implementations return frames in a stable
// order so that repeated builds are identical.
type Session interface {
	// Frames returns the frames matching the query, possibly none.
	Frames(ctx context.Context, q domain.FrameQuery) ([]domain.Frame, error)

	// Datasets returns every dataset serial in the database.
	Datasets(ctx context.Context) ([]string, error)

	// Positions returns the distinct position indices of a dataset.
	Positions(ctx context.Context, dataset string) ([]int, error)

	// Channels returns the channel index to channel name assignment of a dataset.
	Channels(ctx context.Context, dataset string) (map[int]string, error)

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// WithSession opens a session, runs fn and releases the session on every
// exit path. A store that cannot open a session yields domain.ErrQuery.
// A close failure is reported only when fn succeeded.
func WithSession(ctx context.Context, store FrameStore, fn func(Session) error) (err error) {
	s, err := store.Session(ctx)
	if err != nil {
		return fmt.Errorf("%w: open session: %w", domain.ErrQuery, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// ErrSessionClosed is returned by sessions used after Close.
var ErrSessionClosed = errors.New("session closed")
