// Package memory provides an in-memory record store that records the
// queries and sessions it serves.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// Store implements ports.FrameStore over a fixed list of frames. Frames are
// returned in insertion order.
type Store struct {
	mu      sync.Mutex
	frames  []domain.Frame
	queries []domain.FrameQuery
	open    int
	opened  int

	// Err, when set, is returned by every session query.
	Err error
}

// NewStore creates a Store holding frames.
func NewStore(frames ...domain.Frame) *Store {
	return &Store{frames: append([]domain.Frame(nil), frames...)}
}

// Add appends frames to the store.
func (s *Store) Add(frames ...domain.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
}

// Session opens a session on the store.
func (s *Store) Session(ctx context.Context) (ports.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open++
	s.opened++
	return &session{store: s}, nil
}

// Queries returns every frame query issued so far.
func (s *Store) Queries() []domain.FrameQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FrameQuery(nil), s.queries...)
}

// OpenSessions returns the number of sessions not yet closed.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// SessionsOpened returns the number of sessions ever opened.
func (s *Store) SessionsOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type session struct {
	store  *Store
	closed bool
}

func (ss *session) check(ctx context.Context) error {
	if ss.closed {
		return ports.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ss.store.Err
}

func (ss *session) Frames(ctx context.Context, q domain.FrameQuery) ([]domain.Frame, error) {
	s := ss.store
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if err := ss.check(ctx); err != nil {
		return nil, err
	}

	var want map[int]struct{}
	if q.Slices != nil {
		want = make(map[int]struct{}, len(q.Slices))
		for _, z := range q.Slices {
			want[z] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Frame
	for _, f := range s.frames {
		if f.DatasetSerial != q.Dataset || f.PosIdx != q.Position || f.ChannelName != q.Channel || f.TimeIdx != q.Time {
			continue
		}
		if want != nil {
			if _, ok := want[f.SliceIdx]; !ok {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (ss *session) Datasets(ctx context.Context) ([]string, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, f := range ss.store.frames {
		if _, ok := seen[f.DatasetSerial]; ok {
			continue
		}
		seen[f.DatasetSerial] = struct{}{}
		out = append(out, f.DatasetSerial)
	}
	sort.Strings(out)
	return out, nil
}

func (ss *session) Positions(ctx context.Context, dataset string) ([]int, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()
	seen := map[int]struct{}{}
	var out []int
	for _, f := range ss.store.frames {
		if f.DatasetSerial != dataset {
			continue
		}
		if _, ok := seen[f.PosIdx]; ok {
			continue
		}
		seen[f.PosIdx] = struct{}{}
		out = append(out, f.PosIdx)
	}
	sort.Ints(out)
	return out, nil
}

func (ss *session) Channels(ctx context.Context, dataset string) (map[int]string, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()
	out := map[int]string{}
	for _, f := range ss.store.frames {
		if f.DatasetSerial == dataset {
			out[f.ChannelIdx] = f.ChannelName
		}
	}
	return out, nil
}

func (ss *session) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	ss.store.mu.Lock()
	ss.store.open--
	ss.store.mu.Unlock()
	return nil
}

var _ ports.FrameStore = (*Store)(nil)
