package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// Catalog answers discovery questions about the imaging database.
type Catalog struct {
	store ports.FrameStore
}

// NewCatalog creates a Catalog over store.
func NewCatalog(store ports.FrameStore) *Catalog {
	return &Catalog{store: store}
}

// SearchIDs returns the dataset serials containing substr, sorted. An empty
// substr matches every dataset.
func (c *Catalog) SearchIDs(ctx context.Context, substr string) ([]string, error) {
	var out []string
	err := ports.WithSession(ctx, c.store, func(s ports.Session) error {
		all, err := s.Datasets(ctx)
		if err != nil {
			return fmt.Errorf("%w: list datasets: %w", domain.ErrQuery, err)
		}
		for _, id := range all {
			if strings.Contains(id, substr) {
				out = append(out, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Positions returns the distinct position indices of dataset, sorted.
func (c *Catalog) Positions(ctx context.Context, dataset string) ([]int, error) {
	var out []int
	err := ports.WithSession(ctx, c.store, func(s ports.Session) error {
		var err error
		out, err = s.Positions(ctx, dataset)
		if err != nil {
			return fmt.Errorf("%w: positions of %s: %w", domain.ErrQuery, dataset, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no frames", domain.ErrNotFound, dataset)
	}
	sort.Ints(out)
	return out, nil
}

// Channels returns the channel names of dataset keyed by channel index.
func (c *Catalog) Channels(ctx context.Context, dataset string) (map[int]string, error) {
	var out map[int]string
	err := ports.WithSession(ctx, c.store, func(s ports.Session) error {
		var err error
		out, err = s.Channels(ctx, dataset)
		if err != nil {
			return fmt.Errorf("%w: channels of %s: %w", domain.ErrQuery, dataset, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no frames", domain.ErrNotFound, dataset)
	}
	return out, nil
}
