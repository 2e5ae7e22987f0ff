package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// BuildRequest describes one manifest: which datasets (rounds), positions and
// channels to take, in the order that defines their indices.
type BuildRequest struct {
	Rounds         []string
	Positions      []int
	Channels       []string
	Time           int
	MetadataFormat string
	ZSlices        domain.ZSelection

	// Strict fails the build when any round matches no frames at all.
	Strict bool
}

// Validate checks the request without touching the record store.
func (r BuildRequest) Validate() (domain.MetadataKeys, error) {
	keys, err := domain.LookupMetadataKeys(r.MetadataFormat)
	if err != nil {
		return domain.MetadataKeys{}, err
	}
	if len(r.Rounds) == 0 {
		return domain.MetadataKeys{}, fmt.Errorf("%w: at least one round (dataset id) is required", domain.ErrConfiguration)
	}
	if len(r.Positions) == 0 {
		return domain.MetadataKeys{}, fmt.Errorf("%w: at least one position is required", domain.ErrConfiguration)
	}
	if len(r.Channels) == 0 {
		return domain.MetadataKeys{}, fmt.Errorf("%w: at least one channel is required", domain.ErrConfiguration)
	}
	if err := r.ZSlices.Validate(len(r.Rounds)); err != nil {
		return domain.MetadataKeys{}, err
	}
	return keys, nil
}

// BuildResult holds the rows of a manifest, before checksumming.
type BuildResult struct {
	Rows []domain.ManifestRow

	// RoundMatches counts the frames matched per round, in round order.
	RoundMatches []int
}

// Builder reconciles database frames with manifest coordinates.
type Builder struct {
	store  ports.FrameStore
	logger ports.Logger
}

// NewBuilder creates a Builder reading from store.
func NewBuilder(store ports.FrameStore, logger ports.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// Build iterates rounds, then positions, then channels, and emits one row per
// matched frame. All queries share one session which is released on return.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	keys, err := req.Validate()
	if err != nil {
		return BuildResult{}, err
	}

	res := BuildResult{RoundMatches: make([]int, len(req.Rounds))}
	err = ports.WithSession(ctx, b.store, func(s ports.Session) error {
		for r, dataset := range req.Rounds {
			slices := req.ZSlices.For(r)
			for fov, pos := range req.Positions {
				for ch, channel := range req.Channels {
					q := domain.FrameQuery{
						Dataset:  dataset,
						Position: pos,
						Channel:  channel,
						Time:     req.Time,
						Slices:   slices,
					}
					frames, err := s.Frames(ctx, q)
					if err != nil {
						return fmt.Errorf("%w: %s: %w", domain.ErrQuery, q, err)
					}
					rows, err := tileRows(keys, fov, r, ch, slices, frames)
					if err != nil {
						return fmt.Errorf("round %d (%s): %w", r, q, err)
					}
					res.Rows = append(res.Rows, rows...)
					res.RoundMatches[r] += len(rows)
				}
			}
		}
		return nil
	})
	if err != nil {
		return BuildResult{}, err
	}

	for r, n := range res.RoundMatches {
		if n > 0 {
			continue
		}
		b.logger.Warn("round matched no frames",
			ports.Int("round", r),
			ports.String("dataset", req.Rounds[r]),
			ports.Int("time", req.Time))
		if req.Strict {
			return BuildResult{}, fmt.Errorf("%w: round %d (dataset %s) matched no frames", domain.ErrNotFound, r, req.Rounds[r])
		}
	}
	if len(res.Rows) == 0 {
		return BuildResult{}, fmt.Errorf("%w: no frames match datasets %v, positions %v, channels %v, time %d",
			domain.ErrNotFound, req.Rounds, req.Positions, req.Channels, req.Time)
	}

	b.logger.Info("manifest rows built",
		ports.Int("rows", len(res.Rows)),
		ports.Any("round_matches", res.RoundMatches),
		ports.String("z_slices", req.ZSlices.String()))
	return res, nil
}

// tileRows turns the frames of one (round, position, channel) into rows.
// With a slice list, rows follow the list and z-planes are list positions;
// otherwise rows follow the store's order and keep native slice indices.
func tileRows(keys domain.MetadataKeys, fov, round, ch int, slices []int, frames []domain.Frame) ([]domain.ManifestRow, error) {
	row := func(zplane int, f domain.Frame) (domain.ManifestRow, error) {
		pos, err := keys.Extract(f.Metadata)
		if err != nil {
			return domain.ManifestRow{}, fmt.Errorf("frame %s slice %d: %w", f.FileName, f.SliceIdx, err)
		}
		return domain.NewManifestRow(fov, round, ch, zplane, f, pos), nil
	}

	var rows []domain.ManifestRow
	if slices == nil {
		for _, f := range frames {
			r, err := row(f.SliceIdx, f)
			if err != nil {
				return nil, err
			}
			rows = append(rows, r)
		}
		return rows, nil
	}

	bySlice := make(map[int][]domain.Frame, len(frames))
	for _, f := range frames {
		bySlice[f.SliceIdx] = append(bySlice[f.SliceIdx], f)
	}
	for zi, z := range slices {
		for _, f := range bySlice[z] {
			r, err := row(zi, f)
			if err != nil {
				return nil, err
			}
			rows = append(rows, r)
		}
	}
	return rows, nil
}
