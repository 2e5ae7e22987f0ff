package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/bft-labs/insitu/internal/adapters/fs"
	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

var manifestHeader = []string{
	"", "fov", "round", "ch", "zplane", "path", "sha256",
	"xc_min", "xc_max", "yc_min", "yc_max", "zc_min", "zc_max",
	"tile_width", "tile_height",
}

// UniformTileSize returns the tile geometry shared by all rows. An empty
// manifest has a zero size.
func UniformTileSize(rows []domain.ManifestRow) (domain.TileSize, error) {
	if len(rows) == 0 {
		return domain.TileSize{}, nil
	}
	size := domain.TileSize{Width: rows[0].TileWidth, Height: rows[0].TileHeight}
	for i, r := range rows[1:] {
		if r.TileWidth != size.Width || r.TileHeight != size.Height {
			return domain.TileSize{}, fmt.Errorf("%w: row %d (%s) is %dx%d, manifest tiles are %dx%d",
				domain.ErrConfiguration, i+1, r.Path, r.TileWidth, r.TileHeight, size.Width, size.Height)
		}
	}
	return size, nil
}

// WriteManifest serializes rows as CSV at path and returns their tile size.
// The file appears at path only once it is complete.
func WriteManifest(path string, rows []domain.ManifestRow) (domain.TileSize, error) {
	size, err := UniformTileSize(rows)
	if err != nil {
		return domain.TileSize{}, err
	}
	err = fs.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return EncodeManifest(w, rows)
	})
	if err != nil {
		return domain.TileSize{}, fmt.Errorf("%w: write manifest %s: %w", domain.ErrIO, path, err)
	}
	return size, nil
}

// EncodeManifest writes the CSV header and one record per row to w.
func EncodeManifest(w io.Writer, rows []domain.ManifestRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(manifestHeader); err != nil {
		return err
	}
	rec := make([]string, len(manifestHeader))
	for i, r := range rows {
		rec[0] = strconv.Itoa(i)
		rec[1] = strconv.Itoa(r.FOV)
		rec[2] = strconv.Itoa(r.Round)
		rec[3] = strconv.Itoa(r.Channel)
		rec[4] = strconv.Itoa(r.ZPlane)
		rec[5] = r.Path
		rec[6] = r.SHA256
		rec[7] = formatFloat(r.XCMin)
		rec[8] = formatFloat(r.XCMax)
		rec[9] = formatFloat(r.YCMin)
		rec[10] = formatFloat(r.YCMax)
		rec[11] = formatFloat(r.ZCMin)
		rec[12] = formatFloat(r.ZCMax)
		rec[13] = strconv.Itoa(r.TileWidth)
		rec[14] = strconv.Itoa(r.TileHeight)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ChecksumSource selects where manifest digests come from.
type ChecksumSource string

const (
	// ChecksumContent hashes every tile's bytes.
	ChecksumContent ChecksumSource = "content"
	// ChecksumRecorded trusts digests stored in the database and hashes only
	// tiles that have none.
	ChecksumRecorded ChecksumSource = "recorded"
)

// ParseChecksumSource validates a checksum source name. Empty means content.
func ParseChecksumSource(s string) (ChecksumSource, error) {
	switch ChecksumSource(s) {
	case "", ChecksumContent:
		return ChecksumContent, nil
	case ChecksumRecorded:
		return ChecksumRecorded, nil
	}
	return "", fmt.Errorf("%w: unknown checksum source %q (want %s or %s)",
		domain.ErrConfiguration, s, ChecksumContent, ChecksumRecorded)
}

// ManifestJob builds, checksums and writes one manifest.
type ManifestJob struct {
	Builder  *Builder
	Checksum *ChecksumPass
	Source   ChecksumSource
	Logger   ports.Logger
}

// ManifestResult describes a written manifest.
type ManifestResult struct {
	Path         string
	Rows         int
	RoundMatches []int
	TileSize     domain.TileSize
}

// Run executes the job and writes the manifest to path. Nothing is written
// when building or checksumming fails.
func (j *ManifestJob) Run(ctx context.Context, req BuildRequest, path string) (ManifestResult, error) {
	built, err := j.Builder.Build(ctx, req)
	if err != nil {
		return ManifestResult{}, err
	}

	switch j.Source {
	case ChecksumRecorded:
		err = j.Checksum.FillMissing(ctx, built.Rows)
	default:
		err = j.Checksum.Fill(ctx, built.Rows)
	}
	if err != nil {
		return ManifestResult{}, err
	}

	size, err := WriteManifest(path, built.Rows)
	if err != nil {
		return ManifestResult{}, err
	}
	j.Logger.Info("manifest written",
		ports.String("path", path),
		ports.Int("rows", len(built.Rows)),
		ports.Int("tile_width", size.Width),
		ports.Int("tile_height", size.Height))
	return ManifestResult{
		Path:         path,
		Rows:         len(built.Rows),
		RoundMatches: built.RoundMatches,
		TileSize:     size,
	}, nil
}
