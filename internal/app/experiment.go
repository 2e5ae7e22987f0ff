package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// Manifest names understood by the bundle writer.
const (
	ManifestPrimary = "primary"
	ManifestStain   = "stain"
	ManifestNuclei  = "nuclei"
)

// ExperimentRequest describes one experiment: shared acquisition settings and
// up to three channel groups, each becoming its own manifest.
type ExperimentRequest struct {
	OutputDir      string
	Rounds         []string
	Positions      []int
	Time           int
	MetadataFormat string
	ZSlices        domain.ZSelection
	Strict         bool

	// SpotChannels are required; stain and nuclei groups are optional.
	SpotChannels   []string
	StainChannels  []string
	NucleiChannels []string

	StoragePrefix string
	SkipBundle    bool
}

// ExperimentResult lists what a run produced.
type ExperimentResult struct {
	RunID     string
	Manifests []ManifestResult
	TileSize  domain.TileSize
	Bundled   bool
}

// ExperimentWriter writes the manifests of an experiment and hands them to
// the bundle writer.
type ExperimentWriter struct {
	store    ports.FrameStore
	checksum *ChecksumPass
	source   ChecksumSource
	bundler  ports.Bundler
	logger   ports.Logger
}

// NewExperimentWriter creates an ExperimentWriter. bundler may be nil when
// every request sets SkipBundle.
func NewExperimentWriter(store ports.FrameStore, checksum *ChecksumPass, source ChecksumSource, bundler ports.Bundler, logger ports.Logger) *ExperimentWriter {
	return &ExperimentWriter{
		store:    store,
		checksum: checksum,
		source:   source,
		bundler:  bundler,
		logger:   logger,
	}
}

type channelGroup struct {
	name     string
	file     string
	channels []string
}

func (req ExperimentRequest) groups() []channelGroup {
	groups := []channelGroup{{ManifestPrimary, "spots.csv", req.SpotChannels}}
	if len(req.StainChannels) > 0 {
		groups = append(groups, channelGroup{ManifestStain, "stain.csv", req.StainChannels})
	}
	if len(req.NucleiChannels) > 0 {
		groups = append(groups, channelGroup{ManifestNuclei, "nuclei.csv", req.NucleiChannels})
	}
	return groups
}

// Write builds and writes every manifest, then runs the bundle writer with
// the primary manifest's tile size. No bundle is attempted unless all
// manifests were written.
func (e *ExperimentWriter) Write(ctx context.Context, req ExperimentRequest) (ExperimentResult, error) {
	if req.OutputDir == "" {
		return ExperimentResult{}, fmt.Errorf("%w: output directory is required", domain.ErrConfiguration)
	}
	if len(req.SpotChannels) == 0 {
		return ExperimentResult{}, fmt.Errorf("%w: spot channels are required", domain.ErrConfiguration)
	}
	if !req.SkipBundle && e.bundler == nil {
		return ExperimentResult{}, fmt.Errorf("%w: no bundle writer configured", domain.ErrConfiguration)
	}

	res := ExperimentResult{RunID: uuid.NewString()}
	logger := WithFields(e.logger, ports.String("run_id", res.RunID))
	start := time.Now()
	logger.Info("experiment started",
		ports.String("output_dir", req.OutputDir),
		ports.Any("rounds", req.Rounds),
		ports.Any("positions", req.Positions))

	job := &ManifestJob{
		Builder:  NewBuilder(e.store, logger),
		Checksum: e.checksum,
		Source:   e.source,
		Logger:   logger,
	}

	var named []ports.NamedManifest
	for _, g := range req.groups() {
		path := filepath.Join(req.OutputDir, g.file)
		mr, err := job.Run(ctx, BuildRequest{
			Rounds:         req.Rounds,
			Positions:      req.Positions,
			Channels:       g.channels,
			Time:           req.Time,
			MetadataFormat: req.MetadataFormat,
			ZSlices:        req.ZSlices,
			Strict:         req.Strict,
		}, path)
		if err != nil {
			logger.Error("manifest failed", ports.String("manifest", g.name), ports.Err(err))
			return res, fmt.Errorf("%s manifest: %w", g.name, err)
		}
		if g.name == ManifestPrimary {
			res.TileSize = mr.TileSize
		}
		res.Manifests = append(res.Manifests, mr)
		named = append(named, ports.NamedManifest{Name: g.name, Path: path})
	}

	if req.SkipBundle {
		logger.Info("bundle skipped", ports.Int("manifests", len(named)))
		return res, nil
	}

	err := e.bundler.Bundle(ctx, ports.BundleArgs{
		TileWidth:     res.TileSize.Width,
		TileHeight:    res.TileSize.Height,
		StoragePrefix: req.StoragePrefix,
		OutputDir:     req.OutputDir,
		Manifests:     named,
	})
	if err != nil {
		logger.Error("bundle failed", ports.Err(err))
		return res, err
	}
	res.Bundled = true
	logger.Info("experiment written",
		ports.Int("manifests", len(named)),
		ports.Duration("elapsed", time.Since(start)))
	return res, nil
}

// WithFields returns a logger that appends fields to every line.
func WithFields(l ports.Logger, fields ...ports.Field) ports.Logger {
	return &fieldLogger{base: l, fields: fields}
}

type fieldLogger struct {
	base   ports.Logger
	fields []ports.Field
}

func (f *fieldLogger) with(extra []ports.Field) []ports.Field {
	out := make([]ports.Field, 0, len(f.fields)+len(extra))
	return append(append(out, f.fields...), extra...)
}

func (f *fieldLogger) Debug(msg string, fields ...ports.Field) { f.base.Debug(msg, f.with(fields)...) }
func (f *fieldLogger) Info(msg string, fields ...ports.Field)  { f.base.Info(msg, f.with(fields)...) }
func (f *fieldLogger) Warn(msg string, fields ...ports.Field)  { f.base.Warn(msg, f.with(fields)...) }
func (f *fieldLogger) Error(msg string, fields ...ports.Field) { f.base.Error(msg, f.with(fields)...) }
