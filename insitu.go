// Package insitu builds SpaceTx experiment manifests from an imaging database.
//
// Example usage:
//
//	cfg := insitu.DefaultConfig()
//	cfg.DBPath = "/path/to/imaging.db"
//	cfg.StorageDir = "/Volumes/imaging"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := insitu.WriteManifest(ctx, cfg, insitu.Request{
//	    Rounds:   []string{"ISP-2019-08-28-14-30-00-0001"},
//	    Channels: []string{"Cy5"},
//	}, "spots.csv")
package insitu

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bft-labs/insitu/internal/adapters/fs"
	httpstorage "github.com/bft-labs/insitu/internal/adapters/http"
	logadapter "github.com/bft-labs/insitu/internal/adapters/log"
	"github.com/bft-labs/insitu/internal/adapters/sqlite"
	"github.com/bft-labs/insitu/internal/app"
	"github.com/bft-labs/insitu/internal/cliconfig"
	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// Config holds the database, storage and checksum settings.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Request selects the rounds, positions, channels and z-slices of a manifest.
// Positions, Time and MetadataFormat default to the Config values when unset.
type Request struct {
	Rounds         []string
	Positions      []int
	Channels       []string
	Time           *int
	MetadataFormat string

	// ZSlices defaults to every slice.
	ZSlices ZSelection

	// Strict fails when any round matches no frames. Config.StrictRounds
	// turns it on for every request.
	Strict bool
}

// ZSelection chooses the z-slices taken from each round.
type ZSelection = domain.ZSelection

// AllSlices, FlatSlices and PerRoundSlices build a ZSelection.
var (
	AllSlices      = domain.AllSlices
	FlatSlices     = domain.FlatSlices
	PerRoundSlices = domain.PerRoundSlices
)

// Result describes a written manifest.
type Result = app.ManifestResult

// ManifestRow is one tile of a manifest.
type ManifestRow = domain.ManifestRow

// Errors returned by WriteManifest and Rows; match them with errors.Is.
var (
	ErrConfiguration = domain.ErrConfiguration
	ErrNotFound      = domain.ErrNotFound
	ErrQuery         = domain.ErrQuery
	ErrIO            = domain.ErrIO
	ErrBundle        = domain.ErrBundle
)

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set DBPath before calling WriteManifest.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Logger returns the package-level zerolog logger used by the tooling.
func Logger() zerolog.Logger {
	return cliconfig.Logger()
}

// WriteManifest builds the manifest selected by req, hashes its tiles and
// writes it atomically to path.
func WriteManifest(ctx context.Context, cfg Config, req Request, path string) (Result, error) {
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return Result{}, err
	}
	defer store.Close()

	src, err := app.ParseChecksumSource(cfg.ChecksumSource)
	if err != nil {
		return Result{}, err
	}
	logger := logadapter.NewZerologAdapterWithLogger(Logger())
	job := &app.ManifestJob{
		Builder:  app.NewBuilder(store, logger),
		Checksum: app.NewChecksumPass(storage(cfg, logger), cfg.ChecksumWorkers),
		Source:   src,
		Logger:   logger,
	}
	return job.Run(ctx, withDefaults(cfg, req), path)
}

// Rows builds the manifest rows selected by req without hashing or writing
// them. Recorded digests are passed through.
func Rows(ctx context.Context, cfg Config, req Request) ([]ManifestRow, error) {
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	b := app.NewBuilder(store, logadapter.NewZerologAdapterWithLogger(Logger()))
	res, err := b.Build(ctx, withDefaults(cfg, req))
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func withDefaults(cfg Config, req Request) app.BuildRequest {
	out := app.BuildRequest{
		Rounds:         req.Rounds,
		Positions:      req.Positions,
		Channels:       req.Channels,
		Time:           cfg.Time,
		MetadataFormat: req.MetadataFormat,
		ZSlices:        req.ZSlices,
		Strict:         req.Strict || cfg.StrictRounds,
	}
	if len(out.Positions) == 0 {
		out.Positions = cfg.Positions
	}
	if out.MetadataFormat == "" {
		out.MetadataFormat = cfg.MetadataFormat
	}
	if req.Time != nil {
		out.Time = *req.Time
	}
	return out
}

func storage(cfg Config, logger ports.Logger) ports.Storage {
	if cfg.StorageURL != "" {
		return httpstorage.NewRemoteStorage(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.StorageURL, logger)
	}
	return fs.NewLocalStorage(cfg.StorageDir)
}
