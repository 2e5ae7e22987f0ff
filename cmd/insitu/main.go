package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	httpstorage "github.com/bft-labs/insitu/internal/adapters/http"
	"github.com/bft-labs/insitu/internal/adapters/fs"
	logadapter "github.com/bft-labs/insitu/internal/adapters/log"
	"github.com/bft-labs/insitu/internal/adapters/sqlite"
	"github.com/bft-labs/insitu/internal/app"
	"github.com/bft-labs/insitu/internal/cliconfig"
	"github.com/bft-labs/insitu/internal/ports"
)

const longHelp = `Turn imaging-database records into SpaceTx experiment manifests.

insitu reads the frames of one or more acquisitions (rounds) from the imaging
database, computes the physical extent of every tile from its stage metadata,
hashes the tile content and writes the manifests consumed by the bundle writer.

Configuration is read from $HOME/.insitu/config.toml, then INSITU_* environment
variables, then flags; later sources win.`

var exampleUsage = strings.TrimSpace(`
  insitu manifest --db-path imaging.db --rounds ISP-1,ISP-2 --channels Cy5 --positions 0,1 --out spots.csv
  insitu experiment --plan plan.toml --storage-dir /Volumes/imaging
  insitu datasets search ISP-2019
  insitu view --fovs fovs.csv --codebook codebook.json
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the configuration shared by every subcommand.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig(), log: cliconfig.Logger()}
	root := newRootCmd(c)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		c.log.Error().Err(err).Msg("insitu")
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "insitu",
		Short:         "Build in-situ transcriptomics experiment manifests from the imaging database",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.insitu/config.toml)")
	f.StringVar(&c.cfg.DBPath, "db-path", c.cfg.DBPath, "imaging database (SQLite file)")
	f.StringVar(&c.cfg.MetadataFormat, "metadata-format", c.cfg.MetadataFormat, "frame metadata format")
	f.IntVar(&c.cfg.Time, "time", c.cfg.Time, "time index of the frames to use")
	f.IntSliceVar(&c.cfg.Positions, "positions", c.cfg.Positions, "stage positions, in fov order")
	f.StringVar(&c.cfg.OutputDir, "output-dir", c.cfg.OutputDir, "directory for manifests and the experiment bundle")
	f.StringVar(&c.cfg.StorageDir, "storage-dir", c.cfg.StorageDir, "local directory tile paths are relative to")
	f.StringVar(&c.cfg.StorageURL, "storage-url", c.cfg.StorageURL, "base URL tile paths are relative to")
	f.StringVar(&c.cfg.StoragePrefix, "storage-prefix", c.cfg.StoragePrefix, "tile location prefix written into the bundle")
	f.StringVar(&c.cfg.Bundler, "bundler", c.cfg.Bundler, "bundle writer executable")
	f.IntVar(&c.cfg.ChecksumWorkers, "checksum-workers", c.cfg.ChecksumWorkers, "tiles hashed concurrently")
	f.StringVar(&c.cfg.ChecksumSource, "checksum-source", c.cfg.ChecksumSource, "content (hash tiles) or recorded (trust database digests)")
	f.DurationVar(&c.cfg.HTTPTimeout, "http-timeout", c.cfg.HTTPTimeout, "timeout of one remote tile download")
	f.BoolVar(&c.cfg.StrictRounds, "strict-rounds", c.cfg.StrictRounds, "fail when a round matches no frames")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newManifestCmd(c),
		newExperimentCmd(c),
		newDatasetsCmd(c),
		newViewCmd(c),
		newDBCmd(c),
	)
	return root
}

// load resolves the configuration: file, then environment, then the flags
// set on cmd.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if err := cliconfig.SetLogLevel(c.cfg.LogLevel); err != nil {
		return err
	}
	c.log = cliconfig.Logger()
	c.log.Debug().Interface("config", c.cfg).Msg("configuration")
	return nil
}

func (c *cli) logger() *logadapter.ZerologAdapter {
	return logadapter.NewZerologAdapterWithLogger(c.log)
}

func (c *cli) openStore(ctx context.Context) (*sqlite.Store, error) {
	return sqlite.Open(ctx, c.cfg.DBPath)
}

func (c *cli) storage() ports.Storage {
	if c.cfg.StorageURL != "" {
		client := &http.Client{Timeout: c.cfg.HTTPTimeout}
		return httpstorage.NewRemoteStorage(client, c.cfg.StorageURL, c.logger())
	}
	return fs.NewLocalStorage(c.cfg.StorageDir)
}

func (c *cli) checksumPass() (*app.ChecksumPass, app.ChecksumSource, error) {
	src, err := app.ParseChecksumSource(c.cfg.ChecksumSource)
	if err != nil {
		return nil, "", err
	}
	return app.NewChecksumPass(c.storage(), c.cfg.ChecksumWorkers), src, nil
}
