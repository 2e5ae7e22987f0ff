package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bft-labs/insitu/internal/adapters/exec"
	"github.com/bft-labs/insitu/internal/app"
	"github.com/bft-labs/insitu/internal/cliconfig"
	"github.com/bft-labs/insitu/internal/ports"
	"github.com/bft-labs/insitu/internal/viewer"
	"github.com/bft-labs/insitu/plugins/planwatcher"
)

func newManifestCmd(c *cli) *cobra.Command {
	var (
		rounds   []string
		channels []string
		zSlices  string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Write one manifest CSV for the given rounds, positions and channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			sel, err := cliconfig.ParseZSlicesFlag(zSlices)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(c.cfg.OutputDir, "spots.csv")
			}

			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pass, src, err := c.checksumPass()
			if err != nil {
				return err
			}
			logger := c.logger()
			job := &app.ManifestJob{
				Builder:  app.NewBuilder(store, logger),
				Checksum: pass,
				Source:   src,
				Logger:   logger,
			}
			res, err := job.Run(ctx, app.BuildRequest{
				Rounds:         rounds,
				Positions:      c.cfg.Positions,
				Channels:       channels,
				Time:           c.cfg.Time,
				MetadataFormat: c.cfg.MetadataFormat,
				ZSlices:        sel,
				Strict:         c.cfg.StrictRounds,
			}, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\ttile %dx%d\n", res.Path, res.Rows, res.TileSize.Width, res.TileSize.Height)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&rounds, "rounds", nil, "dataset ids, one per round, in round order")
	cmd.Flags().StringSliceVar(&channels, "channels", nil, "channel names, in channel order")
	cmd.Flags().StringVar(&zSlices, "z-slices", "", `slices to keep: "0,1" for every round or "0,1;2,3" per round (default all)`)
	cmd.Flags().StringVar(&out, "out", "", "manifest path (default <output-dir>/spots.csv)")
	return cmd
}

func newExperimentCmd(c *cli) *cobra.Command {
	var (
		planPath   string
		watch      bool
		skipBundle bool
	)
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Write the manifests of an experiment plan and run the bundle writer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pass, src, err := c.checksumPass()
			if err != nil {
				return err
			}
			logger := c.logger()
			var bundler ports.Bundler
			if !skipBundle {
				bundler = exec.NewBundler(c.cfg.Bundler, cmd.ErrOrStderr(), logger)
			}
			writer := app.NewExperimentWriter(store, pass, src, bundler, logger)

			write := func(ctx context.Context) error {
				plan, err := cliconfig.LoadPlan(planPath)
				if err != nil {
					return err
				}
				plan = plan.Merge(c.cfg)
				sel, err := plan.ZSelection()
				if err != nil {
					return err
				}
				res, err := writer.Write(ctx, app.ExperimentRequest{
					OutputDir:      plan.OutputDir,
					Rounds:         plan.ImageIDs,
					Positions:      plan.Positions,
					Time:           *plan.Time,
					MetadataFormat: plan.MetadataFormat,
					ZSlices:        sel,
					Strict:         c.cfg.StrictRounds,
					SpotChannels:   plan.SpotChannels,
					StainChannels:  plan.StainChannels,
					NucleiChannels: plan.NucChannels,
					StoragePrefix:  c.cfg.StoragePrefix,
					SkipBundle:     skipBundle,
				})
				if err != nil {
					return err
				}
				for _, m := range res.Manifests {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d rows\n", res.RunID, m.Path, m.Rows)
				}
				return nil
			}

			if !watch {
				return write(ctx)
			}

			w := planwatcher.New(planwatcher.DefaultConfig(), planPath, write, logger)
			if err := w.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			c.log.Info().Msg("received signal, stopping...")
			return w.Shutdown(context.Background())
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "experiment plan (TOML)")
	cmd.Flags().BoolVar(&watch, "watch", false, "rewrite the experiment whenever the plan changes")
	cmd.Flags().BoolVar(&skipBundle, "skip-bundle", false, "write manifests only")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newDatasetsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Explore the datasets of the imaging database",
	}

	catalog := func(cmd *cobra.Command, fn func(context.Context, *app.Catalog) error) error {
		if err := c.load(cmd); err != nil {
			return err
		}
		store, err := c.openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd.Context(), app.NewCatalog(store))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "search [substring]",
			Short: "List dataset ids containing a substring",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				substr := ""
				if len(args) == 1 {
					substr = args[0]
				}
				return catalog(cmd, func(ctx context.Context, cat *app.Catalog) error {
					ids, err := cat.SearchIDs(ctx, substr)
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "positions <dataset-id>",
			Short: "List the stage positions of a dataset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return catalog(cmd, func(ctx context.Context, cat *app.Catalog) error {
					pos, err := cat.Positions(ctx, args[0])
					if err != nil {
						return err
					}
					for _, p := range pos {
						fmt.Fprintln(cmd.OutOrStdout(), p)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "channels <dataset-id>",
			Short: "List the channels of a dataset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return catalog(cmd, func(ctx context.Context, cat *app.Catalog) error {
					chans, err := cat.Channels(ctx, args[0])
					if err != nil {
						return err
					}
					idx := make([]int, 0, len(chans))
					for i := range chans {
						idx = append(idx, i)
					}
					sort.Ints(idx)
					for _, i := range idx {
						fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, chans[i])
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newViewCmd(c *cli) *cobra.Command {
	var fovs, codebook string
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Page through analysis results one field of view at a time",
		Long:  "Reads keys from stdin, one per line: '.' next field of view, ',' previous, 'q' quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := viewer.LoadFOVTableFile(fovs)
			if err != nil {
				return err
			}
			cb, err := viewer.LoadCodebookFile(codebook)
			if err != nil {
				return err
			}
			s, err := viewer.NewSession(entries, cb, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return s.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&fovs, "fovs", "", "results table (CSV with fov_name, spot_file, mask_file)")
	cmd.Flags().StringVar(&codebook, "codebook", "", "SpaceTx codebook (JSON or YAML)")
	_ = cmd.MarkFlagRequired("fovs")
	_ = cmd.MarkFlagRequired("codebook")
	return cmd
}

func newDBCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the imaging database",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the imaging database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.load(cmd); err != nil {
					return err
				}
				store, err := c.openStore(cmd.Context())
				if err != nil {
					return err
				}
				c.log.Info().Str("db", c.cfg.DBPath).Msg("database ready")
				return store.Close()
			},
		},
		&cobra.Command{
			Use:   "import <dataset-file>...",
			Short: "Import datasets described in JSON or YAML files",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.load(cmd); err != nil {
					return err
				}
				store, err := c.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer store.Close()
				for _, path := range args {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					ds, err := decodeDataset(f)
					f.Close()
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if err := store.ImportDataset(cmd.Context(), ds); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					c.log.Info().Str("dataset", ds.Serial).Int("frames", len(ds.Frames)).Msg("dataset imported")
				}
				return nil
			},
		},
	)
	return cmd
}
