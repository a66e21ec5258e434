package main

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/mapcache-tools/tile-etl/config"
	"github.com/mapcache-tools/tile-etl/sink"
	"github.com/mapcache-tools/tile-etl/tilelocator"
	"github.com/mapcache-tools/tile-etl/upload"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath  string
	walk        bool
	dryRun      bool
	concurrency int
	verbose     bool
}

func newRootCmd(logger log.Logger) *cobra.Command {
	opts := rootOptions{}

	cmd := &cobra.Command{
		Use:   "tile-etl [flags] MAP_NAME",
		Short: "Upload an exploded tile cache to object storage",
		Long: `Uploads the tiles of a map's exploded cache (L{level}/R{row}/C{column}.{ext})
to the bucket and folder configured for the map.

By default the tiles covering the configured extent and levels are uploaded.
With --walk every tile present on disk is uploaded instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), logger, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "tile-etl.yml", "Configuration file")
	cmd.Flags().BoolVar(&opts.walk, "walk", false, "Upload every tile found on disk instead of the configured extent")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Locate tiles and build keys without uploading")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Number of concurrent uploads (overrides the configuration)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func run(ctx context.Context, logger log.Logger, opts rootOptions, mapName string) error {
	logger.EnableDebugLog(opts.verbose)

	file, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	cfg, err := file.Run(mapName, config.Overrides{
		Concurrency: opts.concurrency,
		DryRun:      opts.dryRun,
		Walk:        opts.walk,
	})
	if err != nil {
		return err
	}
	cfg.Print(logger)
	logger.Println()

	exists, err := pathutil.NewPathChecker().IsDirExists(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("check base dir: %w", err)
	}
	if !exists {
		return fmt.Errorf("base dir %s does not exist", cfg.BaseDir)
	}

	locator, err := tilelocator.New(cfg.BaseDir, cfg.Extensions, nil)
	if err != nil {
		return err
	}
	logger.Debugf("Looking for tiles below %s with extensions %v", locator.BaseDir(), locator.Extensions())

	snk, err := sink.New(ctx, cfg.SinkConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(snk); err != nil {
			logger.Warnf("Failed to close sink: %s", err)
		}
	}()

	scheduler, err := upload.NewScheduler(cfg.SchedulerOptions(), locator, snk, logger)
	if err != nil {
		return err
	}

	logger.Infof("Uploading %s to %s", cfg.MapName, cfg.Target)
	if cfg.Walk {
		_, err = scheduler.RunWalk(ctx, cfg.WalkLevels())
	} else {
		_, err = scheduler.Run(ctx, cfg.Plan())
	}
	return err
}
