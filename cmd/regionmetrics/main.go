package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"RegionMetrics/internal/app"
	"RegionMetrics/internal/config"
	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, dataDir, snapshotPath, logLevel string

	root := &cobra.Command{
		Use:          "regionmetrics",
		Short:        "Normalize regional batches into a metrics snapshot and serve it",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to the YAML config (defaults to $REGION_METRICS_CONFIG)")
	flags.StringVar(&dataDir, "data-dir", "", "directory holding the per-category batches")
	flags.StringVar(&snapshotPath, "snapshot", "", "published snapshot path")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	var addr string

	withApp := func(cmd *cobra.Command, run func(context.Context, *app.Application) error) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.Input.BaseDir = dataDir
		}
		if snapshotPath != "" {
			cfg.Snapshot.Path = snapshotPath
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		log := logging.New(cfg.Logging.Level)
		application, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			log.Error("startup failed", "error", err)
			return err
		}
		defer func() {
			if err := application.Close(); err != nil {
				log.Warn("close failed", "error", err)
			}
		}()
		if err := run(cmd.Context(), application); err != nil {
			log.Error("application stopped", "command", cmd.Name(), "error", err)
			return err
		}
		return nil
	}

	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Run the pipeline once and publish a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				_, err := a.Ingest(ctx)
				return err
			})
		},
	}

	var refresh bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over the published snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx, refresh)
			})
		},
	}
	serve.Flags().BoolVar(&refresh, "refresh", false, "also rerun the pipeline on the configured cron schedule")
	serve.Flags().StringVar(&addr, "addr", "", "listen address of the query API")

	var out string
	forecastCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project update volume for every region of the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				projections, err := a.Forecast(ctx, out)
				if err != nil {
					return err
				}
				printProjections(cmd.OutOrStdout(), projections)
				return nil
			})
		},
	}
	forecastCmd.Flags().StringVar(&out, "out", "", "write the projections as a model file")

	root.AddCommand(ingest, serve, forecastCmd)
	return root
}

func printProjections(w io.Writer, projections map[string]domain.Projection) {
	regions := make([]string, 0, len(projections))
	for region := range projections {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	for _, region := range regions {
		p := projections[region]
		fmt.Fprintf(w, "%-45s %-8s %-14s acc=%-5.1f %v\n", region, p.Trend, p.Source, p.Accuracy, p.Values)
	}
}
