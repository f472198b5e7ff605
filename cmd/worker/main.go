package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"librarylog/internal/app"
	"librarylog/internal/config"
	"librarylog/internal/logging"
)

type rootOptions struct {
	configFile string
}

// Worker runs the scheduled and one-off jobs that sit beside the API server.
func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Library log background jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml")

	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	return cmd
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import people from a CSV or XLSX file",
		Long: `Import people from a file with name and id_code columns.
People whose id_code is already known are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				if file == "" {
					file = a.Config.Library.SeedFile
				}
				res, err := a.Seeder.SeedFile(ctx, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, existing %d, failed %d\n", res.Inserted, res.Existing, res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (defaults to library.seed_file)")
	return cmd
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sign everyone out at library.sweep_at each day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				if a.Relay == nil {
					a.Logger.Warn("broadcast backend is memory; open viewers will not see the sweep until they reload")
				}
				if once {
					n, err := a.Service.SignOutAll(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "signed out %d\n", n)
					return nil
				}

				hour, minute, err := config.ParseClock(a.Config.Library.SweepAt)
				if err != nil {
					return err
				}
				err = a.Service.RunDailySweep(ctx, hour, minute)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "sweep now and exit")
	return cmd
}

func withApp(opts *rootOptions, run func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()
	return run(ctx, a)
}
