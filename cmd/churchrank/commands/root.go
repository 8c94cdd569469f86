package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"churchrank/internal/config"
	"churchrank/internal/telemetry"
	libtelemetry "churchrank/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
	logFile    *string
	dumpHttp   *string
)

// set up by the root command before any subcommand runs
var (
	cfg          config.Config
	tel          telemetry.API
	httpOutput   telemetry.MessageOutput
	closeLogFile func() error
	otel         libtelemetry.Telemetry
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Path to the config file, config.json5 is searched for upwards from the working directory by default.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output.")
	logFile = rootCmd.PersistentFlags().String("log-file", "", "Also write logs as JSON to this file.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write every http exchange to a file in this directory.")
}

var rootCmd = &cobra.Command{
	Use:          "churchrank",
	Short:        "churchrank builds and serves a multi-year church attendance ranking dataset.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		closeLogFile, err = libtelemetry.InitSlog(*verbose, *logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		tel = telemetry.NewSlogAPI(nil)

		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}

		if *dumpHttp != "" {
			output, err := telemetry.NewFilesystemOutput(*dumpHttp)
			if err != nil {
				return fmt.Errorf("create http dump directory: %w", err)
			}
			httpOutput = output
		}

		otel, err = libtelemetry.SetupFromEnv(cmd.Context(), "churchrank")
		if err != nil {
			slog.Warn("failed to setup telemetry export", "err", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := otel.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
		if closeLogFile != nil {
			closeLogFile()
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
