package commands

import (
	"log/slog"
	"time"

	"churchrank/internal/chrono"
	"churchrank/internal/refresh"
	"churchrank/internal/server"
	libtelemetry "churchrank/lib/telemetry"
	"churchrank/lib/serviceutil"

	"github.com/spf13/cobra"
)

var servePort *int

func init() {
	servePort = serveCmd.Flags().IntP("port", "p", 0, "Port to listen on, defaults to server.port in the config.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Serves the consolidated dataset over http and refreshes it on a schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		port := cfg.Server.Port
		if *servePort != 0 {
			port = *servePort
		}

		source, err := refresh.New(cfg, tel, httpOutput)
		if err != nil {
			return err
		}
		s := server.New(source, server.Options{
			Years:         cfg.Years.List(),
			CacheTtl:      cfg.Server.CacheTtl(),
			RefreshCron:   cfg.Server.RefreshCron,
			AllowedOrigin: cfg.Server.AllowedOrigin,
		}, tel)

		cron := chrono.NewStandardCron(time.UTC, tel)
		err = s.Schedule(cron)
		if err != nil {
			return err
		}
		defer func() {
			<-cron.Stop().Done()
		}()

		libtelemetry.InstrumentPerfStats(ctx, 30*time.Second)

		// warm the cache so the first dashboard load doesn't wait on a full refresh
		go func() {
			_, err := s.Result(ctx, nil, false)
			if err != nil {
				slog.Warn("initial refresh failed", "err", err)
			}
		}()

		err = serviceutil.ServeHttp(ctx, port, s.Handler())
		if err != nil {
			serviceutil.Fatal("http server failed", err)
		}
		return nil
	},
}
