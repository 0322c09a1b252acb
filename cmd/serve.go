package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zonemap/internal/mapview"
	"github.com/sells-group/zonemap/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive map server",
	Long:  "Runs the refresh and redraw tasks and serves the current frame, the live snapshot and an input endpoint over HTTP until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyViewFlags(cmd)
		env, err := initMap(cfg, "serve")
		if err != nil {
			return err
		}

		handler := env.Map.Handler(mapview.HandlerConfig{AllowedOrigins: cfg.Server.AllowedOrigins})
		port := resolvePort(servePort, cfg.Server.Port)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Map.Run(ctx)
		})
		if cfg.Monitoring.Enabled {
			collector := monitoring.NewCollector(env.Map.Orchestrator().Slot(), env.Metrics, env.Breaker())
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			g.Go(func() error {
				checker.Run(ctx)
				return nil
			})
		}
		g.Go(func() error {
			return startServer(ctx, handler, port)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	addViewFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the config value.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}
