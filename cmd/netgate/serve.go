package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket gateway",
	Long: `Serve accepts WebSocket connections on /exec. Each connection is one
session: its first frame carries the session's security manifest and every
later frame is a call request.`,
	Args: cobra.NoArgs,
	RunE: withContainer(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "gateway listen address (default 127.0.0.1:8765)")
	serveCmd.Flags().String("metrics-listen", "", "Prometheus listen address (disabled when empty)")
	_ = viper.BindPFlag("gateway.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("metrics.listen", serveCmd.Flags().Lookup("metrics-listen"))
}

func runServe(c *CommandContext, _ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := c.Container.SystemConfig()
	servers := []*http.Server{{
		Addr:              cfg.Gateway.Listen,
		Handler:           c.Container.Gateway().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", c.Container.Metrics().Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			c.Logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err := g.Wait()
	c.Logger.Info("gateway stopped")
	return err
}
