package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/canopy"
	httpAdapter "github.com/aretw0/canopy/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Accepts tasks over HTTP, streams lifecycle events and exposes Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		streams := httpAdapter.NewStreamManager()
		engine, err := canopy.New(ctx, cfg,
			canopy.WithLogger(logger),
			canopy.WithLifecycleHooks(streams.Hooks()),
		)
		if err != nil {
			return err
		}
		defer engine.Close()

		server := httpAdapter.NewServer(engine,
			httpAdapter.WithStreams(streams),
			httpAdapter.WithCheckpointStore(engine.Store),
			httpAdapter.WithRegistry(engine.Registry),
			httpAdapter.WithBaseContext(ctx),
			httpAdapter.WithLogger(logger),
		)

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("canopy server listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
		// Runs see the cancelled base context and finalize as interrupted.
		server.Wait()
		logger.Info("canopy server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
}
