package main

import (
	"context"
	"errors"
	"fmt"
	"isinFlow/internal/app"
	httpserver "isinFlow/internal/handlers/http"
	"isinFlow/pkg/utils"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const demoInterval = 2 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine with the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, log := opts.cfg, opts.log

	// Create cancellable context
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("initializing app...", slog.String("env", cfg.Env))
	application, err := app.NewApp(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}

	application.Start(ctx)

	if cfg.Demo {
		go runDemoFeed(ctx, application, log)
	}

	httpAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	httpServer := httpserver.NewServer(httpAddr, httpserver.Services{
		Records:     application.Engine,
		Rules:       application.Engine,
		Bookrunners: application.Engine,
		History:     application.Engine,
		Broadcaster: application.Broadcaster,
	}, application.Location, log)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", slog.String("addr", httpAddr))
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Info("shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
	}

	log.Info("cleaning up app resources...")
	cleanupErr := application.Cleanup(shutdownCtx)

	log.Info("service stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return cleanupErr
	}
}

// runDemoFeed publishes generated change events so the board moves without
// a real upstream. Not for production use.
func runDemoFeed(ctx context.Context, application *app.AppContext, log *slog.Logger) {
	gen := utils.NewChangeEventGenerator(application.Config.RecordsTable, time.Now().UnixNano())
	ticker := time.NewTicker(demoInterval)
	defer ticker.Stop()

	log.Info("starting demo change feed")
	for {
		select {
		case <-ctx.Done():
			log.Info("demo change feed stopped")
			return
		case <-ticker.C:
			_ = application.ChangeProducer.ExecuteBatch(ctx, gen.Generate(3))
		}
	}
}
