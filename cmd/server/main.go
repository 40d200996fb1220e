package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tometh04/maxevagestion-sub002/internal/api/handlers"
	"github.com/tometh04/maxevagestion-sub002/internal/api/middleware"
	"github.com/tometh04/maxevagestion-sub002/internal/api/response"
	"github.com/tometh04/maxevagestion-sub002/internal/app"
	envconfig "github.com/tometh04/maxevagestion-sub002/internal/common/config"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/logging"
)

func main() {
	config, err := envconfig.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logging.SlogLevel(config.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(config, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(config *envconfig.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	server := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           newRouter(application, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", config.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(application *app.App, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(
		middleware.NewRecoveryMiddleware().HTTP(logger),
		middleware.NewLoggingMiddleware(false).HTTP(logger),
	)

	router.Handle("/mcp", handlers.NewMCPHandler(application.MCP, logger)).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(application.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return router
}
