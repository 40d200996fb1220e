package main

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/tometh04/maxevagestion-sub002/internal/api/handlers"
	"github.com/tometh04/maxevagestion-sub002/internal/api/middleware"
	"github.com/tometh04/maxevagestion-sub002/internal/app"
	envconfig "github.com/tometh04/maxevagestion-sub002/internal/common/config"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/logging"
)

func main() {
	// Load configuration
	config, err := envconfig.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logging.SlogLevel(config.LogLevel),
	}))
	slog.SetDefault(logger)

	application, err := app.New(context.Background(), config, logger)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	mcpHandler := handlers.NewMCPHandler(application.MCP, logger)
	handler := middleware.Chain(mcpHandler.HandleAPIGateway,
		middleware.NewLoggingMiddleware(config.Environment == "dev"),
		middleware.NewRecoveryMiddleware(),
	)

	lambda.Start(func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		logger.Debug("mcp - Memory Status", "MB", m.Alloc/1024/1024)

		return handler(ctx, logger, request)
	})
}
