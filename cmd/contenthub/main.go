package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/lyzr/contenthub/cmd/contenthub/container"
	chmiddleware "github.com/lyzr/contenthub/cmd/contenthub/middleware"
	"github.com/lyzr/contenthub/cmd/contenthub/routes"
	"github.com/lyzr/contenthub/common/bootstrap"
	"github.com/lyzr/contenthub/common/db"
	commonmiddleware "github.com/lyzr/contenthub/common/middleware"
	"github.com/lyzr/contenthub/common/ratelimit"
	"github.com/lyzr/contenthub/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "contenthub",
		bootstrap.WithDBInitHook(func(d *db.DB) error {
			return d.ApplyMigrations(ctx, migrationsDir())
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap contenthub: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Log lifecycle events emitted by the engine. External notification
	// consumers subscribe to the same topic out of process.
	subscribeLifecycleLog(ctx, components)

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, components)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server with graceful shutdown
	srv := server.New("contenthub", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())

	// Identity must be extracted before the rate limiter reads it
	e.Use(chmiddleware.ExtractIdentity())

	cfg := components.Config
	if cfg.Limits.Enabled && components.Redis != nil {
		limiter := ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)
		e.Use(commonmiddleware.UserRateLimitMiddleware(limiter, cfg.Limits.UserPerMinute))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "contenthub",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterContentRoutes(e, serviceContainer)
	routes.RegisterDraftRoutes(e, serviceContainer)
	routes.RegisterSuggestionRoutes(e, serviceContainer)
}

// subscribeLifecycleLog attaches a log-only consumer to the lifecycle
// event topic
func subscribeLifecycleLog(ctx context.Context, components *bootstrap.Components) {
	if components.Queue == nil {
		return
	}
	topic := components.Config.Queue.Topic
	err := components.Queue.Subscribe(ctx, topic, func(ctx context.Context, key string, value []byte) error {
		components.Logger.Debug("lifecycle event", "key", key, "payload", string(value))
		return nil
	})
	if err != nil {
		components.Logger.Warn("failed to subscribe to lifecycle topic", "topic", topic, "error", err)
	}
}

// migrationsDir resolves the migrations directory before config is
// loaded; the same env var backs config.Database.MigrationsDir
func migrationsDir() string {
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return "migrations"
}
