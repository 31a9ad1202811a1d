package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/api"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/config"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/normalizer"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/reporting"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/scheduler"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/services"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/source"
	"github.com/redrabbit14-cmyk/my-running-dash/pkg/client"
)

var version = "dev"

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting running crew dashboard", zap.String("version", version))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if err := reporting.Init(reporting.Config{
		DSN:         cfg.Server.SentryDSN,
		Environment: cfg.Server.Environment,
		Release:     version,
	}, logger); err != nil {
		logger.Warn("Continuing without error reporting", zap.Error(err))
	}
	defer reporting.Flush(2 * time.Second)

	ctx := context.Background()

	clientConfig := client.ClientConfig{
		Timeout:        10 * time.Second,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}

	sources, closeSources := buildSources(ctx, cfg, clientConfig, logger)
	defer closeSources()

	var weatherClients []client.WeatherClient
	if cfg.WeatherAPI.Enabled {
		if cfg.WeatherAPI.OpenWeatherAPIKey != "" {
			weatherClients = append(weatherClients, client.NewOpenWeatherClient(
				cfg.WeatherAPI.OpenWeatherAPIKey,
				cfg.WeatherAPI.OpenWeatherURL,
				clientConfig,
				logger,
			))
			logger.Info("OpenWeatherMap client initialized")
		}
		weatherClients = append(weatherClients, client.NewOpenMeteoClient(cfg.WeatherAPI.OpenMeteoURL, clientConfig, logger))
		logger.Info("Open-Meteo client initialized")
	}

	// Validate already checked these.
	loc, _ := cfg.Location()
	reference, _ := cfg.ReferenceDate()

	var weatherLocation *models.Location
	if len(weatherClients) > 0 {
		weatherLocation = &cfg.WeatherAPI.Location
	}

	cache := services.NewSnapshotCache(cfg.Cache.Duration, cfg.Cache.MaxSize, logger)
	defer cache.Stop()

	dashboard := services.NewDashboard(sources, weatherClients, cache, services.DashboardOptions{
		Roster: cfg.Crew.Members,
		Weekly: cfg.WeeklyOptions(),
		Normalizer: normalizer.Options{
			DistanceUnitThreshold: cfg.Crew.DistanceUnitThreshold,
			Location:              loc,
		},
		ReferenceDate: reference,
		Location:      loc,
		ChartWeeks:    cfg.Crew.ChartWeeks,
		Weather:       weatherLocation,
		FetchTimeout:  cfg.Scheduler.FetchTimeout,
	}, logger)

	refreshScheduler, err := scheduler.NewScheduler(dashboard, cfg.Scheduler.Schedule, 2*cfg.Scheduler.FetchTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		JSONEncoder:  json.Marshal,
		ErrorHandler: errorHandler,
	})

	handler := api.NewHandler(dashboard, refreshScheduler, logger)
	api.SetupRoutes(app, handler)

	refreshScheduler.Start()

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	refreshScheduler.Stop(shutdownCtx)

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// buildSources wires every configured record source. The returned func
// releases client connections.
func buildSources(ctx context.Context, cfg *config.Config, clientConfig client.ClientConfig, logger *zap.Logger) ([]source.RecordSource, func()) {
	var sources []source.RecordSource
	closer := func() {}

	if cfg.Firestore.ProjectID != "" {
		fsCfg := source.FirestoreConfig{
			ProjectID:       cfg.Firestore.ProjectID,
			Collection:      cfg.Firestore.Collection,
			CredentialsFile: cfg.Firestore.CredentialsFile,
			OrderBy:         cfg.Firestore.OrderBy,
			Limit:           cfg.Firestore.Limit,
		}
		fsClient, err := source.NewFirestoreClient(ctx, fsCfg)
		if err != nil {
			logger.Error("Firestore source disabled", zap.Error(err))
		} else {
			sources = append(sources, source.NewFirestoreSource(fsClient, fsCfg, logger))
			closer = func() { fsClient.Close() }
			logger.Info("Firestore source initialized", zap.String("collection", fsCfg.Collection))
		}
	}

	if cfg.RecordsAPI.URL != "" {
		sources = append(sources, source.NewHTTPSource(source.HTTPConfig{
			URL:   cfg.RecordsAPI.URL,
			Token: cfg.RecordsAPI.Token,
		}, clientConfig, logger))
		logger.Info("HTTP record source initialized", zap.String("url", cfg.RecordsAPI.URL))
	}

	if cfg.RecordsFile != "" {
		sources = append(sources, source.NewFileSource(cfg.RecordsFile))
		logger.Info("File record source initialized", zap.String("path", cfg.RecordsFile))
	}

	return sources, closer
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	if code >= fiber.StatusInternalServerError {
		reporting.CaptureException(err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
