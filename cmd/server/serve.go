package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/delivery/http"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/repository/file"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/repository/memory"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/repository/postgres"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment")
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	cities, err := config.LoadCities(cfg.CitiesFile)
	if err != nil {
		return err
	}

	recorder, closeRecorder := buildRecorder(cfg.DatabaseURL)
	defer closeRecorder()

	var pusher domain.TelemetrySink
	if cfg.Sink.PushEnabled() {
		pusher = service.NewTelemetryPusher(cfg.Sink)
		logrus.WithField("url", cfg.Sink.URL).Info("Telemetry push enabled")
	}

	// Dependency Injection: providers into the simulation service
	simSvc := service.NewSimulationService(service.Deps{
		Cities:                cities,
		Zones:                 file.NewZoneRepository(cfg.DataDir, cities),
		Catalog:               file.NewCatalogRepository(cfg.DataDir, cities),
		Weather:               file.NewWeatherHistoryRepository(cfg.WeatherHistoryFile),
		Recorder:              recorder,
		Pusher:                pusher,
		DefaultSecondsPerHour: cfg.DefaultSecondsPerHour,
	})

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "City Sim Stream API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, simSvc)

	// Graceful shutdown
	go func() {
		logrus.Infof("Server starting on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Fatal("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	simSvc.StopAll()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logrus.WithError(err).Warn("Server forced to shutdown")
	}
	logrus.Info("Server exited gracefully")
	return nil
}

// buildRecorder connects the PostgreSQL tick recorder when a database is
// configured and falls back to the in-memory ring otherwise. The returned
// cleanup closes the pool.
func buildRecorder(databaseURL string) (domain.SnapshotRecorder, func()) {
	if databaseURL == "" {
		return memory.NewRecorder(0), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logrus.WithError(err).Warn("Could not connect to database, recording ticks in memory")
		return memory.NewRecorder(0), func() {}
	}

	rec := postgres.NewTickRecorder(pool)
	if err := rec.EnsureSchema(ctx); err != nil {
		logrus.WithError(err).Warn("Could not ensure database schema, recording ticks in memory")
		pool.Close()
		return memory.NewRecorder(0), func() {}
	}

	logrus.Info("Connected to PostgreSQL")
	return rec, pool.Close
}
