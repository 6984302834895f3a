package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flood-platform/internal/boundary"
	"flood-platform/internal/config"
	"flood-platform/internal/device"
	"flood-platform/internal/grid"
	"flood-platform/internal/handlers"
	"flood-platform/internal/raster"
	"flood-platform/internal/sim"
	"flood-platform/pkg/database"
	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("flood-simulator", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting flood platform simulator", logging.Fields{
		"version":         "1.0.0",
		"server_host":     cfg.Server.Host,
		"server_port":     cfg.Server.Port,
		"device_backend":  cfg.Device.Backend,
		"precision":       cfg.Device.Precision,
		"boundary_source": cfg.Boundary.Source,
		"sim_length":      cfg.Simulation.LengthSeconds,
		"sim_timestep":    cfg.Simulation.TimestepSeconds,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("flood_platform")

	// Build the simulation domain
	domain := &grid.CartesianDomain{
		Rows:        cfg.Domain.Rows,
		Cols:        cfg.Domain.Cols,
		Resolution:  cfg.Domain.Resolution,
		ExtentNorth: cfg.Domain.ExtentNorth,
		ExtentEast:  cfg.Domain.ExtentEast,
		ExtentSouth: cfg.Domain.ExtentSouth,
		ExtentWest:  cfg.Domain.ExtentWest,
	}

	// Initialize raster source
	var source raster.Source
	var db *database.PostgresDB
	switch cfg.Boundary.Source {
	case "archive":
		dbConfig := &database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}

		db, err = database.NewPostgresDB(dbConfig, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to raster archive", logging.Fields{}, err)
		}
		defer db.Close()

		source = raster.NewArchiveSource(db, logger, metricsCollector)
	default:
		source = raster.NewFileSource(cfg.Boundary.SourceDir)
	}

	// Initialize compute program
	precision := device.Double
	if cfg.Device.Precision == "single" {
		precision = device.Single
	}

	var prog device.Program
	switch cfg.Device.Backend {
	case "opencl":
		kernelSource, err := os.ReadFile(cfg.Device.KernelSourcePath)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to read kernel source", logging.Fields{
				"path": cfg.Device.KernelSourcePath,
			}, err)
		}

		clProg, err := device.NewOpenCLProgram(string(kernelSource), precision, metricsCollector)
		if err != nil {
			logger.Warn(ctx, "[DEVICE_FALLBACK] OpenCL unavailable, using in-memory backend", logging.Fields{
				"error": err.Error(),
			})
			prog = device.NewMemProgram(precision, metricsCollector)
		} else {
			prog = clProg
		}
	default:
		prog = device.NewMemProgram(precision, metricsCollector)
	}
	defer prog.Release()

	// Initialize simulation manager
	manager, err := sim.NewManager(
		domain,
		cfg.Simulation.LengthSeconds,
		cfg.Simulation.Start,
		cfg.Simulation.TimestepSeconds,
		logger,
		metricsCollector,
	)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create simulation manager", logging.Fields{}, err)
	}

	// Configure boundaries
	defs, err := config.LoadBoundaryDefinitions(cfg.Boundary.DefinitionsPath)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load boundary definitions", logging.Fields{
			"path": cfg.Boundary.DefinitionsPath,
		}, err)
	}

	for _, def := range defs {
		b := boundary.NewGridded(
			domain,
			source,
			cfg.Simulation.LengthSeconds,
			cfg.Simulation.Start,
			logger,
			metricsCollector,
		)

		if err := b.Setup(ctx, def); err != nil {
			var cfgErr *boundary.ConfigError
			if errors.As(err, &cfgErr) && cfgErr.Fatal() {
				// Fatal to this boundary only; the run continues without it.
				logger.Warn(ctx, "[BOUNDARY_ERROR] Boundary misconfigured, skipping", logging.Fields{
					"boundary": def.Name,
					"error":    err.Error(),
				})
				continue
			}
			logger.Fatal(ctx, "[BOUNDARY_ERROR] Boundary configuration failed", logging.Fields{
				"boundary": def.Name,
			}, err)
		}

		manager.AddBoundary(b)
	}

	if err := manager.Prepare(prog); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to prepare device resources", logging.Fields{}, err)
	}
	defer manager.Clean()

	// Initialize handlers
	statusHandler := handlers.NewStatusHandler(manager, logger)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	statusHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start monitoring server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] Monitoring server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Monitoring server failed", logging.Fields{}, err)
		}
	}()

	// Run the simulation, cancelled on interrupt
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info(ctx, "[SHUTDOWN] Interrupt received, stopping simulation", logging.Fields{})
		cancel()
	}()

	if err := manager.Run(runCtx); err != nil {
		logger.Error(ctx, "[SIMULATION_ERROR] Simulation aborted", logging.Fields{}, err)
	}

	// Graceful shutdown of the monitoring server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Simulator stopped", logging.Fields{})
}
