package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"flood-platform/internal/config"
	"flood-platform/internal/raster"
	"flood-platform/pkg/database"
	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

func main() {
	// Parse command-line flags
	dataDir := flag.String("data-dir", "./boundary_data", "Directory containing boundary raster files")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("flood-loader", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[LOADER_START] Starting boundary raster load", logging.Fields{
		"version":  "1.0.0",
		"data_dir": *dataDir,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("flood_loader")

	// Initialize database
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

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[LOADER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize archive and loader
	archive := raster.NewArchiveSource(db, logger, metricsCollector)
	loader := raster.NewLoader(archive, logger, metricsCollector)

	// Load rasters
	result, err := loader.LoadDirectory(ctx, *dataDir)
	if err != nil {
		logger.Fatal(ctx, "[LOAD_ERROR] Raster load failed", logging.Fields{
			"error": err.Error(),
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("RASTER LOAD COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:   %d\n", result.TotalFiles)
	fmt.Printf("Loaded Files:  %d\n", result.LoadedFiles)
	fmt.Printf("Failed Files:  %d\n", result.FailedFiles)
	fmt.Printf("Duration:      %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	logger.Info(ctx, "[LOADER_COMPLETE] Raster load completed successfully", logging.Fields{
		"total_files":      result.TotalFiles,
		"loaded_files":     result.LoadedFiles,
		"failed_files":     result.FailedFiles,
		"duration_seconds": result.Duration.Seconds(),
	})
}
