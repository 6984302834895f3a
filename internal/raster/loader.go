package raster

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

// Loader bulk-loads ESRI ASCII grid files into the raster archive so
// simulations can stream boundary data from PostgreSQL instead of the
// filesystem.
type Loader struct {
	archive *ArchiveSource
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// LoadResult contains load statistics
type LoadResult struct {
	TotalFiles  int
	LoadedFiles int
	FailedFiles int
	Duration    time.Duration
	Errors      []string
}

// NewLoader creates a new archive loader
func NewLoader(archive *ArchiveSource, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Loader {
	return &Loader{
		archive: archive,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// LoadDirectory loads all .asc rasters from a directory into the archive.
// Rasters are archived under their base filename, which is what boundary
// filename masks resolve to.
func (l *Loader) LoadDirectory(ctx context.Context, dataDir string) (*LoadResult, error) {
	startTime := time.Now()

	l.logger.Info(ctx, "[LOAD_START] Starting raster archive load", logging.Fields{
		"data_dir": dataDir,
	})

	result := &LoadResult{
		Errors: make([]string, 0),
	}

	files, err := filepath.Glob(filepath.Join(dataDir, "*.asc"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no raster files found in %s", dataDir)
	}

	result.TotalFiles = len(files)

	for _, filePath := range files {
		if err := l.loadFile(ctx, filePath); err != nil {
			result.FailedFiles++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to load %s: %v", filePath, err))
			l.logger.Error(ctx, "[LOAD_FILE_ERROR] Raster load failed", logging.Fields{
				"file_path": filePath,
			}, err)
			continue
		}

		result.LoadedFiles++
		l.metrics.LoaderRastersTotal.Inc()
	}

	result.Duration = time.Since(startTime)
	l.metrics.LoaderDuration.Observe(result.Duration.Seconds())

	l.logger.Info(ctx, "[LOAD_COMPLETE] Raster archive load completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"loaded_files":     result.LoadedFiles,
		"failed_files":     result.FailedFiles,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
	})

	return result, nil
}

// loadFile parses and archives a single raster file.
func (l *Loader) loadFile(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		l.metrics.RecordLoaderError("open_error")
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	g, err := ParseASCGrid(bufio.NewReader(f))
	if err != nil {
		l.metrics.RecordLoaderError("parse_error")
		return fmt.Errorf("failed to parse raster: %w", err)
	}

	info, err := f.Stat()
	acquiredAt := time.Now().UTC()
	if err == nil {
		acquiredAt = info.ModTime().UTC()
	}

	return l.archive.Store(ctx, filepath.Base(filePath), acquiredAt, g)
}
