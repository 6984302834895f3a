package raster

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"flood-platform/pkg/database"
	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

// ArchiveRecord is one stored raster row in the boundary_rasters table.
// Cell payloads are stored as packed little-endian float64 bytes.
type ArchiveRecord struct {
	Name       string    `db:"name"`
	AcquiredAt time.Time `db:"acquired_at"`
	Cols       int64     `db:"ncols"`
	Rows       int64     `db:"nrows"`
	XllCorner  float64   `db:"xllcorner"`
	YllCorner  float64   `db:"yllcorner"`
	CellSize   float64   `db:"cellsize"`
	NoData     float64   `db:"nodata"`
	Payload    []byte    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

// ArchiveSource resolves raster names against the PostgreSQL raster
// archive. It satisfies the same Source contract as FileSource, so a
// boundary can stream from the archive without knowing the difference.
type ArchiveSource struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewArchiveSource creates an archive-backed raster source.
func NewArchiveSource(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ArchiveSource {
	return &ArchiveSource{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Exists reports whether a raster with the given name is archived.
func (s *ArchiveSource) Exists(ctx context.Context, name string) bool {
	var count int
	query := `SELECT COUNT(*) FROM boundary_rasters WHERE name = $1`

	if err := s.db.GetContext(ctx, "raster_exists", &count, query, name); err != nil {
		return false
	}
	return count > 0
}

// Open loads the named raster from the archive.
func (s *ArchiveSource) Open(ctx context.Context, name string) (Dataset, error) {
	var rec ArchiveRecord
	query := `
		SELECT name, acquired_at, ncols, nrows, xllcorner, yllcorner, cellsize, nodata, payload, created_at
		FROM boundary_rasters
		WHERE name = $1
	`

	err := s.db.GetContext(ctx, "raster_open", &rec, query, name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("raster %q not found in archive", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raster %q: %w", name, err)
	}

	return rec.toGrid()
}

// Store writes a raster into the archive, replacing any previous raster
// with the same name.
func (s *ArchiveSource) Store(ctx context.Context, name string, acquiredAt time.Time, g *ASCGrid) error {
	payload := make([]byte, 8*len(g.Values))
	for i, v := range g.Values {
		binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v))
	}

	query := `
		INSERT INTO boundary_rasters (name, acquired_at, ncols, nrows, xllcorner, yllcorner, cellsize, nodata, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			acquired_at = EXCLUDED.acquired_at,
			ncols = EXCLUDED.ncols,
			nrows = EXCLUDED.nrows,
			xllcorner = EXCLUDED.xllcorner,
			yllcorner = EXCLUDED.yllcorner,
			cellsize = EXCLUDED.cellsize,
			nodata = EXCLUDED.nodata,
			payload = EXCLUDED.payload
	`

	_, err := s.db.ExecContext(ctx, "raster_store", query,
		name,
		acquiredAt,
		int64(g.Cols),
		int64(g.Rows),
		g.XllCorner,
		g.YllCorner,
		g.CellSize,
		g.NoData,
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		s.metrics.RecordArchiveError("store_error")
		return fmt.Errorf("failed to store raster %q: %w", name, err)
	}

	s.logger.Debug(ctx, "[ARCHIVE_STORE] Raster stored", logging.Fields{
		"name":  name,
		"rows":  g.Rows,
		"cols":  g.Cols,
		"bytes": len(payload),
	})
	return nil
}

// toGrid decodes the archived payload into an in-memory grid, which then
// serves as the opened dataset.
func (r *ArchiveRecord) toGrid() (*ASCGrid, error) {
	if r.Cols <= 0 || r.Rows <= 0 {
		return nil, fmt.Errorf("archived raster %q has empty dimensions %dx%d", r.Name, r.Rows, r.Cols)
	}

	cells := uint64(r.Rows) * uint64(r.Cols)
	if uint64(len(r.Payload)) != cells*8 {
		return nil, fmt.Errorf("archived raster %q payload is %d bytes, expected %d", r.Name, len(r.Payload), cells*8)
	}

	values := make([]float64, cells)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.Payload[i*8:]))
	}

	return &ASCGrid{
		Cols:      uint64(r.Cols),
		Rows:      uint64(r.Rows),
		XllCorner: r.XllCorner,
		YllCorner: r.YllCorner,
		CellSize:  r.CellSize,
		NoData:    r.NoData,
		Values:    values,
	}, nil
}
