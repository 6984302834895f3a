package raster

import (
	"context"

	"flood-platform/internal/grid"
)

// Source resolves named rasters for a boundary timeseries. Implementations
// exist for a directory of ESRI ASCII grids and for the PostgreSQL raster
// archive; boundaries only see this interface.
type Source interface {
	// Exists reports whether the named raster can be opened. A missing
	// raster is an expected condition, not an error.
	Exists(ctx context.Context, name string) bool

	// Open opens the named raster for reading.
	Open(ctx context.Context, name string) (Dataset, error)
}

// Dataset is one opened raster sample.
type Dataset interface {
	// TransformFor computes the alignment between this raster's grid and
	// the simulation domain. It is called once per timeseries, on the
	// first resolvable sample; later samples are assumed grid-congruent.
	TransformFor(domain *grid.CartesianDomain) (*grid.Transform, error)

	// ExtractArray reads the window described by the transform into a
	// freshly allocated array of rows*cols values, ordered south-to-north
	// by row and west-to-east within each row.
	ExtractArray(t *grid.Transform) ([]float64, error)

	// Close releases the dataset.
	Close() error
}
