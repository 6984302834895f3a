package grid

import (
	"fmt"
	"math"
)

// CartesianDomain describes the simulation's own cell grid: its dimensions,
// cell resolution and real-world extent. It is owned by the simulation
// manager and shared read-only with boundaries.
type CartesianDomain struct {
	Rows       uint64
	Cols       uint64
	Resolution float64

	// Real extent in projected coordinates (metres).
	ExtentNorth float64
	ExtentEast  float64
	ExtentSouth float64
	ExtentWest  float64
}

// Validate checks the domain geometry is usable.
func (d *CartesianDomain) Validate() error {
	if d.Rows == 0 || d.Cols == 0 {
		return fmt.Errorf("domain dimensions must be positive, got %dx%d", d.Rows, d.Cols)
	}
	if d.Resolution <= 0 || math.IsInf(d.Resolution, 0) || math.IsNaN(d.Resolution) {
		return fmt.Errorf("domain resolution must be a positive finite number, got %v", d.Resolution)
	}
	if d.ExtentEast <= d.ExtentWest || d.ExtentNorth <= d.ExtentSouth {
		return fmt.Errorf("domain extent is inverted or empty")
	}
	return nil
}

// CellCount returns the number of cells in the domain.
func (d *CartesianDomain) CellCount() uint64 {
	return d.Rows * d.Cols
}

// Transform describes how a source raster's cells align to the simulation
// domain: resolutions, south/west offsets, the dimensions of the window to
// extract, and the base cell indices of that window within the source grid.
// A transform is computed once from the first sample of a timeseries and is
// immutable afterwards; every later sample is assumed grid-congruent.
type Transform struct {
	SourceResolution float64
	TargetResolution float64
	OffsetSouth      float64
	OffsetWest       float64
	Rows             uint64
	Cols             uint64
	BaseSouth        uint64
	BaseWest         uint64
}

// Validate checks the transform invariants: strictly positive dimensions,
// finite non-negative offsets and resolutions.
func (t *Transform) Validate() error {
	if t.Rows == 0 || t.Cols == 0 {
		return fmt.Errorf("transform window must be non-empty, got %dx%d", t.Rows, t.Cols)
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"source resolution", t.SourceResolution},
		{"target resolution", t.TargetResolution},
		{"south offset", t.OffsetSouth},
		{"west offset", t.OffsetWest},
	} {
		if v.value < 0 || math.IsInf(v.value, 0) || math.IsNaN(v.value) {
			return fmt.Errorf("transform %s must be finite and non-negative, got %v", v.name, v.value)
		}
	}
	return nil
}

// CellCount returns the number of values one sample carries.
func (t *Transform) CellCount() uint64 {
	return t.Rows * t.Cols
}
