package raster

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"flood-platform/internal/grid"
)

// FileSource resolves raster names against a directory of ESRI ASCII grid
// files. This is the usual layout for radar rainfall products: one .asc
// file per nominal sample time.
type FileSource struct {
	dir string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Exists reports whether the named raster file is present.
func (s *FileSource) Exists(_ context.Context, name string) bool {
	info, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil && !info.IsDir()
}

// Open reads and parses the named raster file.
func (s *FileSource) Open(_ context.Context, name string) (Dataset, error) {
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", path, err)
	}
	defer f.Close()

	ds, err := ParseASCGrid(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to parse raster %s: %w", path, err)
	}
	return ds, nil
}

// ASCGrid is an in-memory ESRI ASCII grid: a header describing the source
// grid's geometry plus row-major cell values, first row northernmost as
// stored in the file.
type ASCGrid struct {
	Cols      uint64
	Rows      uint64
	XllCorner float64
	YllCorner float64
	CellSize  float64
	NoData    float64
	Values    []float64
}

// ParseASCGrid parses an ESRI ASCII grid from r.
func ParseASCGrid(r *bufio.Reader) (*ASCGrid, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	g := &ASCGrid{NoData: -9999}
	seen := map[string]bool{}

	// Header lines are "key value" pairs; the data body starts at the
	// first line whose leading token is numeric.
	var dataTokens []string
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		key := strings.ToLower(fields[0])
		isHeader := false
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value":
			isHeader = len(fields) == 2
		}
		if !isHeader {
			dataTokens = fields
			break
		}

		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid header value for %s: %w", key, err)
		}
		seen[key] = true
		switch key {
		case "ncols":
			g.Cols = uint64(v)
		case "nrows":
			g.Rows = uint64(v)
		case "xllcorner":
			g.XllCorner = v
		case "yllcorner":
			g.YllCorner = v
		case "cellsize":
			g.CellSize = v
		case "nodata_value":
			g.NoData = v
		}
	}

	for _, req := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if !seen[req] {
			return nil, fmt.Errorf("raster header missing %s", req)
		}
	}
	if g.Cols == 0 || g.Rows == 0 {
		return nil, fmt.Errorf("raster has empty dimensions %dx%d", g.Rows, g.Cols)
	}
	if g.CellSize <= 0 {
		return nil, fmt.Errorf("raster cell size must be positive, got %v", g.CellSize)
	}

	g.Values = make([]float64, 0, g.Rows*g.Cols)
	appendTokens := func(tokens []string) error {
		for _, tok := range tokens {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return fmt.Errorf("invalid cell value %q: %w", tok, err)
			}
			g.Values = append(g.Values, v)
		}
		return nil
	}

	if err := appendTokens(dataTokens); err != nil {
		return nil, err
	}
	for scanner.Scan() {
		if err := appendTokens(strings.Fields(scanner.Text())); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading raster body: %w", err)
	}

	if uint64(len(g.Values)) != g.Rows*g.Cols {
		return nil, fmt.Errorf("raster body has %d values, expected %d", len(g.Values), g.Rows*g.Cols)
	}
	return g, nil
}

// TransformFor computes the alignment between this raster and the domain.
func (g *ASCGrid) TransformFor(domain *grid.CartesianDomain) (*grid.Transform, error) {
	if err := domain.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation domain: %w", err)
	}

	t := &grid.Transform{
		SourceResolution: g.CellSize,
		TargetResolution: domain.Resolution,

		OffsetWest:  math.Abs(math.Mod(domain.ExtentWest-g.XllCorner, g.CellSize)),
		OffsetSouth: math.Abs(math.Mod(domain.ExtentSouth-g.YllCorner, g.CellSize)),

		Cols: uint64(math.Ceil(domain.ExtentEast/g.CellSize) - math.Floor(domain.ExtentWest/g.CellSize)),
		Rows: uint64(math.Ceil(domain.ExtentNorth/g.CellSize) - math.Floor(domain.ExtentSouth/g.CellSize)),

		BaseWest:  uint64(math.Max(0, math.Floor((domain.ExtentWest-g.XllCorner)/g.CellSize))),
		BaseSouth: uint64(math.Max(0, math.Floor((domain.ExtentSouth-g.YllCorner)/g.CellSize))),
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("raster does not align with domain: %w", err)
	}
	if t.BaseWest+t.Cols > g.Cols || t.BaseSouth+t.Rows > g.Rows {
		return nil, fmt.Errorf("domain window %dx%d at base (%d,%d) exceeds raster %dx%d",
			t.Rows, t.Cols, t.BaseSouth, t.BaseWest, g.Rows, g.Cols)
	}
	return t, nil
}

// ExtractArray reads the transform window, reordering rows so the first
// output row is the southernmost.
func (g *ASCGrid) ExtractArray(t *grid.Transform) ([]float64, error) {
	if t.BaseWest+t.Cols > g.Cols || t.BaseSouth+t.Rows > g.Rows {
		return nil, fmt.Errorf("transform window %dx%d at base (%d,%d) exceeds raster %dx%d",
			t.Rows, t.Cols, t.BaseSouth, t.BaseWest, g.Rows, g.Cols)
	}

	out := make([]float64, t.Rows*t.Cols)
	for row := uint64(0); row < t.Rows; row++ {
		// Row 0 of the file is the northern edge; output row 0 is the
		// southern edge of the window.
		srcRow := (g.Rows - t.BaseSouth - 1) - row
		src := g.Values[srcRow*g.Cols+t.BaseWest : srcRow*g.Cols+t.BaseWest+t.Cols]
		copy(out[row*t.Cols:(row+1)*t.Cols], src)
	}
	return out, nil
}

// Close is a no-op; the grid is fully materialized in memory.
func (g *ASCGrid) Close() error { return nil }
