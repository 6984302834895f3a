package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"flood-platform/internal/boundary"
	"flood-platform/internal/device"
	"flood-platform/internal/grid"
	"flood-platform/internal/raster"
	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

var metricsSeq int64

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollector(fmt.Sprintf("sim_test_%d", atomic.AddInt64(&metricsSeq, 1)))
}

func newTestLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger("sim-test", "test", logging.ErrorLevel)
}

var testStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func testDomain() *grid.CartesianDomain {
	return &grid.CartesianDomain{
		Rows: 4, Cols: 4, Resolution: 2,
		ExtentNorth: 8, ExtentEast: 8, ExtentSouth: 0, ExtentWest: 0,
	}
}

// fakeDataset and fakeSource mirror the raster contract for in-memory
// samples.
type fakeDataset struct {
	values    []float64
	transform *grid.Transform
}

func (d *fakeDataset) TransformFor(*grid.CartesianDomain) (*grid.Transform, error) {
	return d.transform, nil
}

func (d *fakeDataset) ExtractArray(*grid.Transform) ([]float64, error) {
	return append([]float64(nil), d.values...), nil
}

func (d *fakeDataset) Close() error { return nil }

type fakeSource struct {
	rasters   map[string][]float64
	transform *grid.Transform
}

func (s *fakeSource) Exists(_ context.Context, name string) bool {
	_, ok := s.rasters[name]
	return ok
}

func (s *fakeSource) Open(_ context.Context, name string) (raster.Dataset, error) {
	values, ok := s.rasters[name]
	if !ok {
		return nil, fmt.Errorf("raster %s not found", name)
	}
	return &fakeDataset{
		values:    values,
		transform: s.transform,
	}, nil
}

// hourlySource covers simulation length with one 16-cell sample per hour.
func hourlySource(length float64) *fakeSource {
	s := &fakeSource{
		rasters: map[string][]float64{},
		transform: &grid.Transform{
			SourceResolution: 2, TargetResolution: 2,
			Rows: 4, Cols: 4,
		},
	}
	for t := 0.0; t <= length; t += 3600 {
		name := boundary.ExpandMask("rain_%H%M%S.asc", testStart.Add(time.Duration(t*float64(time.Second))))
		s.rasters[name] = make([]float64, 16)
	}
	return s
}

func newRainBoundary(t *testing.T, length float64) *boundary.Gridded {
	t.Helper()
	b := boundary.NewGridded(testDomain(), hourlySource(length), length, testStart, newTestLogger(), newTestMetrics())
	err := b.Setup(context.Background(), boundary.Definition{
		Name:     "rain",
		Mask:     "rain_%H%M%S.asc",
		Interval: "3600",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return b
}

func newTestManager(t *testing.T, length, timestep float64) *Manager {
	t.Helper()
	m, err := NewManager(testDomain(), length, testStart, timestep, newTestLogger(), newTestMetrics())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManager_Validation(t *testing.T) {
	tests := []struct {
		name     string
		domain   *grid.CartesianDomain
		length   float64
		timestep float64
		wantErr  bool
	}{
		{name: "valid", domain: testDomain(), length: 3600, timestep: 1, wantErr: false},
		{name: "zero length", domain: testDomain(), length: 0, timestep: 1, wantErr: true},
		{name: "negative timestep", domain: testDomain(), length: 3600, timestep: -1, wantErr: true},
		{
			name:     "invalid domain",
			domain:   &grid.CartesianDomain{Rows: 0, Cols: 4, Resolution: 2, ExtentNorth: 8, ExtentEast: 8},
			length:   3600,
			timestep: 1,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.domain, tt.length, testStart, tt.timestep, newTestLogger(), newTestMetrics())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestManagerPrepare_AllocatesSharedBuffers(t *testing.T) {
	m := newTestManager(t, 3600, 1)
	prog := device.NewMemProgram(device.Double, newTestMetrics())

	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	wantSizes := map[string]int{
		"Sim_Time":             8,
		"Sim_Timestep":         8,
		"Sim_TimeHydrological": 8,
		"Dom_Bed":              16 * 8,
		"Dom_Manning":          16 * 8,
		"Dom_Cells_A":          16 * 8 * 4,
		"Dom_Cells_B":          16 * 8 * 4,
	}
	for name, size := range wantSizes {
		buf := prog.Buffer(name)
		if buf == nil {
			t.Errorf("buffer %s not allocated", name)
			continue
		}
		if buf.Size() != size {
			t.Errorf("buffer %s size = %d, want %d", name, buf.Size(), size)
		}
	}
}

func TestManagerStep_WritesPrecedeDispatch(t *testing.T) {
	m := newTestManager(t, 7200, 1800)
	m.AddBoundary(newRainBoundary(t, 7200))

	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	prog.OpLog = nil
	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	dispatch := -1
	for i, op := range prog.OpLog {
		if strings.HasPrefix(op, "dispatch:") {
			dispatch = i
			break
		}
	}
	if dispatch < 0 {
		t.Fatalf("OpLog = %v, no dispatch recorded", prog.OpLog)
	}

	// Sample staging and clock publication must all land on the queue
	// before the boundary kernel runs.
	for _, name := range []string{"Bdy_rain_Stream", "Sim_Time", "Sim_TimeHydrological", "Sim_Timestep"} {
		found := false
		for i := 0; i < dispatch; i++ {
			if prog.OpLog[i] == "write:"+name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("write:%s not ordered before the dispatch, OpLog = %v", name, prog.OpLog)
		}
	}
}

func TestManagerStep_SwapsCellStateBuffers(t *testing.T) {
	m := newTestManager(t, 7200, 1800)
	m.AddBoundary(newRainBoundary(t, 7200))

	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	kernel, err := prog.Kernel(boundary.KernelName)
	if err != nil {
		t.Fatalf("Kernel() error = %v", err)
	}
	mk := kernel.(*device.MemKernel)

	boundCell := func() string {
		for slot := 0; slot < 8; slot++ {
			if buf := mk.Argument(slot); buf != nil && strings.HasPrefix(buf.Name(), "Dom_Cells_") {
				return buf.Name()
			}
		}
		return ""
	}

	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	first := boundCell()
	if first == "" {
		t.Fatal("no cell-state buffer bound after first step")
	}

	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	second := boundCell()
	if second == first {
		t.Errorf("cell-state buffer not swapped: %q both steps", first)
	}
}

func TestManagerStep_PublishesClock(t *testing.T) {
	m := newTestManager(t, 10, 0.5)
	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	decode := func(name string) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(prog.Buffer(name).DeviceBlock()))
	}

	// The second step published t=0.5.
	if got := decode("Sim_Time"); got != 0.5 {
		t.Errorf("Sim_Time = %v, want 0.5", got)
	}
	if got := decode("Sim_TimeHydrological"); got != 0.5 {
		t.Errorf("Sim_TimeHydrological = %v, want 0.5", got)
	}
	if got := decode("Sim_Timestep"); got != 0.5 {
		t.Errorf("Sim_Timestep = %v, want 0.5", got)
	}
}

// failingBoundary always fails to stream but applies cleanly.
type failingBoundary struct {
	applied int
}

func (b *failingBoundary) Name() string { return "failing" }

func (b *failingBoundary) Setup(context.Context, boundary.Definition) error { return nil }

func (b *failingBoundary) Prepare(device.Program, device.Buffer, device.Buffer, device.Buffer, device.Buffer, device.Buffer) error {
	return nil
}

func (b *failingBoundary) Advance(context.Context, float64) error {
	return errors.New("stream failed")
}

func (b *failingBoundary) Apply(device.Buffer) error {
	b.applied++
	return nil
}

func (b *failingBoundary) Clean() {}

func TestManagerStep_BoundaryStreamFailureDegrades(t *testing.T) {
	m := newTestManager(t, 10, 1)
	fb := &failingBoundary{}
	m.AddBoundary(fb)

	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// A streaming failure is not fatal; the boundary still applies with
	// whatever it has staged.
	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if fb.applied != 1 {
		t.Errorf("applied = %d, want 1", fb.applied)
	}
}

func TestManagerRun_StepsToCompletion(t *testing.T) {
	m := newTestManager(t, 2, 1)
	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Steps at t=0, 1 and 2 inclusive.
	if got := m.StepsTaken(); got != 3 {
		t.Errorf("StepsTaken() = %d, want 3", got)
	}

	status := m.Snapshot()
	if status.Running {
		t.Error("Running should be false after completion")
	}
	if status.Steps != 3 {
		t.Errorf("Snapshot().Steps = %d, want 3", status.Steps)
	}
}

func TestManagerRun_Cancellation(t *testing.T) {
	m := newTestManager(t, 1e12, 1)
	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestManagerSnapshot_ReportsBoundaryState(t *testing.T) {
	m := newTestManager(t, 7200, 1800)
	m.AddBoundary(newRainBoundary(t, 7200))

	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	status := m.Snapshot()
	if len(status.Boundaries) != 1 {
		t.Fatalf("len(Boundaries) = %d, want 1", len(status.Boundaries))
	}
	bs := status.Boundaries[0]
	if bs.Name != "rain" {
		t.Errorf("Name = %q, want rain", bs.Name)
	}
	if bs.Samples != 3 {
		t.Errorf("Samples = %d, want 3", bs.Samples)
	}
	if bs.StagedIndex != -1 {
		t.Errorf("StagedIndex = %d before first step, want -1", bs.StagedIndex)
	}
	if bs.EffectiveLength != 7200 {
		t.Errorf("EffectiveLength = %v, want 7200", bs.EffectiveLength)
	}
	if bs.Precision != "double" {
		t.Errorf("Precision = %q, want double", bs.Precision)
	}

	if err := m.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := m.Snapshot().Boundaries[0].StagedIndex; got != 0 {
		t.Errorf("StagedIndex = %d after first step, want 0", got)
	}
}

func TestManagerClean(t *testing.T) {
	m := newTestManager(t, 10, 1)
	m.AddBoundary(newRainBoundary(t, 10))

	prog := device.NewMemProgram(device.Double, newTestMetrics())
	if err := m.Prepare(prog); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	m.Clean()

	for _, name := range []string{
		"Sim_Time", "Sim_Timestep", "Sim_TimeHydrological",
		"Dom_Bed", "Dom_Manning", "Dom_Cells_A", "Dom_Cells_B",
		"Bdy_rain_Conf", "Bdy_rain_Stream",
	} {
		if prog.Buffer(name) != nil {
			t.Errorf("buffer %s should be released", name)
		}
	}
}
