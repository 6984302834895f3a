package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"flood-platform/internal/boundary"
	"flood-platform/internal/device"
	"flood-platform/internal/grid"
	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

// Cell state carries four components per cell (free-surface level, depth
// and the two discharge components).
const cellStateComponents = 4

// Manager owns the simulation clock and the shared device buffers, and
// drives the boundary lifecycle: Setup at configuration, Prepare once the
// compute program is built, then Advance before and Apply after each step.
// Exactly one goroutine steps the simulation; Snapshot may be called
// concurrently by the monitoring server.
type Manager struct {
	domain   *grid.CartesianDomain
	length   float64
	start    time.Time
	timestep float64
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector

	prog                device.Program
	bufTime             device.Buffer
	bufTimestep         device.Buffer
	bufTimeHydrological device.Buffer
	bufBed              device.Buffer
	bufManning          device.Buffer

	// Two cell-state buffers, swapped every step; boundaries rebind the
	// live one on Apply.
	bufCells  [2]device.Buffer
	cellIndex int

	boundaries []boundary.Boundary

	mu          sync.RWMutex
	currentTime float64
	steps       uint64
	running     bool
}

// NewManager creates a simulation manager. length is the simulated
// duration in seconds, start the real-world timestamp of simulation time
// zero and timestep the fixed step in seconds.
func NewManager(
	domain *grid.CartesianDomain,
	length float64,
	start time.Time,
	timestep float64,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) (*Manager, error) {
	if err := domain.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation domain: %w", err)
	}
	if length <= 0 || timestep <= 0 {
		return nil, fmt.Errorf("simulation length and timestep must be positive, got %v and %v", length, timestep)
	}

	return &Manager{
		domain:   domain,
		length:   length,
		start:    start,
		timestep: timestep,
		logger:   logger,
		metrics:  metricsCollector,
	}, nil
}

// Length returns the total simulated duration in seconds.
func (m *Manager) Length() float64 { return m.length }

// Start returns the real-world timestamp of simulation time zero.
func (m *Manager) Start() time.Time { return m.start }

// Domain returns the simulation's cell grid.
func (m *Manager) Domain() *grid.CartesianDomain { return m.domain }

// AddBoundary registers a configured boundary with the simulation.
func (m *Manager) AddBoundary(b boundary.Boundary) {
	m.boundaries = append(m.boundaries, b)
}

// Prepare allocates the shared device buffers and prepares every
// registered boundary against the compute program. Resource failures are
// fatal and surfaced.
func (m *Manager) Prepare(prog device.Program) error {
	m.prog = prog
	precision := prog.Precision()
	elem := precision.ElementBytes()
	cells := int(m.domain.CellCount())

	scalars := []struct {
		name string
		dst  *device.Buffer
	}{
		{"Sim_Time", &m.bufTime},
		{"Sim_Timestep", &m.bufTimestep},
		{"Sim_TimeHydrological", &m.bufTimeHydrological},
	}
	for _, s := range scalars {
		buf, err := prog.CreateBuffer(s.name, elem)
		if err != nil {
			return fmt.Errorf("failed to allocate %s: %w", s.name, err)
		}
		*s.dst = buf
	}

	grids := []struct {
		name string
		size int
		dst  *device.Buffer
	}{
		{"Dom_Bed", cells * elem, &m.bufBed},
		{"Dom_Manning", cells * elem, &m.bufManning},
		{"Dom_Cells_A", cells * elem * cellStateComponents, &m.bufCells[0]},
		{"Dom_Cells_B", cells * elem * cellStateComponents, &m.bufCells[1]},
	}
	for _, g := range grids {
		buf, err := prog.CreateBuffer(g.name, g.size)
		if err != nil {
			return fmt.Errorf("failed to allocate %s: %w", g.name, err)
		}
		*g.dst = buf
	}

	for _, b := range m.boundaries {
		if err := b.Prepare(prog, m.bufBed, m.bufManning, m.bufTime, m.bufTimeHydrological, m.bufTimestep); err != nil {
			return fmt.Errorf("failed to prepare boundary %s: %w", b.Name(), err)
		}
	}

	m.logger.Info(context.Background(), "[SIM_PREPARE] Device resources prepared", logging.Fields{
		"precision":  precision.String(),
		"cells":      cells,
		"boundaries": len(m.boundaries),
	})
	return nil
}

// Step advances the simulation by one timestep: boundary streaming first,
// clock publication, then boundary application against the step's live
// cell-state buffer.
func (m *Manager) Step(ctx context.Context) error {
	m.mu.RLock()
	t := m.currentTime
	m.mu.RUnlock()

	stepStart := time.Now()

	for _, b := range m.boundaries {
		if err := b.Advance(ctx, t); err != nil {
			// Skip-and-degrade: a boundary that cannot stream keeps its
			// previously staged sample.
			m.logger.Warn(ctx, "[SIM_STEP] Boundary streaming failed, keeping staged sample", logging.Fields{
				"boundary":        b.Name(),
				"simulation_time": t,
				"error":           err.Error(),
			})
		}
	}

	if err := m.publishClock(t); err != nil {
		return err
	}

	// The simulation double-buffers cell state; boundaries must rebind
	// the live buffer every step.
	m.cellIndex = 1 - m.cellIndex
	cell := m.bufCells[m.cellIndex]

	for _, b := range m.boundaries {
		if err := b.Apply(cell); err != nil {
			return fmt.Errorf("failed to apply boundary %s: %w", b.Name(), err)
		}
	}

	m.mu.Lock()
	m.currentTime = t + m.timestep
	m.steps++
	m.mu.Unlock()

	m.metrics.SimulationStepsTotal.Inc()
	m.metrics.SimulationTime.Set(t)
	m.metrics.StepDuration.Observe(time.Since(stepStart).Seconds())
	return nil
}

// Run steps the simulation to completion or until the context is
// cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info(ctx, "[SIM_RUN] Simulation starting", logging.Fields{
		"length_seconds":   m.length,
		"timestep_seconds": m.timestep,
		"start":            m.start.UTC().Format(time.RFC3339),
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.mu.RLock()
		done := m.currentTime > m.length
		m.mu.RUnlock()
		if done {
			break
		}

		if err := m.Step(ctx); err != nil {
			return err
		}
	}

	m.logger.Info(ctx, "[SIM_RUN] Simulation complete", logging.Fields{
		"steps": m.StepsTaken(),
	})
	return nil
}

// Clean releases boundary and shared device resources.
func (m *Manager) Clean() {
	for _, b := range m.boundaries {
		b.Clean()
	}
	for _, buf := range []device.Buffer{
		m.bufTime, m.bufTimestep, m.bufTimeHydrological,
		m.bufBed, m.bufManning, m.bufCells[0], m.bufCells[1],
	} {
		if buf != nil {
			buf.Release()
		}
	}
}

// StepsTaken returns the number of completed steps.
func (m *Manager) StepsTaken() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.steps
}

// publishClock writes the simulation clock into the shared time buffers.
func (m *Manager) publishClock(t float64) error {
	precision := m.prog.Precision()
	writes := []struct {
		buf   device.Buffer
		value float64
	}{
		{m.bufTime, t},
		{m.bufTimeHydrological, t},
		{m.bufTimestep, m.timestep},
	}
	for _, w := range writes {
		encodeScalar(w.buf.HostBlock(), precision, w.value)
		if err := w.buf.Upload(); err != nil {
			return fmt.Errorf("failed to publish clock to %s: %w", w.buf.Name(), err)
		}
	}
	return nil
}

// encodeScalar writes one little-endian float at the active precision.
func encodeScalar(dst []byte, p device.Precision, v float64) {
	if p == device.Double {
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
		return
	}
	binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
}

// Status is a point-in-time view of the run for the monitoring server.
type Status struct {
	Running        bool             `json:"running"`
	SimulationTime float64          `json:"simulation_time"`
	Length         float64          `json:"length"`
	Steps          uint64           `json:"steps"`
	Boundaries     []BoundaryStatus `json:"boundaries"`
}

// BoundaryStatus describes one boundary's streaming state.
type BoundaryStatus struct {
	Name            string  `json:"name"`
	Samples         int     `json:"samples"`
	StagedIndex     int     `json:"staged_index"`
	EffectiveLength float64 `json:"effective_length"`
	Precision       string  `json:"precision"`
}

// streamingReporter is satisfied by boundary variants that expose
// streaming state.
type streamingReporter interface {
	SampleCount() int
	StagedIndex() int
	EffectiveLength() float64
	Precision() device.Precision
}

// Snapshot returns the current run status.
func (m *Manager) Snapshot() Status {
	m.mu.RLock()
	status := Status{
		Running:        m.running,
		SimulationTime: m.currentTime,
		Length:         m.length,
		Steps:          m.steps,
	}
	m.mu.RUnlock()

	for _, b := range m.boundaries {
		bs := BoundaryStatus{Name: b.Name(), StagedIndex: -1}
		if r, ok := b.(streamingReporter); ok {
			bs.Samples = r.SampleCount()
			bs.StagedIndex = r.StagedIndex()
			bs.EffectiveLength = r.EffectiveLength()
			bs.Precision = r.Precision().String()
		}
		status.Boundaries = append(status.Boundaries, bs)
	}
	return status
}
