package boundary

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"flood-platform/internal/device"
	"flood-platform/internal/grid"
	"flood-platform/internal/raster"
	"flood-platform/pkg/logging"
	"flood-platform/pkg/metrics"
)

// KernelName is the compute kernel a gridded boundary drives.
const KernelName = "bdy_StreamingGridded"

// Kernel argument slots, in binding order. The cell-state slot stays
// unbound until Apply supplies the step's buffer.
const (
	argConfiguration = iota
	argValues
	argTime
	argTimestep
	argTimeHydrological
	argCellStates
	argBed
	argManning
	argCount
)

// Work-group size of the boundary kernel. Dispatch geometry follows the
// simulation domain, not the boundary's own grid: the kernel runs per
// simulation cell.
const workGroupSize = 8

// Gridded streams a timeseries of spatially-gridded forcing rasters (rain
// intensity or mass flux) onto the device. The timeseries is resolved to
// concrete raster names at setup; at each step the sample due for the
// current simulation time is loaded and staged only when its index
// changed, then the boundary kernel consumes it.
type Gridded struct {
	name string
	kind ValueKind

	domain    *grid.CartesianDomain
	source    raster.Source
	simLength float64
	simStart  time.Time
	logger    *logging.ContextLogger
	metrics   *metrics.Collector

	// Populated by Setup.
	interval        float64
	nominalEntries  uint64
	effectiveLength float64
	sampleNames     []string
	reachable       int
	transform       *grid.Transform

	// Populated by Prepare.
	precision device.Precision
	bufConfig device.Buffer
	bufValues device.Buffer
	kernel    device.Kernel

	// Streaming state. stagedValid is false until the first sample has
	// been staged.
	entry       *Entry
	stagedIndex int
	stagedValid bool
}

// NewGridded creates an unconfigured gridded boundary for the given
// simulation domain. simLength is the total simulated duration in seconds
// and simStart the real-world timestamp of simulation time zero, used for
// filename mask expansion.
func NewGridded(
	domain *grid.CartesianDomain,
	source raster.Source,
	simLength float64,
	simStart time.Time,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *Gridded {
	return &Gridded{
		kind:      RainIntensity,
		domain:    domain,
		source:    source,
		simLength: simLength,
		simStart:  simStart,
		logger:    logger.WithFields(logging.Fields{"component": "boundary"}),
		metrics:   metricsCollector,
	}
}

// Name returns the boundary's configured name.
func (b *Gridded) Name() string { return b.name }

// Transform returns the grid transform, or nil while unconfigured.
func (b *Gridded) Transform() *grid.Transform { return b.transform }

// EffectiveLength returns the last simulation time still covered by a
// gap-free run of samples, in seconds.
func (b *Gridded) EffectiveLength() float64 { return b.effectiveLength }

// SampleCount returns the number of resolved raster names.
func (b *Gridded) SampleCount() int { return len(b.sampleNames) }

// StagedIndex returns the staged timeseries index, or -1 if no sample has
// been streamed yet.
func (b *Gridded) StagedIndex() int {
	if !b.stagedValid {
		return -1
	}
	return b.stagedIndex
}

// Precision returns the active numeric precision; meaningful after Prepare.
func (b *Gridded) Precision() device.Precision { return b.precision }

// Setup validates the definition, resolves the timeseries file list and
// computes the grid transform from the first resolvable sample.
//
// A malformed interval is fatal to this boundary. A missing sample shrinks
// the effective series length and setup continues; the boundary degrades
// rather than aborting.
func (b *Gridded) Setup(ctx context.Context, def Definition) error {
	b.name = def.Name

	interval, err := strconv.ParseFloat(strings.TrimSpace(strings.ToLower(def.Interval)), 64)
	if err != nil || interval <= 0 || math.IsInf(interval, 0) || math.IsNaN(interval) {
		return &ConfigError{
			Attr:    "interval",
			Value:   def.Interval,
			Message: "gridded boundary interval is not a valid positive number",
		}
	}
	b.interval = interval

	switch strings.ToLower(strings.TrimSpace(def.Value)) {
	case "", "rain-intensity":
		b.kind = RainIntensity
	case "mass-flux":
		b.kind = MassFlux
	default:
		// Non-fatal: the kind already set stands.
		b.logger.Warn(ctx, "[BDY_CONFIG] Unrecognised value kind for gridded timeseries data, supported are: rain-intensity, mass-flux", logging.Fields{
			"boundary": b.name,
			"value":    def.Value,
		})
	}

	b.nominalEntries = uint64(math.Floor(b.simLength/b.interval)) + 1
	b.effectiveLength = b.simLength
	contiguous := true

	for t := 0.0; t <= b.simLength; t += b.interval {
		name := ExpandMask(def.Mask, b.simStart.Add(time.Duration(t*float64(time.Second))))

		if !b.source.Exists(ctx, name) {
			b.logger.Warn(ctx, "[BDY_CONFIG] Gridded boundary raster missing", logging.Fields{
				"boundary":    b.name,
				"sample_time": t,
				"raster":      name,
			})
			b.effectiveLength = math.Min(b.effectiveLength, t)
			contiguous = false
			continue
		}

		b.sampleNames = append(b.sampleNames, name)
		if contiguous {
			b.reachable++
		}

		// First resolvable raster determines the transform; every later
		// sample is assumed grid-congruent with it.
		if b.transform == nil {
			ds, err := b.source.Open(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to open first boundary raster %s: %w", name, err)
			}
			transform, err := ds.TransformFor(b.domain)
			ds.Close()
			if err != nil {
				return fmt.Errorf("failed to compute grid transform from %s: %w", name, err)
			}
			b.transform = transform
		}
	}

	if b.transform == nil {
		b.logger.Warn(ctx, "[BDY_CONFIG] No boundary rasters resolvable, boundary is inactive", logging.Fields{
			"boundary": b.name,
			"mask":     def.Mask,
		})
		return nil
	}

	b.logger.Info(ctx, "[BDY_CONFIG] Gridded boundary configured", logging.Fields{
		"boundary":         b.name,
		"value_kind":       b.kind.String(),
		"interval_seconds": b.interval,
		"nominal_entries":  b.nominalEntries,
		"resolved_samples": len(b.sampleNames),
		"reachable":        b.reachable,
		"effective_length": b.effectiveLength,
		"grid_rows":        b.transform.Rows,
		"grid_cols":        b.transform.Cols,
	})
	return nil
}

// Prepare builds the device-resident configuration record, allocates the
// configuration and values buffers, binds the kernel arguments and
// computes dispatch geometry. A no-op when the boundary is inactive.
//
// The precision choice is sticky for the boundary's lifetime. Resource
// failures here are fatal and surfaced to the caller.
func (b *Gridded) Prepare(prog device.Program, bed, manning, timeBuf, timeHydrological, timestep device.Buffer) error {
	if b.transform == nil {
		return nil
	}

	b.precision = prog.Precision()

	record := encodeConfigRecord(b.precision, b.interval, b.nominalEntries, b.kind, b.transform)

	bufConfig, err := prog.CreateBuffer("Bdy_"+b.name+"_Conf", len(record))
	if err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	copy(bufConfig.HostBlock(), record)
	if err := bufConfig.Upload(); err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	b.bufConfig = bufConfig

	valueBytes := int(b.transform.CellCount()) * b.precision.ElementBytes()
	bufValues, err := prog.CreateBuffer("Bdy_"+b.name+"_Stream", valueBytes)
	if err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	if err := bufValues.Upload(); err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	b.bufValues = bufValues

	kernel, err := prog.Kernel(KernelName)
	if err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}

	args := make([]device.Buffer, argCount)
	args[argConfiguration] = b.bufConfig
	args[argValues] = b.bufValues
	args[argTime] = timeBuf
	args[argTimestep] = timestep
	args[argTimeHydrological] = timeHydrological
	args[argCellStates] = nil // bound per step by Apply
	args[argBed] = bed
	args[argManning] = manning
	if err := kernel.AssignArguments(args); err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}

	kernel.SetGlobalSize(roundUpToWorkGroup(b.domain.Cols), roundUpToWorkGroup(b.domain.Rows))
	kernel.SetLocalSize(workGroupSize, workGroupSize)
	b.kernel = kernel

	return nil
}

// Advance stages the sample due at simulation time t. When the due index
// is already resident on the device this is a no-op; freshness is tracked
// by index, not content.
func (b *Gridded) Advance(ctx context.Context, t float64) error {
	if b.transform == nil || b.reachable == 0 || b.bufValues == nil {
		return nil
	}

	// Clamp to the last index still covered by a gap-free run of samples;
	// indices past a missing raster are unreachable.
	idx := int(math.Floor(t / b.interval))
	if idx >= b.reachable {
		idx = b.reachable - 1
	}
	if idx < 0 {
		idx = 0
	}

	if b.stagedValid && b.stagedIndex == idx {
		b.metrics.RecordAdvanceSkipped(b.name)
		return nil
	}

	start := time.Now()
	name := b.sampleNames[idx]

	ds, err := b.source.Open(ctx, name)
	if err != nil {
		b.metrics.RecordLoadError(b.name, "open_error")
		return fmt.Errorf("boundary %s: failed to open raster %s: %w", b.name, name, err)
	}
	values, err := ds.ExtractArray(b.transform)
	ds.Close()
	if err != nil {
		b.metrics.RecordLoadError(b.name, "extract_error")
		return fmt.Errorf("boundary %s: failed to extract sample from %s: %w", b.name, name, err)
	}
	if uint64(len(values)) != b.transform.CellCount() {
		b.metrics.RecordLoadError(b.name, "size_mismatch")
		return fmt.Errorf("boundary %s: raster %s yielded %d values, expected %d",
			b.name, name, len(values), b.transform.CellCount())
	}

	// The previous entry is discarded; only the staged sample is kept.
	b.entry = NewEntry(t, values)

	if err := b.entry.EncodeInto(b.bufValues.HostBlock(), b.precision); err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	if err := b.bufValues.Upload(); err != nil {
		b.metrics.RecordLoadError(b.name, "upload_error")
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}

	b.stagedIndex = idx
	b.stagedValid = true
	b.metrics.RecordSampleLoad(b.name, time.Since(start))

	b.logger.Debug(ctx, "[BDY_STREAM] Sample staged", logging.Fields{
		"boundary":        b.name,
		"sample_index":    idx,
		"raster":          name,
		"simulation_time": t,
	})
	return nil
}

// Apply binds the step's cell-state buffer and enqueues the kernel. The
// simulation may swap cell-state buffers between steps, so the slot is
// rebound every time. Fire-and-forget: ordering against later kernels is
// the device queue's responsibility.
func (b *Gridded) Apply(cell device.Buffer) error {
	if b.kernel == nil {
		return nil
	}
	if err := b.kernel.AssignArgument(argCellStates, cell); err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	if err := b.kernel.Enqueue(); err != nil {
		return fmt.Errorf("boundary %s: %w", b.name, err)
	}
	return nil
}

// Clean releases the boundary's device buffers and streaming state.
func (b *Gridded) Clean() {
	if b.bufConfig != nil {
		b.bufConfig.Release()
		b.bufConfig = nil
	}
	if b.bufValues != nil {
		b.bufValues.Release()
		b.bufValues = nil
	}
	b.kernel = nil
	b.entry = nil
	b.stagedValid = false
}

// roundUpToWorkGroup rounds n up to the next multiple of the work-group
// size.
func roundUpToWorkGroup(n uint64) uint64 {
	return (n + workGroupSize - 1) / workGroupSize * workGroupSize
}
