package boundary

import (
	"context"
	"fmt"

	"flood-platform/internal/device"
)

// Boundary is the lifecycle contract every boundary variant satisfies.
// Setup runs once during configuration, Prepare once after the compute
// program is built, then each simulation step calls Advance before the
// scheme kernels and Apply after.
type Boundary interface {
	Name() string

	// Setup validates the definition and materializes the timeseries.
	Setup(ctx context.Context, def Definition) error

	// Prepare allocates device resources and binds kernel arguments. The
	// time, hydrological-time, timestep, bed and manning buffers are owned
	// by the simulation manager.
	Prepare(prog device.Program, bed, manning, timeBuf, timeHydrological, timestep device.Buffer) error

	// Advance stages the sample due at simulation time t.
	Advance(ctx context.Context, t float64) error

	// Apply binds the step's cell-state buffer and enqueues the kernel.
	Apply(cell device.Buffer) error

	// Clean releases device resources held by the boundary.
	Clean()
}

// Definition carries the textual boundary attributes as parsed from the
// run configuration. Interpretation and validation belong to the boundary.
type Definition struct {
	Type     string `yaml:"type"`
	Name     string `yaml:"name"`
	Mask     string `yaml:"mask"`
	Interval string `yaml:"interval"`
	Value    string `yaml:"value"`
}

// ValueKind is the semantic meaning of the grid values.
type ValueKind uint8

const (
	RainIntensity ValueKind = iota
	MassFlux
)

// String returns string representation of the value kind
func (k ValueKind) String() string {
	switch k {
	case RainIntensity:
		return "rain-intensity"
	case MassFlux:
		return "mass-flux"
	default:
		return "unknown"
	}
}

// ConfigError is a boundary configuration failure. Fatal errors make the
// boundary unusable (it is treated as inactive); non-fatal ones are
// reported and setup continues.
type ConfigError struct {
	Attr    string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("boundary attribute %q=%q: %s", e.Attr, e.Value, e.Message)
}

// Fatal reports whether the failure makes the boundary unusable. The run
// continues without the boundary rather than aborting.
func (e *ConfigError) Fatal() bool {
	return true
}
