package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// Boundary streaming metrics
	BoundaryLoadsTotal     *prometheus.CounterVec
	BoundaryLoadDuration   *prometheus.HistogramVec
	BoundaryAdvanceSkipped *prometheus.CounterVec
	BoundaryLoadErrors     *prometheus.CounterVec

	// Device metrics
	DeviceWritesTotal     *prometheus.CounterVec
	DeviceWriteBytes      *prometheus.CounterVec
	KernelDispatchesTotal *prometheus.CounterVec

	// Raster archive metrics
	ArchiveQueryDuration *prometheus.HistogramVec
	ArchiveErrorsTotal   *prometheus.CounterVec

	// Loader metrics
	LoaderRastersTotal prometheus.Counter
	LoaderDuration     prometheus.Histogram
	LoaderErrorsTotal  *prometheus.CounterVec

	// Simulation metrics
	SimulationStepsTotal prometheus.Counter
	SimulationTime       prometheus.Gauge
	StepDuration         prometheus.Histogram
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	return &Collector{
		BoundaryLoadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boundary_sample_loads_total",
				Help:      "Total number of boundary timeseries samples loaded from the raster source",
			},
			[]string{"boundary"},
		),

		BoundaryLoadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "boundary_sample_load_duration_seconds",
				Help:      "Duration of boundary sample load and device staging in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
			},
			[]string{"boundary"},
		),

		BoundaryAdvanceSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boundary_advance_skipped_total",
				Help:      "Total number of advance calls that required no load because the due sample was already staged",
			},
			[]string{"boundary"},
		),

		BoundaryLoadErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boundary_load_errors_total",
				Help:      "Total number of boundary sample load failures by type",
			},
			[]string{"boundary", "error_type"},
		),

		DeviceWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_buffer_writes_total",
				Help:      "Total number of host-to-device buffer writes by buffer",
			},
			[]string{"buffer"},
		),

		DeviceWriteBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_buffer_write_bytes_total",
				Help:      "Total bytes transferred to the device by buffer",
			},
			[]string{"buffer"},
		),

		KernelDispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kernel_dispatches_total",
				Help:      "Total number of compute kernel dispatches by kernel",
			},
			[]string{"kernel"},
		),

		ArchiveQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_query_duration_seconds",
				Help:      "Raster archive query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		ArchiveErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_errors_total",
				Help:      "Total number of raster archive errors by type",
			},
			[]string{"error_type"},
		),

		LoaderRastersTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_rasters_processed_total",
				Help:      "Total number of raster files loaded into the archive",
			},
		),

		LoaderDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "loader_duration_seconds",
				Help:      "Duration of archive load operations in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		LoaderErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_errors_total",
				Help:      "Total number of loader errors by type",
			},
			[]string{"error_type"},
		),

		SimulationStepsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulation_steps_total",
				Help:      "Total number of simulation steps executed",
			},
		),

		SimulationTime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "simulation_time_seconds",
				Help:      "Current simulation time in seconds since simulation start",
			},
		),

		StepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Host-side duration of one simulation step in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordSampleLoad records one completed boundary sample load.
func (c *Collector) RecordSampleLoad(boundary string, duration time.Duration) {
	c.BoundaryLoadsTotal.WithLabelValues(boundary).Inc()
	c.BoundaryLoadDuration.WithLabelValues(boundary).Observe(duration.Seconds())
}

// RecordAdvanceSkipped records an advance call that found its sample staged.
func (c *Collector) RecordAdvanceSkipped(boundary string) {
	c.BoundaryAdvanceSkipped.WithLabelValues(boundary).Inc()
}

// RecordLoadError increments the boundary load error counter.
func (c *Collector) RecordLoadError(boundary, errorType string) {
	c.BoundaryLoadErrors.WithLabelValues(boundary, errorType).Inc()
}

// RecordDeviceWrite records one host-to-device buffer transfer.
func (c *Collector) RecordDeviceWrite(buffer string, bytes int) {
	c.DeviceWritesTotal.WithLabelValues(buffer).Inc()
	c.DeviceWriteBytes.WithLabelValues(buffer).Add(float64(bytes))
}

// RecordKernelDispatch increments the kernel dispatch counter.
func (c *Collector) RecordKernelDispatch(kernel string) {
	c.KernelDispatchesTotal.WithLabelValues(kernel).Inc()
}

// RecordArchiveError increments the archive error counter.
func (c *Collector) RecordArchiveError(errorType string) {
	c.ArchiveErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordLoaderError increments the loader error counter.
func (c *Collector) RecordLoaderError(errorType string) {
	c.LoaderErrorsTotal.WithLabelValues(errorType).Inc()
}
