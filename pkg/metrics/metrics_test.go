package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var metricsSeq int64

func newTestCollector() *Collector {
	return NewCollector(fmt.Sprintf("metrics_test_%d", atomic.AddInt64(&metricsSeq, 1)))
}

func TestRecordSampleLoad(t *testing.T) {
	c := newTestCollector()

	c.RecordSampleLoad("rain", 5*time.Millisecond)
	c.RecordSampleLoad("rain", 10*time.Millisecond)
	c.RecordSampleLoad("inflow", 1*time.Millisecond)

	if got := testutil.ToFloat64(c.BoundaryLoadsTotal.WithLabelValues("rain")); got != 2 {
		t.Errorf("rain loads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.BoundaryLoadsTotal.WithLabelValues("inflow")); got != 1 {
		t.Errorf("inflow loads = %v, want 1", got)
	}
}

func TestRecordAdvanceSkipped(t *testing.T) {
	c := newTestCollector()

	for i := 0; i < 3; i++ {
		c.RecordAdvanceSkipped("rain")
	}

	if got := testutil.ToFloat64(c.BoundaryAdvanceSkipped.WithLabelValues("rain")); got != 3 {
		t.Errorf("skipped advances = %v, want 3", got)
	}
}

func TestRecordLoadError(t *testing.T) {
	c := newTestCollector()

	c.RecordLoadError("rain", "open_error")
	c.RecordLoadError("rain", "size_mismatch")
	c.RecordLoadError("rain", "open_error")

	if got := testutil.ToFloat64(c.BoundaryLoadErrors.WithLabelValues("rain", "open_error")); got != 2 {
		t.Errorf("open errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.BoundaryLoadErrors.WithLabelValues("rain", "size_mismatch")); got != 1 {
		t.Errorf("size mismatches = %v, want 1", got)
	}
}

func TestRecordDeviceWrite(t *testing.T) {
	c := newTestCollector()

	c.RecordDeviceWrite("Bdy_rain_Stream", 128)
	c.RecordDeviceWrite("Bdy_rain_Stream", 128)

	if got := testutil.ToFloat64(c.DeviceWritesTotal.WithLabelValues("Bdy_rain_Stream")); got != 2 {
		t.Errorf("writes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.DeviceWriteBytes.WithLabelValues("Bdy_rain_Stream")); got != 256 {
		t.Errorf("bytes = %v, want 256", got)
	}
}

func TestRecordKernelDispatch(t *testing.T) {
	c := newTestCollector()

	c.RecordKernelDispatch("bdy_StreamingGridded")

	if got := testutil.ToFloat64(c.KernelDispatchesTotal.WithLabelValues("bdy_StreamingGridded")); got != 1 {
		t.Errorf("dispatches = %v, want 1", got)
	}
}

func TestTimer(t *testing.T) {
	c := newTestCollector()

	timer := c.NewTimer(c.StepDuration)
	d := timer.ObserveDuration()
	if d < 0 {
		t.Errorf("ObserveDuration() = %v, want non-negative", d)
	}

	// A nil observer timer still measures.
	bare := c.NewTimer(nil)
	if d := bare.ObserveDuration(); d < 0 {
		t.Errorf("ObserveDuration() = %v, want non-negative", d)
	}
}
