package device

import (
	"fmt"
	"sync/atomic"
	"testing"

	"flood-platform/pkg/metrics"
)

var metricsSeq int64

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollector(fmt.Sprintf("device_test_%d", atomic.AddInt64(&metricsSeq, 1)))
}

func TestPrecision(t *testing.T) {
	if Single.ElementBytes() != 4 {
		t.Errorf("Single.ElementBytes() = %d, want 4", Single.ElementBytes())
	}
	if Double.ElementBytes() != 8 {
		t.Errorf("Double.ElementBytes() = %d, want 8", Double.ElementBytes())
	}
	if Single.String() != "single" || Double.String() != "double" {
		t.Errorf("String() = %q, %q, want single, double", Single.String(), Double.String())
	}
}

func TestMemProgramCreateBuffer(t *testing.T) {
	prog := NewMemProgram(Double, newTestMetrics())

	buf, err := prog.CreateBuffer("Dom_Bed", 64)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if buf.Name() != "Dom_Bed" {
		t.Errorf("Name() = %q, want Dom_Bed", buf.Name())
	}
	if buf.Size() != 64 {
		t.Errorf("Size() = %d, want 64", buf.Size())
	}

	if _, err := prog.CreateBuffer("Dom_Bed", 64); err == nil {
		t.Error("CreateBuffer() should reject a duplicate name")
	}
	if _, err := prog.CreateBuffer("Empty", 0); err == nil {
		t.Error("CreateBuffer() should reject a zero size")
	}
}

func TestMemBufferUpload(t *testing.T) {
	prog := NewMemProgram(Double, newTestMetrics())
	buf, err := prog.CreateBuffer("Dom_Bed", 8)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	copy(buf.HostBlock(), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	mb := buf.(*MemBuffer)

	// Host edits stay invisible to the device until uploaded.
	for _, b := range mb.DeviceBlock() {
		if b != 0 {
			t.Fatal("device block should be zero before upload")
		}
	}

	if err := buf.Upload(); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	for i, b := range mb.DeviceBlock() {
		if b != byte(i+1) {
			t.Errorf("device byte %d = %d, want %d", i, b, i+1)
		}
	}
	if mb.Uploads() != 1 {
		t.Errorf("Uploads() = %d, want 1", mb.Uploads())
	}
	if len(prog.OpLog) != 1 || prog.OpLog[0] != "write:Dom_Bed" {
		t.Errorf("OpLog = %v, want [write:Dom_Bed]", prog.OpLog)
	}
}

func TestMemBufferRelease(t *testing.T) {
	prog := NewMemProgram(Single, newTestMetrics())
	buf, _ := prog.CreateBuffer("Dom_Bed", 8)

	buf.Release()
	if prog.Buffer("Dom_Bed") != nil {
		t.Error("buffer should be gone after Release")
	}

	// The name becomes reusable.
	if _, err := prog.CreateBuffer("Dom_Bed", 8); err != nil {
		t.Errorf("CreateBuffer() after Release error = %v", err)
	}
}

func TestMemKernel(t *testing.T) {
	prog := NewMemProgram(Double, newTestMetrics())

	k1, err := prog.Kernel("bdy_StreamingGridded")
	if err != nil {
		t.Fatalf("Kernel() error = %v", err)
	}
	k2, _ := prog.Kernel("bdy_StreamingGridded")
	if k1 != k2 {
		t.Error("repeated lookups should return the same kernel")
	}

	a, _ := prog.CreateBuffer("A", 8)
	b, _ := prog.CreateBuffer("B", 8)

	// nil slots are skipped, to be bound later.
	if err := k1.AssignArguments([]Buffer{a, nil, b}); err != nil {
		t.Fatalf("AssignArguments() error = %v", err)
	}
	mk := k1.(*MemKernel)
	if mk.Argument(0) != a || mk.Argument(2) != b {
		t.Error("arguments not bound at expected slots")
	}
	if mk.Argument(1) != nil {
		t.Error("nil slot should stay unbound")
	}

	if err := k1.AssignArgument(1, nil); err == nil {
		t.Error("AssignArgument() should reject a nil buffer")
	}

	k1.SetGlobalSize(40, 24)
	k1.SetLocalSize(8, 8)
	gx, gy := mk.GlobalSize()
	if gx != 40 || gy != 24 {
		t.Errorf("GlobalSize() = (%d,%d), want (40,24)", gx, gy)
	}

	if err := k1.Enqueue(); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if mk.Dispatches() != 1 {
		t.Errorf("Dispatches() = %d, want 1", mk.Dispatches())
	}
	last := prog.OpLog[len(prog.OpLog)-1]
	if last != "dispatch:bdy_StreamingGridded" {
		t.Errorf("last operation = %q, want dispatch entry", last)
	}
}

func TestMemProgramOpLogOrdering(t *testing.T) {
	prog := NewMemProgram(Double, newTestMetrics())
	buf, _ := prog.CreateBuffer("Bdy_rain_Stream", 8)
	k, _ := prog.Kernel("bdy_StreamingGridded")
	if err := k.AssignArgument(0, buf); err != nil {
		t.Fatalf("AssignArgument() error = %v", err)
	}

	// Produce then consume, twice.
	for i := 0; i < 2; i++ {
		if err := buf.Upload(); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if err := k.Enqueue(); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	want := []string{
		"write:Bdy_rain_Stream",
		"dispatch:bdy_StreamingGridded",
		"write:Bdy_rain_Stream",
		"dispatch:bdy_StreamingGridded",
	}
	if len(prog.OpLog) != len(want) {
		t.Fatalf("OpLog = %v, want %v", prog.OpLog, want)
	}
	for i, op := range want {
		if prog.OpLog[i] != op {
			t.Errorf("OpLog[%d] = %q, want %q", i, prog.OpLog[i], op)
		}
	}
}
