package device

import (
	"fmt"

	"flood-platform/pkg/metrics"
)

// MemProgram is a host-memory device backend. It honors the same in-order
// produce-then-consume contract as the OpenCL backend but executes nothing;
// uploads copy the staging block into a device-side shadow slice and every
// operation is appended to an ordered log. It serves as the runtime
// fallback when no OpenCL platform is present and as the observation point
// for tests.
type MemProgram struct {
	precision Precision
	metrics   *metrics.Collector
	buffers   map[string]*MemBuffer
	kernels   map[string]*MemKernel

	// OpLog records uploads and dispatches in enqueue order, as
	// "write:<buffer>" and "dispatch:<kernel>" entries.
	OpLog []string
}

// NewMemProgram creates a host-memory program with the given float form.
func NewMemProgram(precision Precision, metricsCollector *metrics.Collector) *MemProgram {
	return &MemProgram{
		precision: precision,
		metrics:   metricsCollector,
		buffers:   make(map[string]*MemBuffer),
		kernels:   make(map[string]*MemKernel),
	}
}

// Precision returns the float form the program was built with.
func (p *MemProgram) Precision() Precision {
	return p.precision
}

// CreateBuffer allocates a host-memory buffer.
func (p *MemProgram) CreateBuffer(name string, size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer %s must have positive size, got %d", name, size)
	}
	if _, exists := p.buffers[name]; exists {
		return nil, fmt.Errorf("buffer %s already allocated", name)
	}
	b := &MemBuffer{
		name:    name,
		host:    make([]byte, size),
		dev:     make([]byte, size),
		program: p,
	}
	p.buffers[name] = b
	return b, nil
}

// Kernel returns the named kernel, creating it on first lookup. The
// host-memory backend compiles nothing, so every name resolves.
func (p *MemProgram) Kernel(name string) (Kernel, error) {
	if k, ok := p.kernels[name]; ok {
		return k, nil
	}
	k := &MemKernel{
		name:    name,
		args:    make(map[int]Buffer),
		program: p,
	}
	p.kernels[name] = k
	return k, nil
}

// Release drops all buffers and kernels.
func (p *MemProgram) Release() {
	p.buffers = make(map[string]*MemBuffer)
	p.kernels = make(map[string]*MemKernel)
}

// Buffer returns a previously created buffer by name, for inspection.
func (p *MemProgram) Buffer(name string) *MemBuffer {
	return p.buffers[name]
}

// MemBuffer is a host-memory buffer with a device shadow.
type MemBuffer struct {
	name    string
	host    []byte
	dev     []byte
	uploads int
	program *MemProgram
}

func (b *MemBuffer) Name() string { return b.name }

func (b *MemBuffer) Size() int { return len(b.host) }

func (b *MemBuffer) HostBlock() []byte { return b.host }

func (b *MemBuffer) Upload() error {
	copy(b.dev, b.host)
	b.uploads++
	b.program.OpLog = append(b.program.OpLog, "write:"+b.name)
	b.program.metrics.RecordDeviceWrite(b.name, len(b.host))
	return nil
}

func (b *MemBuffer) Release() {
	delete(b.program.buffers, b.name)
}

// Uploads returns how many full writes the buffer has received.
func (b *MemBuffer) Uploads() int { return b.uploads }

// DeviceBlock returns the device-side shadow contents.
func (b *MemBuffer) DeviceBlock() []byte { return b.dev }

// MemKernel records argument bindings and dispatches.
type MemKernel struct {
	name       string
	args       map[int]Buffer
	global     [2]uint64
	local      [2]uint64
	dispatches int
	program    *MemProgram
}

func (k *MemKernel) Name() string { return k.name }

func (k *MemKernel) AssignArguments(bufs []Buffer) error {
	for i, buf := range bufs {
		if buf == nil {
			continue
		}
		if err := k.AssignArgument(i, buf); err != nil {
			return err
		}
	}
	return nil
}

func (k *MemKernel) AssignArgument(index int, buf Buffer) error {
	if buf == nil {
		return fmt.Errorf("kernel %s argument %d: nil buffer", k.name, index)
	}
	k.args[index] = buf
	return nil
}

func (k *MemKernel) SetGlobalSize(x, y uint64) {
	k.global = [2]uint64{x, y}
}

func (k *MemKernel) SetLocalSize(x, y uint64) {
	k.local = [2]uint64{x, y}
}

func (k *MemKernel) Enqueue() error {
	k.dispatches++
	k.program.OpLog = append(k.program.OpLog, "dispatch:"+k.name)
	k.program.metrics.RecordKernelDispatch(k.name)
	return nil
}

// Dispatches returns how many times the kernel has been enqueued.
func (k *MemKernel) Dispatches() int { return k.dispatches }

// GlobalSize returns the configured 2D global work size.
func (k *MemKernel) GlobalSize() (uint64, uint64) { return k.global[0], k.global[1] }

// LocalSize returns the configured 2D work-group size.
func (k *MemKernel) LocalSize() (uint64, uint64) { return k.local[0], k.local[1] }

// Argument returns the buffer bound at the given slot, or nil.
func (k *MemKernel) Argument(index int) Buffer { return k.args[index] }
