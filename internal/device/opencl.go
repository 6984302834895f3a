//go:build cgo

package device

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"flood-platform/pkg/metrics"
)

// OpenCLProgram runs kernels on a real OpenCL device. The command queue is
// created in-order, so buffer writes enqueued before a kernel dispatch are
// consumed by that dispatch without host-side synchronization.
type OpenCLProgram struct {
	device    *cl.Device
	context   *cl.Context
	queue     *cl.CommandQueue
	program   *cl.Program
	precision Precision
	metrics   *metrics.Collector
}

// NewOpenCLProgram selects an OpenCL device (GPU preferred, CPU fallback),
// compiles the given kernel source and returns the program. Double
// precision builds define USE_DOUBLE for the kernel source.
func NewOpenCLProgram(source string, precision Precision, metricsCollector *metrics.Collector) (*OpenCLProgram, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("querying OpenCL platforms: %w", err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available")
	}

	var device *cl.Device
	for _, p := range platforms {
		devices, derr := p.GetDevices(cl.DeviceTypeGPU)
		if derr != nil && derr != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			device = devices[0]
			break
		}
	}
	if device == nil {
		for _, p := range platforms {
			devices, derr := p.GetDevices(cl.DeviceTypeCPU)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				device = devices[0]
				break
			}
		}
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	if precision == Double && !strings.Contains(device.Extensions(), "cl_khr_fp64") {
		return nil, fmt.Errorf("device %s does not support double precision", device.Name())
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	program, err := context.CreateProgramWithSource([]string{source})
	if err != nil {
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}

	buildOptions := ""
	if precision == Double {
		buildOptions = "-DUSE_DOUBLE=1"
	}
	if err := program.BuildProgram([]*cl.Device{device}, buildOptions); err != nil {
		program.Release()
		queue.Release()
		context.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}

	return &OpenCLProgram{
		device:    device,
		context:   context,
		queue:     queue,
		program:   program,
		precision: precision,
		metrics:   metricsCollector,
	}, nil
}

// DeviceName returns the selected OpenCL device's name.
func (p *OpenCLProgram) DeviceName() string {
	return p.device.Name()
}

// Precision returns the float form the program was built with.
func (p *OpenCLProgram) Precision() Precision {
	return p.precision
}

// CreateBuffer allocates a device buffer with a host staging block.
func (p *OpenCLProgram) CreateBuffer(name string, size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer %s must have positive size, got %d", name, size)
	}
	mem, err := p.context.CreateEmptyBuffer(cl.MemReadWrite, size)
	if err != nil {
		return nil, fmt.Errorf("allocating buffer %s (%d bytes): %w", name, size, err)
	}
	return &openCLBuffer{
		name:    name,
		mem:     mem,
		host:    make([]byte, size),
		program: p,
	}, nil
}

// Kernel looks up a compiled kernel by name.
func (p *OpenCLProgram) Kernel(name string) (Kernel, error) {
	k, err := p.program.CreateKernel(name)
	if err != nil {
		return nil, fmt.Errorf("kernel %s not found in program: %w", name, err)
	}
	return &openCLKernel{
		name:    name,
		kernel:  k,
		program: p,
	}, nil
}

// Release frees the program and its device resources.
func (p *OpenCLProgram) Release() {
	p.program.Release()
	p.queue.Release()
	p.context.Release()
}

type openCLBuffer struct {
	name    string
	mem     *cl.MemObject
	host    []byte
	program *OpenCLProgram
}

func (b *openCLBuffer) Name() string { return b.name }

func (b *openCLBuffer) Size() int { return len(b.host) }

func (b *openCLBuffer) HostBlock() []byte { return b.host }

func (b *openCLBuffer) Upload() error {
	_, err := b.program.queue.EnqueueWriteBuffer(b.mem, false, 0, len(b.host), unsafe.Pointer(&b.host[0]), nil)
	if err != nil {
		return fmt.Errorf("enqueue write of buffer %s: %w", b.name, err)
	}
	b.program.metrics.RecordDeviceWrite(b.name, len(b.host))
	return nil
}

func (b *openCLBuffer) Release() {
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
}

type openCLKernel struct {
	name    string
	kernel  *cl.Kernel
	program *OpenCLProgram
	global  [2]uint64
	local   [2]uint64
}

func (k *openCLKernel) Name() string { return k.name }

func (k *openCLKernel) AssignArguments(bufs []Buffer) error {
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

func (k *openCLKernel) AssignArgument(index int, buf Buffer) error {
	b, ok := buf.(*openCLBuffer)
	if !ok {
		return fmt.Errorf("kernel %s argument %d: buffer %s is not an OpenCL buffer", k.name, index, buf.Name())
	}
	if err := k.kernel.SetArgBuffer(index, b.mem); err != nil {
		return fmt.Errorf("kernel %s argument %d: %w", k.name, index, err)
	}
	return nil
}

func (k *openCLKernel) SetGlobalSize(x, y uint64) {
	k.global = [2]uint64{x, y}
}

func (k *openCLKernel) SetLocalSize(x, y uint64) {
	k.local = [2]uint64{x, y}
}

func (k *openCLKernel) Enqueue() error {
	global := []int{int(k.global[0]), int(k.global[1])}
	local := []int{int(k.local[0]), int(k.local[1])}
	if _, err := k.program.queue.EnqueueNDRangeKernel(k.kernel, nil, global, local, nil); err != nil {
		return fmt.Errorf("enqueue kernel %s: %w", k.name, err)
	}
	k.program.metrics.RecordKernelDispatch(k.name)
	return nil
}
