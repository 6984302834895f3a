package device

// Precision selects the numeric width of device-side floating point data.
// A program's precision is fixed when it is built; everything staged for it
// must match.
type Precision int

const (
	Single Precision = iota
	Double
)

// ElementBytes returns the byte width of one floating point element.
func (p Precision) ElementBytes() int {
	if p == Double {
		return 8
	}
	return 4
}

// String returns string representation of the precision
func (p Precision) String() string {
	if p == Double {
		return "double"
	}
	return "single"
}

// Program is a compiled compute program on one device. Buffers are created
// against a program and kernels are looked up from it by name.
type Program interface {
	// Precision returns the float form the program was built with.
	Precision() Precision

	// CreateBuffer allocates a device buffer of the given byte size with a
	// host-visible staging block. Allocation failure is fatal to setup.
	CreateBuffer(name string, size int) (Buffer, error)

	// Kernel looks up a compiled kernel by name.
	Kernel(name string) (Kernel, error)

	// Release frees the program and its device resources.
	Release()
}

// Buffer is a device buffer with a host-visible staging block. The staging
// block is written by the host and pushed to the device with Upload; the
// host never reads device contents back through it.
type Buffer interface {
	Name() string
	Size() int

	// HostBlock returns the host-visible staging region.
	HostBlock() []byte

	// Upload enqueues a full write of the staging block to the device.
	// The write is ordered before any later kernel enqueue on the same
	// program's in-order queue.
	Upload() error

	// Release frees the device allocation.
	Release()
}

// Kernel is a device kernel with positional buffer arguments and a 2D
// dispatch geometry.
type Kernel interface {
	Name() string

	// AssignArguments binds buffers positionally. A nil entry leaves that
	// slot unbound, to be supplied later with AssignArgument.
	AssignArguments(bufs []Buffer) error

	// AssignArgument binds a single argument slot.
	AssignArgument(index int, buf Buffer) error

	// SetGlobalSize sets the 2D global work size.
	SetGlobalSize(x, y uint64)

	// SetLocalSize sets the 2D work-group size.
	SetLocalSize(x, y uint64)

	// Enqueue schedules the kernel for execution. It does not wait for
	// completion; ordering is the in-order queue's responsibility.
	Enqueue() error
}
