// Package ocl wraps the OpenCL concepts the streaming operations need: devices with their
// command queues, compiled kernels, and device buffers with host mirrors.
//
// The device API itself is abstracted by Backend, so the same code runs on a real OpenCL
// implementation (package ocl/native, built with the "opencl" tag) or on the in-process
// emulator of package ocl/host.
//
// Every handle (Kernel, Buffer, ClonedBuffer, StretchedBuffer) has an idempotent release
// method and is also released when garbage collected.
package ocl

// DeviceType as reported by the platform.
type DeviceType string

const (
	DeviceTypeCPU         DeviceType = "cpu"
	DeviceTypeGPU         DeviceType = "gpu"
	DeviceTypeAccelerator DeviceType = "accelerator"
	DeviceTypeOther       DeviceType = "other"
)

// Backend is the entry point to an OpenCL implementation.
type Backend interface {
	// Name of the backend, for logging.
	Name() string

	// Platforms lists the available platforms and their devices, in the implementation's order.
	Platforms() ([]PlatformDescription, error)

	// OpenQueue creates the context and profiling-enabled command queue for one device.
	OpenQueue(platformID, deviceID int) (Queue, error)
}

// PlatformDescription as returned by Backend.Platforms.
type PlatformDescription struct {
	Name    string
	Devices []DeviceDescription
}

// DeviceDescription as returned by Backend.Platforms.
type DeviceDescription struct {
	Name string
	Type DeviceType
}

// Queue is a command queue bound to one device. All transfers are blocking.
//
// A Queue is only used by one goroutine at a time.
type Queue interface {
	CreateBuffer(sizeBytes int) (Mem, error)
	WriteBuffer(mem Mem, data []byte) error
	ReadBuffer(mem Mem, data []byte) error
	ReleaseBuffer(mem Mem) error

	// BuildKernel compiles source with the given build options and returns the kernel entryPoint.
	BuildKernel(source, entryPoint, options string) (KernelObject, error)

	// SetKernelArg sets argument index to a Mem, an int32 or an uint32.
	SetKernelArg(kernel KernelObject, index int, value any) error

	// EnqueueNDRange enqueues a one-dimensional ND-range of global work-items in groups of local.
	EnqueueNDRange(kernel KernelObject, global, local int) (Event, error)

	ReleaseKernel(kernel KernelObject) error
	Finish() error
	Release() error
}

// Mem is a device memory object.
type Mem interface {
	SizeBytes() int
}

// KernelObject is a compiled kernel, owned by the Queue that built it.
type KernelObject interface {
	EntryPoint() string
}

// Event of an enqueued command.
type Event interface {
	Wait() error

	// Profile returns the device time stamps, in nanoseconds, of the command start and end.
	Profile() (start, end uint64, err error)

	Release() error
}
