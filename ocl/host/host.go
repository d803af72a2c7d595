// Package host implements an ocl.Backend that runs kernels in-process, on virtual devices.
//
// There is no OpenCL C compiler here: kernels are Go functions registered under their entry point
// name with RegisterKernel. "Building" a kernel checks the source declares the entry point and
// hands the source to the registered factory, which returns the function that emulates it.
//
// Virtual devices have configurable speed, to test load balancing, and fault injection, to test
// error handling. Profiling time stamps come from a per-queue virtual clock, advanced by the
// measured wall time of each launch or, if DeviceSpec.NanosPerWorkItem is set, by a deterministic
// synthetic cost.
package host

import (
	"fmt"
	"runtime"

	"github.com/gomlx/sgstream/ocl"
)

// PlatformName is the name of the platform created by NewDefault.
const PlatformName = "Host Emulator"

// DeviceSpec configures one virtual device.
type DeviceSpec struct {
	Name string
	Type ocl.DeviceType

	// NanosPerWorkItem, if > 0, makes the profiled time of a launch global×NanosPerWorkItem
	// nanoseconds, instead of the measured wall time.
	NanosPerWorkItem float64

	// Slowdown multiplies the profiled time of every launch. 0 is the same as 1.
	Slowdown float64

	// MaxWorkGroupSize is the largest local size accepted. 0 means 1024.
	MaxWorkGroupSize int

	// MaxAllocBytes, if > 0, makes allocations larger than it fail.
	MaxAllocBytes int

	// FailAtLaunch, if > 0, makes the launch with this ordinal (starting at 1) and all the
	// following ones fail at execution.
	FailAtLaunch int

	// Parallelism is the number of goroutines used to run work-groups. 0 means runtime.NumCPU().
	Parallelism int
}

// PlatformSpec configures one virtual platform.
type PlatformSpec struct {
	Name    string
	Devices []DeviceSpec
}

// Backend implements ocl.Backend with virtual devices.
type Backend struct {
	platforms []PlatformSpec
}

// Compile-time check.
var _ ocl.Backend = (*Backend)(nil)

// New creates a Backend with the given platforms.
func New(platforms ...PlatformSpec) *Backend {
	return &Backend{platforms: platforms}
}

// NewDefault creates a Backend with one platform and numDevices identical CPU devices.
func NewDefault(numDevices int) *Backend {
	platform := PlatformSpec{Name: PlatformName}
	for range numDevices {
		platform.Devices = append(platform.Devices, DeviceSpec{Name: "virtual-cpu", Type: ocl.DeviceTypeCPU})
	}
	return New(platform)
}

// Name implements ocl.Backend.
func (b *Backend) Name() string {
	return "host"
}

// Platforms implements ocl.Backend.
func (b *Backend) Platforms() ([]ocl.PlatformDescription, error) {
	descriptions := make([]ocl.PlatformDescription, len(b.platforms))
	for ii, platform := range b.platforms {
		descriptions[ii].Name = platform.Name
		for _, device := range platform.Devices {
			deviceType := device.Type
			if deviceType == "" {
				deviceType = ocl.DeviceTypeCPU
			}
			descriptions[ii].Devices = append(descriptions[ii].Devices,
				ocl.DeviceDescription{Name: device.Name, Type: deviceType})
		}
	}
	return descriptions, nil
}

// OpenQueue implements ocl.Backend.
func (b *Backend) OpenQueue(platformID, deviceID int) (ocl.Queue, error) {
	if platformID < 0 || platformID >= len(b.platforms) {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidPlatform, "host: invalid platform id %d", platformID)
	}
	platform := b.platforms[platformID]
	if deviceID < 0 || deviceID >= len(platform.Devices) {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidDevice, "host: invalid device id %d for platform %q", deviceID, platform.Name)
	}
	spec := platform.Devices[deviceID]
	if spec.MaxWorkGroupSize <= 0 {
		spec.MaxWorkGroupSize = 1024
	}
	if spec.Slowdown <= 0 {
		spec.Slowdown = 1
	}
	if spec.Parallelism <= 0 {
		spec.Parallelism = runtime.NumCPU()
	}
	return &queue{spec: spec, name: fmt.Sprintf("%s/%s#%d", platform.Name, spec.Name, deviceID)}, nil
}
