//go:build !opencl

// Package native implements ocl.Backend on the system's OpenCL implementation. It is only built
// with the "opencl" build tag; without it New returns an error.
package native

import (
	"github.com/gomlx/sgstream/ocl"
)

// Available reports whether the OpenCL backend was compiled in.
const Available = false

// Backend is not available in this build.
type Backend struct{}

var _ ocl.Backend = (*Backend)(nil)

// New fails: OpenCL support was not compiled in, build with -tags opencl.
func New() (*Backend, error) {
	return nil, ocl.Errorf(ocl.ErrConfiguration, "OpenCL support not compiled in this build, rebuild with -tags opencl")
}

// Name implements ocl.Backend.
func (b *Backend) Name() string {
	return "opencl (not available)"
}

// Platforms implements ocl.Backend.
func (b *Backend) Platforms() ([]ocl.PlatformDescription, error) {
	return nil, ocl.StatusErrorf(ocl.StatusPlatformNotFoundKHR, "OpenCL not available")
}

// OpenQueue implements ocl.Backend.
func (b *Backend) OpenQueue(platformID, deviceID int) (ocl.Queue, error) {
	return nil, ocl.StatusErrorf(ocl.StatusPlatformNotFoundKHR, "OpenCL not available")
}
