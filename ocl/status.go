package ocl

import (
	"fmt"

	"github.com/pkg/errors"
)

// OpenCL status codes used by the backends.
const (
	StatusSuccess                    = 0
	StatusDeviceNotFound             = -1
	StatusDeviceNotAvailable         = -2
	StatusCompilerNotAvailable       = -3
	StatusMemObjectAllocationFailure = -4
	StatusOutOfResources             = -5
	StatusOutOfHostMemory            = -6
	StatusProfilingInfoNotAvailable  = -7
	StatusBuildProgramFailure        = -11
	StatusInvalidValue               = -30
	StatusInvalidPlatform            = -32
	StatusInvalidDevice              = -33
	StatusInvalidContext             = -34
	StatusInvalidCommandQueue        = -36
	StatusInvalidMemObject           = -38
	StatusInvalidKernelName          = -46
	StatusInvalidKernel              = -48
	StatusInvalidArgIndex            = -49
	StatusInvalidArgValue            = -50
	StatusInvalidKernelArgs          = -52
	StatusInvalidWorkGroupSize       = -54
	StatusInvalidEvent               = -58
	StatusInvalidBufferSize          = -61
	StatusInvalidGlobalWorkSize      = -63
	StatusPlatformNotFoundKHR        = -1001
	statusUnknown                    = 1
)

// StatusError is a failure of a device API call with its OpenCL status code.
type StatusError struct {
	Code int
	Msg  string
}

// StatusErrorf creates a StatusError with a stack trace.
func StatusErrorf(code int, format string, args ...any) error {
	return errors.WithStack(&StatusError{Code: code, Msg: fmt.Sprintf(format, args...)})
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (OpenCL status %d)", e.Msg, e.Code)
}

// StatusOf returns the OpenCL status code carried by err, 0 if err is nil, or a positive
// unknown status if err carries none.
func StatusOf(err error) int {
	if err == nil {
		return StatusSuccess
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	var oclErr *Error
	if errors.As(err, &oclErr) && oclErr.Status != StatusSuccess {
		return oclErr.Status
	}
	return statusUnknown
}
