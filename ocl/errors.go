package ocl

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies the errors of this package. The kinds are themselves errors, so
// callers can test with errors.Is(err, ocl.ErrDeviceRuntime).
type ErrorKind int

const (
	// ErrConfiguration is an illegal parameter or parameter combination.
	ErrConfiguration ErrorKind = iota + 1

	// ErrBufferState is the access of a buffer before it is initialized or after it is freed.
	ErrBufferState

	// ErrDeviceRuntime is a failure reported by the device API.
	ErrDeviceRuntime

	// ErrInputSize is a size incompatible with the operation: zero block sizes, ranges not
	// divisible by the block size, vectors of the wrong length.
	ErrInputSize
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfiguration:
		return "ConfigurationError"
	case ErrBufferState:
		return "BufferStateError"
	case ErrDeviceRuntime:
		return "DeviceRuntimeError"
	case ErrInputSize:
		return "InputSizeError"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Error() string {
	return k.String()
}

// Error is the concrete error type returned by this package and by the streaming operations.
type Error struct {
	Kind ErrorKind

	// Device where the error happened, nil if the error is not device specific.
	Device *Device

	// Status is the OpenCL status code for ErrDeviceRuntime errors, or 0.
	Status int

	Msg   string
	cause error
}

// Errorf creates an error of the given kind, with a stack trace.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// Wrapf creates an error of the given kind caused by err.
func Wrapf(kind ErrorKind, err error, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: err, Status: statusOrZero(err)})
}

// DeviceErrorf creates an ErrDeviceRuntime error for device, caused by err (which may be nil).
// The OpenCL status code is taken from err.
func DeviceErrorf(device *Device, err error, format string, args ...any) error {
	return errors.WithStack(&Error{
		Kind:   ErrDeviceRuntime,
		Device: device,
		Status: statusOrZero(err),
		Msg:    fmt.Sprintf(format, args...),
		cause:  err,
	})
}

func statusOrZero(err error) int {
	var statusErr *StatusError
	if err != nil && errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return StatusSuccess
}

// Error implements error.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Device != nil {
		fmt.Fprintf(&sb, " on device %s", e.Device)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Is reports whether target is the ErrorKind of e.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Unwrap returns the cause of the error.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the ErrorKind of err, or 0 if err is not (or doesn't wrap) an *Error.
func KindOf(err error) ErrorKind {
	var oclErr *Error
	if errors.As(err, &oclErr) {
		return oclErr.Kind
	}
	return 0
}

// DeviceOf returns the device embedded in err, or nil.
func DeviceOf(err error) *Device {
	var oclErr *Error
	if errors.As(err, &oclErr) {
		return oclErr.Device
	}
	return nil
}
