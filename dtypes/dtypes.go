// Package dtypes defines the floating point precisions kernels are generated and executed with,
// along with the OpenCL C spellings that go with each one.
package dtypes

import (
	"math"
	"strings"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Precision of the values streamed to the devices and of the arithmetic in the generated kernels.
type Precision int

//go:generate go tool enumer -type=Precision -transform=lower -text dtypes.go

const (
	InvalidPrecision Precision = iota
	Float32
	Float64
)

// Float is the constraint for the Go types that can back a Precision.
type Float interface {
	~float32 | ~float64
}

// FromGenericsType returns the Precision for the generic type T.
func FromGenericsType[T Float]() Precision {
	var v T
	switch any(v).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	}
	// Named types (~float32, ~float64): fall back to size.
	if unsafe.Sizeof(v) == 4 {
		return Float32
	}
	return Float64
}

// ParsePrecision accepts the enum names ("float32", "float64") and the OpenCL C spellings
// ("float", "double").
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(s) {
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	}
	p, err := PrecisionString(s)
	if err != nil || p == InvalidPrecision {
		return InvalidPrecision, errors.Errorf("unknown precision %q, valid values are float32, float64, float or double", s)
	}
	return p, nil
}

// Size in bytes of one element.
func (p Precision) Size() int {
	switch p {
	case Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// FloatType is the OpenCL C floating point type name.
func (p Precision) FloatType() string {
	if p == Float64 {
		return "double"
	}
	return "float"
}

// IntType is the OpenCL C integer type of the same width as FloatType, used for bit reinterpretation.
func (p Precision) IntType() string {
	if p == Float64 {
		return "long"
	}
	return "int"
}

// ConstSuffix is appended to floating point literals so they don't get promoted to double.
func (p Precision) ConstSuffix() string {
	if p == Float64 {
		return ""
	}
	return "f"
}

// SignMask returns the value whose bit pattern has only the sign bit set.
func SignMask[T Float]() T {
	return T(math.Copysign(0, -1))
}

// OrBits returns the value whose bit pattern is the bitwise or of the bit patterns of a and b.
// It is the Go version of OpenCL's `as_float(as_int(a) | as_int(b))`.
func OrBits[T Float](a, b T) T {
	switch FromGenericsType[T]() {
	case Float32:
		return T(math32.Float32frombits(math32.Float32bits(float32(a)) | math32.Float32bits(float32(b))))
	default:
		return T(math.Float64frombits(math.Float64bits(float64(a)) | math.Float64bits(float64(b))))
	}
}

// ToRaw reinterprets a slice of T as its raw bytes, without copying.
func ToRaw[T Float](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var v T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*int(unsafe.Sizeof(v)))
}

// FromRaw reinterprets raw bytes as a slice of T, without copying.
// The length of raw must be a multiple of the size of T.
func FromRaw[T Float](raw []byte) []T {
	var v T
	size := int(unsafe.Sizeof(v))
	if len(raw) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), len(raw)/size)
}
