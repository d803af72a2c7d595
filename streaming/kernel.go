package streaming

import (
	"time"

	"github.com/gomlx/sgstream/balance"
	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
)

// SegmentSource hands out the segments an executor processes. It is implemented by
// balance.QueueLoadBalancer, and by StaticSegment for the static partitions.
type SegmentSource interface {
	NextSegment() (segment balance.Segment, ok bool)
}

// StaticSegment is a SegmentSource returning one fixed segment once.
type StaticSegment struct {
	segment balance.Segment
	done    bool
}

// NewStaticSegment returns a SegmentSource for the single segment [start, end). An empty segment
// yields nothing.
func NewStaticSegment(start, end int) *StaticSegment {
	return &StaticSegment{segment: balance.Segment{Start: start, End: end}, done: end <= start}
}

// NextSegment implements SegmentSource.
func (s *StaticSegment) NextSegment() (balance.Segment, bool) {
	if s.done {
		return balance.Segment{}, false
	}
	s.done = true
	return s.segment, true
}

// executor holds what KernelMult and KernelMultTranspose have in common: the lazily built kernel
// and the timing accounting.
type executor[T dtypes.Float] struct {
	device      *ocl.Device
	deviceIndex int
	manager     *ocl.Manager
	params      *config.Kernel
	dims        int
	entryPoint  string

	kernel        *ocl.Kernel
	buildDuration time.Duration
	deviceNanos   uint64
	segments      int
}

// build compiles the kernel if not built yet.
func (e *executor[T]) build(generateSource func() (string, error)) error {
	if e.kernel.IsValid() {
		return nil
	}
	start := time.Now()
	source, err := generateSource()
	if err != nil {
		return err
	}
	e.kernel, err = e.manager.BuildKernel(source, e.device, e.params, e.entryPoint)
	if err != nil {
		return err
	}
	e.buildDuration = time.Since(start)
	return nil
}

// Device the executor runs on.
func (e *executor[T]) Device() *ocl.Device {
	return e.device
}

// BuildDuration is the time spent generating and compiling the kernel, zero until it is built.
func (e *executor[T]) BuildDuration() time.Duration {
	return e.buildDuration
}

// DeviceTime is the device execution time of the last call, as profiled by the command queue.
func (e *executor[T]) DeviceTime() time.Duration {
	return time.Duration(e.deviceNanos)
}

// Segments is the number of segments processed by the last call.
func (e *executor[T]) Segments() int {
	return e.segments
}

func (e *executor[T]) releaseKernel() error {
	err := e.kernel.Release()
	e.kernel = nil
	return err
}
