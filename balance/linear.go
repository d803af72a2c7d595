package balance

import (
	"math"
	"slices"

	"github.com/gomlx/sgstream/ocl"
	"k8s.io/klog/v2"
)

// partitionEpsilon absorbs floating point noise in a share before it is rounded up to whole items.
const partitionEpsilon = 1e-6

// LinearLoadBalancer splits ranges among devices proportionally to their measured throughput.
//
// Partitions start uniform and are only changed by Update. It is not safe for concurrent use.
type LinearLoadBalancer struct {
	devices        []*ocl.Device
	weights        []float64
	partitions     []float64
	lastMeaningful []float64
}

// NewLinearLoadBalancer creates a balancer for devices, in the given (enumeration) order.
// The last device always absorbs the remainder of a partition.
func NewLinearLoadBalancer(devices []*ocl.Device) (*LinearLoadBalancer, error) {
	n := len(devices)
	if n == 0 {
		return nil, ocl.Errorf(ocl.ErrConfiguration, "LinearLoadBalancer requires at least one device")
	}
	l := &LinearLoadBalancer{
		devices:        devices,
		weights:        make([]float64, n),
		partitions:     make([]float64, n),
		lastMeaningful: make([]float64, n),
	}
	for ii := range n {
		l.partitions[ii] = 1.0 / float64(n)
		l.lastMeaningful[ii] = l.partitions[ii]
	}
	return l, nil
}

// Partitions returns a copy of the current fractions of work per device.
func (l *LinearLoadBalancer) Partitions() []float64 {
	return slices.Clone(l.partitions)
}

// Weights returns a copy of the weights computed by the last Update: seconds a device would take
// to process the whole range alone.
func (l *LinearLoadBalancer) Weights() []float64 {
	return slices.Clone(l.weights)
}

// Update recomputes the partitions from the time (in seconds) each device took to process its
// current partition.
//
// If the aggregate throughput is degenerate (a device reported no time, or the times are not
// finite) the last meaningful partitions are kept.
func (l *LinearLoadBalancer) Update(timings []float64) error {
	if len(timings) != len(l.devices) {
		return ocl.Errorf(ocl.ErrInputSize, "LinearLoadBalancer.Update: got %d timings for %d devices",
			len(timings), len(l.devices))
	}
	var inverseSum float64
	for ii, timing := range timings {
		l.weights[ii] = timing / l.partitions[ii]
		inverseSum += 1.0 / l.weights[ii]
	}
	total := 1.0 / inverseSum
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		klog.V(1).Infof("LinearLoadBalancer: degenerate timings %v, keeping partitions %v", timings, l.lastMeaningful)
		copy(l.partitions, l.lastMeaningful)
		return nil
	}
	for ii, weight := range l.weights {
		l.partitions[ii] = total / weight
	}
	copy(l.lastMeaningful, l.partitions)
	if klog.V(2).Enabled() {
		klog.Infof("LinearLoadBalancer: timings %v, new partitions %v", timings, l.partitions)
	}
	return nil
}

// PartitionSegments splits [start, end) into one contiguous segment per device, each sized to
// the device's partition rounded up to blockSize, in device order. The last device gets the
// remainder, so the segments exactly cover the range. Devices may get empty segments.
//
// It fails with an ocl.ErrInputSize error if blockSize is not positive or end-start is not a
// multiple of it.
func (l *LinearLoadBalancer) PartitionSegments(start, end, blockSize int) ([]Segment, error) {
	if blockSize <= 0 {
		return nil, ocl.Errorf(ocl.ErrInputSize, "LinearLoadBalancer: blockSize must be positive, got %d", blockSize)
	}
	if end < start || (end-start)%blockSize != 0 {
		return nil, ocl.Errorf(ocl.ErrInputSize, "LinearLoadBalancer: range [%d, %d) is not divisible in blocks of %d",
			start, end, blockSize)
	}
	total := end - start
	segments := make([]Segment, len(l.devices))
	cursor := start
	last := len(l.devices) - 1
	for ii := range l.devices {
		if ii == last {
			segments[ii] = Segment{Start: cursor, End: end}
			break
		}
		size := RoundUp(int(math.Ceil(l.partitions[ii]*float64(total)-partitionEpsilon)), blockSize)
		segmentEnd := min(cursor+size, end)
		segments[ii] = Segment{Start: cursor, End: segmentEnd}
		cursor = segmentEnd
	}
	return segments, nil
}
