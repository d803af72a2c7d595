// Package balance distributes index ranges among devices.
//
// QueueLoadBalancer is a dynamic dispenser: devices repeatedly take the next fixed size segment
// until the range is exhausted, so faster devices naturally take more segments.
//
// LinearLoadBalancer is a static partitioner: each call splits the range in one contiguous
// segment per device, proportional to the throughput each device showed in the previous calls.
package balance

import (
	"fmt"
)

// Segment is the half-open index range [Start, End).
type Segment struct {
	Start, End int
}

// Len returns the number of indices in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// IsEmpty returns whether the segment has no indices.
func (s Segment) IsEmpty() bool {
	return s.End <= s.Start
}

// String implements fmt.Stringer.
func (s Segment) String() string {
	return fmt.Sprintf("[%d, %d)", s.Start, s.End)
}

// RoundUp returns the smallest multiple of multiple that is >= value.
// multiple must be positive.
func RoundUp(value, multiple int) int {
	if remainder := value % multiple; remainder != 0 {
		return value + multiple - remainder
	}
	return value
}
