package balance

import (
	"sync"

	"github.com/gomlx/sgstream/ocl"
)

// QueueLoadBalancer hands out consecutive segments of a range to concurrent consumers.
//
// The schedule size is rounded up to a multiple of the block size, and the end of the range is
// rounded up so the range is a whole number of blocks. Segments are contiguous, don't overlap,
// and together cover the (rounded) range exactly once per Reset.
type QueueLoadBalancer struct {
	mu           sync.Mutex
	start, end   int
	cursor       int
	scheduleSize int
	blockSize    int
}

// NewQueueLoadBalancer creates a dispenser for [start, end).
//
// It fails with an ocl.ErrInputSize error if blockSize is not positive or end < start.
func NewQueueLoadBalancer(scheduleSize, start, end, blockSize int) (*QueueLoadBalancer, error) {
	q := &QueueLoadBalancer{}
	if err := q.Initialize(scheduleSize, start, end, blockSize); err != nil {
		return nil, err
	}
	return q, nil
}

// Initialize re-arms the dispenser with a new range, see NewQueueLoadBalancer.
func (q *QueueLoadBalancer) Initialize(scheduleSize, start, end, blockSize int) error {
	if blockSize <= 0 {
		return ocl.Errorf(ocl.ErrInputSize, "QueueLoadBalancer: blockSize must be positive, got %d", blockSize)
	}
	if end < start || start < 0 {
		return ocl.Errorf(ocl.ErrInputSize, "QueueLoadBalancer: invalid range [%d, %d)", start, end)
	}
	if scheduleSize < 0 {
		return ocl.Errorf(ocl.ErrInputSize, "QueueLoadBalancer: scheduleSize must not be negative, got %d", scheduleSize)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blockSize = blockSize
	q.scheduleSize = max(RoundUp(scheduleSize, blockSize), blockSize)
	q.start = start
	q.end = start + RoundUp(end-start, blockSize)
	q.cursor = start
	return nil
}

// NextSegment returns the next segment, or false if the range is exhausted.
// It is safe for concurrent use.
func (q *QueueLoadBalancer) NextSegment() (segment Segment, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextLocked(q.scheduleSize)
}

// NextSegmentSized is like NextSegment, but the segment holds up to scheduleSize indices (rounded
// up to the block size) instead of the dispenser's schedule size. It lets devices sharing a
// dispenser take differently sized segments. A non-positive scheduleSize uses the dispenser's.
func (q *QueueLoadBalancer) NextSegmentSized(scheduleSize int) (segment Segment, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if scheduleSize <= 0 {
		scheduleSize = q.scheduleSize
	} else {
		scheduleSize = RoundUp(scheduleSize, q.blockSize)
	}
	return q.nextLocked(scheduleSize)
}

func (q *QueueLoadBalancer) nextLocked(scheduleSize int) (segment Segment, ok bool) {
	if q.cursor >= q.end {
		return Segment{}, false
	}
	segment = Segment{Start: q.cursor, End: min(q.cursor+scheduleSize, q.end)}
	q.cursor = segment.End
	return segment, true
}

// Reset restores the cursor to the start of the range.
func (q *QueueLoadBalancer) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cursor = q.start
}

// ScheduleSize returns the schedule size after rounding.
func (q *QueueLoadBalancer) ScheduleSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.scheduleSize
}

// Range returns the range after rounding.
func (q *QueueLoadBalancer) Range() Segment {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Segment{Start: q.start, End: q.end}
}
