package balance_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/gomlx/sgstream/balance"
	"github.com/gomlx/sgstream/ocl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func testDevices(n int) []*ocl.Device {
	devices := make([]*ocl.Device, n)
	for ii := range devices {
		devices[ii] = &ocl.Device{Index: ii, PlatformName: "test", DeviceName: fmt.Sprintf("device-%d", ii)}
	}
	return devices
}

func drain(q *balance.QueueLoadBalancer) []balance.Segment {
	var segments []balance.Segment
	for {
		segment, ok := q.NextSegment()
		if !ok {
			return segments
		}
		segments = append(segments, segment)
	}
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, 0, balance.RoundUp(0, 8))
	assert.Equal(t, 8, balance.RoundUp(1, 8))
	assert.Equal(t, 8, balance.RoundUp(8, 8))
	assert.Equal(t, 16, balance.RoundUp(9, 8))
}

func TestQueueLoadBalancer(t *testing.T) {
	q, err := balance.NewQueueLoadBalancer(100, 0, 250, 10)
	require.NoError(t, err)
	segments := drain(q)
	assert.Equal(t, []balance.Segment{{0, 100}, {100, 200}, {200, 250}}, segments)

	// Exhausted until reset.
	_, ok := q.NextSegment()
	assert.False(t, ok)
	q.Reset()
	assert.Equal(t, segments, drain(q))

	// Schedule size and end are rounded up to the block size.
	require.NoError(t, q.Initialize(30, 16, 60, 16))
	assert.Equal(t, 32, q.ScheduleSize())
	assert.Equal(t, balance.Segment{Start: 16, End: 64}, q.Range())
	assert.Equal(t, []balance.Segment{{16, 48}, {48, 64}}, drain(q))

	// Zero schedule size means one block at a time.
	require.NoError(t, q.Initialize(0, 0, 3, 1))
	assert.Equal(t, []balance.Segment{{0, 1}, {1, 2}, {2, 3}}, drain(q))

	// Per call schedule sizes.
	require.NoError(t, q.Initialize(8, 0, 40, 4))
	segment, ok := q.NextSegmentSized(5)
	require.True(t, ok)
	assert.Equal(t, balance.Segment{Start: 0, End: 8}, segment)
	segment, _ = q.NextSegmentSized(0)
	assert.Equal(t, balance.Segment{Start: 8, End: 16}, segment)
	segment, _ = q.NextSegmentSized(100)
	assert.Equal(t, balance.Segment{Start: 16, End: 40}, segment)
	_, ok = q.NextSegmentSized(4)
	assert.False(t, ok)

	// Empty range.
	require.NoError(t, q.Initialize(10, 5, 5, 1))
	assert.Empty(t, drain(q))
}

func TestQueueLoadBalancerErrors(t *testing.T) {
	_, err := balance.NewQueueLoadBalancer(100, 0, 250, 0)
	require.ErrorIs(t, err, ocl.ErrInputSize)
	fmt.Printf("\texpected error: %v\n", err)
	_, err = balance.NewQueueLoadBalancer(100, 10, 5, 1)
	require.ErrorIs(t, err, ocl.ErrInputSize)
}

func TestQueueLoadBalancerConcurrent(t *testing.T) {
	const (
		numWorkers = 8
		blockSize  = 4
		end        = 10_000
	)
	q, err := balance.NewQueueLoadBalancer(blockSize*3, 0, end, blockSize)
	require.NoError(t, err)
	var (
		mu       sync.Mutex
		segments []balance.Segment
		wg       sync.WaitGroup
	)
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				segment, ok := q.NextSegment()
				if !ok {
					return
				}
				mu.Lock()
				segments = append(segments, segment)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Segments must tile [0, end) exactly once.
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	cursor := 0
	for _, segment := range segments {
		require.Equal(t, cursor, segment.Start)
		require.Zero(t, segment.Len()%blockSize)
		cursor = segment.End
	}
	require.Equal(t, end, cursor)
}

func TestLinearLoadBalancerUniform(t *testing.T) {
	l, err := balance.NewLinearLoadBalancer(testDevices(4))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, l.Partitions())
	segments, err := l.PartitionSegments(0, 400, 10)
	require.NoError(t, err)
	assert.Equal(t, []balance.Segment{{0, 100}, {100, 200}, {200, 300}, {300, 400}}, segments)

	// Equal throughput keeps the partitions.
	require.NoError(t, l.Update([]float64{1, 1, 1, 1}))
	for _, p := range l.Partitions() {
		assert.InDelta(t, 0.25, p, 1e-12)
	}

	_, err = balance.NewLinearLoadBalancer(nil)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
}

func TestLinearLoadBalancerSlowDevice(t *testing.T) {
	const slowdown = 3.0
	l, err := balance.NewLinearLoadBalancer(testDevices(2))
	require.NoError(t, err)

	// Device #1 takes slowdown times longer for the same amount of work.
	for iteration := range 3 {
		partitions := l.Partitions()
		require.NoError(t, l.Update([]float64{partitions[0], partitions[1] * slowdown}))
		fmt.Printf("\titeration %d: partitions=%v\n", iteration, l.Partitions())
	}
	partitions := l.Partitions()
	assert.InDelta(t, 0.75, partitions[0], 1e-9)
	assert.InDelta(t, 0.25, partitions[1], 1e-9)
	assert.InDelta(t, 1.0, partitions[0]+partitions[1], 1e-12)
	weights := l.Weights()
	assert.InDelta(t, slowdown*weights[0], weights[1], 1e-9)

	segments, err := l.PartitionSegments(0, 1000, 10)
	require.NoError(t, err)
	assert.Equal(t, []balance.Segment{{0, 750}, {750, 1000}}, segments)
}

func TestLinearLoadBalancerRoundsSharesUp(t *testing.T) {
	l, err := balance.NewLinearLoadBalancer(testDevices(2))
	require.NoError(t, err)
	require.NoError(t, l.Update([]float64{0.8995, 0.1005}))
	require.InDelta(t, 0.1005, l.Partitions()[0], 1e-12)

	// 0.1005 * 640 = 64.32 items: the first device needs a second block of 64.
	segments, err := l.PartitionSegments(0, 640, 64)
	require.NoError(t, err)
	assert.Equal(t, []balance.Segment{{0, 128}, {128, 640}}, segments)

	// Exact shares are not bumped to the next block.
	require.NoError(t, l.Update([]float64{0.1005, 0.8995}))
	require.InDelta(t, 0.5, l.Partitions()[0], 1e-12)
	segments, err = l.PartitionSegments(0, 640, 64)
	require.NoError(t, err)
	assert.Equal(t, []balance.Segment{{0, 320}, {320, 640}}, segments)
}

func TestLinearLoadBalancerCoverage(t *testing.T) {
	l, err := balance.NewLinearLoadBalancer(testDevices(3))
	require.NoError(t, err)
	require.NoError(t, l.Update([]float64{0.1, 0.7, 0.3}))
	for _, blockSize := range []int{1, 7, 64} {
		end := 50 * blockSize
		segments, err := l.PartitionSegments(0, end, blockSize)
		require.NoError(t, err)
		require.Len(t, segments, 3)
		cursor := 0
		for ii, segment := range segments {
			require.Equal(t, cursor, segment.Start, "segment #%d", ii)
			require.GreaterOrEqual(t, segment.End, segment.Start)
			if ii < len(segments)-1 {
				require.Zero(t, segment.Len()%blockSize)
			}
			cursor = segment.End
		}
		require.Equal(t, end, cursor)
	}
}

func TestLinearLoadBalancerDegenerate(t *testing.T) {
	l, err := balance.NewLinearLoadBalancer(testDevices(2))
	require.NoError(t, err)
	require.NoError(t, l.Update([]float64{1, 3}))
	want := l.Partitions()

	// A device reporting no time would get everything: keep the last meaningful partitions instead.
	require.NoError(t, l.Update([]float64{0, 1}))
	assert.Equal(t, want, l.Partitions())

	err = l.Update([]float64{1})
	require.ErrorIs(t, err, ocl.ErrInputSize)
	_, err = l.PartitionSegments(0, 15, 10)
	require.ErrorIs(t, err, ocl.ErrInputSize)
	_, err = l.PartitionSegments(0, 10, 0)
	require.ErrorIs(t, err, ocl.ErrInputSize)
}
