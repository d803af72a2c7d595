package host

import (
	"sync"

	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
)

// Launch is one execution of a kernel over a one-dimensional ND-range.
type Launch struct {
	Global, Local int
	Args          []any

	parallelism int
}

// Groups returns the number of work-groups.
func (l *Launch) Groups() int {
	return l.Global / l.Local
}

// ForEachGroup calls fn for every work-group index, running groups in parallel.
// Work-groups must write disjoint locations.
func (l *Launch) ForEachGroup(fn func(group int)) {
	n := l.Groups()
	workers := min(l.parallelism, n)
	if workers <= 1 {
		for group := range n {
			fn(group)
		}
		return
	}
	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for group := s; group < e; group++ {
				fn(group)
			}
		}(start, end)
	}
	wg.Wait()
}

// Buffer returns argument index, which must be a buffer, as a slice of T sharing its memory.
func Buffer[T dtypes.Float](l *Launch, index int) ([]T, error) {
	if index < 0 || index >= len(l.Args) {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidArgIndex, "host: kernel argument #%d not set", index)
	}
	m, ok := l.Args[index].(*memory)
	if !ok {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidArgValue, "host: kernel argument #%d is a %T, not a buffer", index, l.Args[index])
	}
	return dtypes.FromRaw[T](m.data), nil
}

// Scalar returns argument index, which must be an int32 or uint32, as an int.
func (l *Launch) Scalar(index int) (int, error) {
	if index < 0 || index >= len(l.Args) {
		return 0, ocl.StatusErrorf(ocl.StatusInvalidArgIndex, "host: kernel argument #%d not set", index)
	}
	switch v := l.Args[index].(type) {
	case int32:
		return int(v), nil
	case uint32:
		return int(v), nil
	}
	return 0, ocl.StatusErrorf(ocl.StatusInvalidArgValue, "host: kernel argument #%d is a %T, not a scalar", index, l.Args[index])
}
