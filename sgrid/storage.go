// Package sgrid holds the sparse grid pieces the streaming operations work on: the grid storage,
// the dataset matrix and a plain (non-accelerated) evaluation of the modified linear basis used as
// reference.
package sgrid

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Storage is the list of points of a sparse grid. Each point has a (level, index) pair per
// dimension, with level >= 1 and index odd in [1, 2^level-1].
type Storage struct {
	dims    int
	levels  []int
	indices []int
	lookup  map[string]int
}

// NewStorage returns an empty grid of the given dimension.
func NewStorage(dims int) *Storage {
	return &Storage{dims: dims, lookup: make(map[string]int)}
}

// Dims returns the dimension of the grid.
func (s *Storage) Dims() int {
	return s.dims
}

// Size returns the number of grid points.
func (s *Storage) Size() int {
	if s.dims == 0 {
		return 0
	}
	return len(s.levels) / s.dims
}

func pointKey(levels, indices []int) string {
	return fmt.Sprint(levels, indices)
}

// Insert adds a point and returns its position in the storage. Inserting a point already in
// the grid returns its existing position.
func (s *Storage) Insert(levels, indices []int) (int, error) {
	if len(levels) != s.dims || len(indices) != s.dims {
		return 0, errors.Errorf("sgrid.Storage.Insert: grid has %d dimensions, got %d levels and %d indices",
			s.dims, len(levels), len(indices))
	}
	for d := range s.dims {
		level, index := levels[d], indices[d]
		if level < 1 || level > 30 {
			return 0, errors.Errorf("sgrid.Storage.Insert: invalid level %d in dimension %d", level, d)
		}
		if index < 1 || index >= 1<<level || index%2 == 0 {
			return 0, errors.Errorf("sgrid.Storage.Insert: invalid index %d for level %d in dimension %d", index, level, d)
		}
	}
	key := pointKey(levels, indices)
	if position, found := s.lookup[key]; found {
		return position, nil
	}
	position := s.Size()
	s.levels = append(s.levels, levels...)
	s.indices = append(s.indices, indices...)
	s.lookup[key] = position
	return position, nil
}

// Get returns the level and index of a grid point in dimension dim.
func (s *Storage) Get(point, dim int) (level, index int) {
	offset := point*s.dims + dim
	return s.levels[offset], s.indices[offset]
}

// Point returns copies of the levels and indices of a grid point.
func (s *Storage) Point(point int) (levels, indices []int) {
	start := point * s.dims
	return slices.Clone(s.levels[start : start+s.dims]), slices.Clone(s.indices[start : start+s.dims])
}

// Contains returns whether the point is in the grid.
func (s *Storage) Contains(levels, indices []int) bool {
	_, found := s.lookup[pointKey(levels, indices)]
	return found
}

// RegularGrid returns the regular sparse grid of the given level: all points whose levels
// sum to at most level+dims-1.
func RegularGrid(dims, level int) (*Storage, error) {
	if dims <= 0 || level <= 0 {
		return nil, errors.Errorf("sgrid.RegularGrid: dims and level must be positive, got dims=%d level=%d", dims, level)
	}
	s := NewStorage(dims)
	levels := make([]int, dims)
	indices := make([]int, dims)
	maxLevelSum := level + dims - 1
	var recurse func(dim, levelSum int) error
	recurse = func(dim, levelSum int) error {
		if dim == dims {
			return recurseIndices(s, levels, indices, 0)
		}
		for l := 1; levelSum+l+(dims-dim-1) <= maxLevelSum; l++ {
			levels[dim] = l
			if err := recurse(dim+1, levelSum+l); err != nil {
				return err
			}
		}
		return nil
	}
	if err := recurse(0, 0); err != nil {
		return nil, err
	}
	return s, nil
}

func recurseIndices(s *Storage, levels, indices []int, dim int) error {
	if dim == len(levels) {
		_, err := s.Insert(levels, indices)
		return err
	}
	for index := 1; index < 1<<levels[dim]; index += 2 {
		indices[dim] = index
		if err := recurseIndices(s, levels, indices, dim+1); err != nil {
			return err
		}
	}
	return nil
}

// Refine adds the hierarchical children (level+1, 2*index±1) of a point in every dimension,
// and returns the number of points added.
func (s *Storage) Refine(point int) (int, error) {
	if point < 0 || point >= s.Size() {
		return 0, errors.Errorf("sgrid.Storage.Refine: point %d out of range [0, %d)", point, s.Size())
	}
	levels, indices := s.Point(point)
	added := 0
	for d := range s.dims {
		for _, childIndex := range []int{2*indices[d] - 1, 2*indices[d] + 1} {
			childLevels, childIndices := slices.Clone(levels), slices.Clone(indices)
			childLevels[d]++
			childIndices[d] = childIndex
			if s.Contains(childLevels, childIndices) {
				continue
			}
			if _, err := s.Insert(childLevels, childIndices); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}
