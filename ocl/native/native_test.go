//go:build opencl

package native

import (
	"testing"

	"github.com/gomlx/sgstream/ocl"
	"github.com/jgillich/go-opencl/cl"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusOfClErrors(t *testing.T) {
	assert.Equal(t, ocl.StatusOutOfResources, clStatus(cl.ErrOutOfResources))
	assert.Equal(t, ocl.StatusInvalidKernelName, clStatus(errors.Wrap(cl.ErrInvalidKernelName, "wrapped")))
	assert.Equal(t, -9999, clStatus(cl.ErrOther(-9999)))
	assert.Equal(t, ocl.StatusSuccess, clStatus(errors.New("not from cl")))

	err := statusErrorf(ocl.StatusOutOfResources, cl.ErrMemObjectAllocationFailure, "failed to allocate %d bytes", 16)
	assert.Equal(t, ocl.StatusMemObjectAllocationFailure, ocl.StatusOf(err))
	err = statusErrorf(ocl.StatusOutOfResources, errors.New("not from cl"), "failed to enqueue kernel")
	assert.Equal(t, ocl.StatusOutOfResources, ocl.StatusOf(err))
}
