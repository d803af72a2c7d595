package native

import (
	"testing"

	"github.com/gomlx/sgstream/ocl"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStatus(t *testing.T) {
	err := withStatus(ocl.StatusMemObjectAllocationFailure, ocl.StatusOutOfResources,
		errors.New("cl: Mem Object Allocation Failure"), "failed to allocate %d bytes", 1024)
	require.Error(t, err)
	assert.Equal(t, ocl.StatusMemObjectAllocationFailure, ocl.StatusOf(err))
	assert.Contains(t, err.Error(), "failed to allocate 1024 bytes: cl: Mem Object Allocation Failure")

	// Errors without a known status get the fallback.
	err = withStatus(1, ocl.StatusOutOfResources, errors.New("cl: unknown"), "failed to enqueue kernel %q", "multOCLMask")
	assert.Equal(t, ocl.StatusOutOfResources, ocl.StatusOf(err))

	// Device errors built by the Manager keep the status.
	device := &ocl.Device{Index: 1, PlatformName: "p", DeviceName: "d"}
	wrapped := ocl.DeviceErrorf(device, err, "Mult failed")
	require.ErrorIs(t, wrapped, ocl.ErrDeviceRuntime)
	assert.Equal(t, ocl.StatusOutOfResources, ocl.StatusOf(wrapped))
}
