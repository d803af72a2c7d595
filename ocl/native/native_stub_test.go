//go:build !opencl

package native

import (
	"testing"

	"github.com/gomlx/sgstream/ocl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotAvailable(t *testing.T) {
	assert.False(t, Available)
	_, err := New()
	require.ErrorIs(t, err, ocl.ErrConfiguration)

	// The zero Backend fails cleanly if used anyway.
	b := &Backend{}
	_, err = b.Platforms()
	require.Error(t, err)
	assert.Equal(t, ocl.StatusPlatformNotFoundKHR, ocl.StatusOf(err))
	_, err = ocl.NewManager(b, nil)
	require.ErrorIs(t, err, ocl.ErrDeviceRuntime)
}
