package ocl_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/ocl"
	"github.com/gomlx/sgstream/ocl/host"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func must(err error) {
	if err != nil {
		klog.Errorf("Failed with error: %+v", err)
		panic(err)
	}
}

func must1[T any](value T, err error) T {
	must(err)
	return value
}

func testBackend() *host.Backend {
	return host.New(
		host.PlatformSpec{Name: "alpha", Devices: []host.DeviceSpec{
			{Name: "gpu", Type: ocl.DeviceTypeGPU},
			{Name: "cpu", Type: ocl.DeviceTypeCPU},
		}},
		host.PlatformSpec{Name: "beta", Devices: []host.DeviceSpec{
			{Name: "gpu", Type: ocl.DeviceTypeGPU},
		}},
	)
}

func deviceNames(m *ocl.Manager) []string {
	var names []string
	for _, d := range m.Devices() {
		names = append(names, d.PlatformName+"/"+d.DeviceName)
	}
	return names
}

func TestManagerSelection(t *testing.T) {
	index := func(i int) *int { return &i }
	testCases := []struct {
		name   string
		params config.Parameters
		want   []string
	}{
		{"all", config.Parameters{}, []string{"alpha/gpu", "alpha/cpu", "beta/gpu"}},
		{"first", config.Parameters{Platform: "first"}, []string{"alpha/gpu", "alpha/cpu"}},
		{"by name", config.Parameters{Platform: "beta"}, []string{"beta/gpu"}},
		{"gpu only", config.Parameters{DeviceType: "gpu"}, []string{"alpha/gpu", "beta/gpu"}},
		{"max devices", config.Parameters{MaxDevices: 2}, []string{"alpha/gpu", "alpha/cpu"}},
		{"specific device", config.Parameters{SelectSpecificDevice: index(2)}, []string{"beta/gpu"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ocl.NewManager(testBackend(), &tc.params)
			require.NoError(t, err)
			defer func() { require.NoError(t, m.Release()) }()
			assert.Equal(t, tc.want, deviceNames(m))
			for ii, d := range m.Devices() {
				assert.Equal(t, ii, d.Index)
			}
		})
	}

	_, err := ocl.NewManager(testBackend(), &config.Parameters{Platform: "gamma"})
	require.ErrorIs(t, err, ocl.ErrConfiguration)
	fmt.Printf("\texpected error: %v\n", err)
	_, err = ocl.NewManager(testBackend(), &config.Parameters{SelectSpecificDevice: index(3)})
	require.ErrorIs(t, err, ocl.ErrConfiguration)
	_, err = ocl.NewManager(testBackend(), &config.Parameters{DeviceType: "accelerator"})
	require.ErrorIs(t, err, ocl.ErrConfiguration)
	_, err = ocl.NewManager(host.New(), nil)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
}

func TestManagerBuildOptions(t *testing.T) {
	m := must1(ocl.NewManager(testBackend(), &config.Parameters{OptimizationFlags: "-cl-mad-enable"}))
	assert.Equal(t, "-cl-mad-enable", m.BuildOptions())
	disabled := false
	m = must1(ocl.NewManager(testBackend(), &config.Parameters{EnableOptimizations: &disabled, OptimizationFlags: "-cl-mad-enable"}))
	assert.Equal(t, "-cl-opt-disable", m.BuildOptions())
	assert.Len(t, m.DeviceKeys(), 3)
	assert.Equal(t, config.DeviceKey{Platform: "alpha", Device: "cpu"}, m.DeviceKeys()[1])
}

func TestErrors(t *testing.T) {
	device := &ocl.Device{Index: 1, DeviceName: "gpu", PlatformName: "alpha"}
	cause := ocl.StatusErrorf(ocl.StatusOutOfResources, "launch failed")
	err := ocl.DeviceErrorf(device, cause, "kernel %q failed", "multOCLMask")
	require.ErrorIs(t, err, ocl.ErrDeviceRuntime)
	require.NotErrorIs(t, err, ocl.ErrBufferState)
	assert.Equal(t, ocl.ErrDeviceRuntime, ocl.KindOf(err))
	assert.Same(t, device, ocl.DeviceOf(err))
	assert.Equal(t, ocl.StatusOutOfResources, ocl.StatusOf(err))
	assert.Contains(t, err.Error(), `"gpu"`)
	assert.Contains(t, err.Error(), "multOCLMask")

	err = errors.WithMessage(ocl.Errorf(ocl.ErrInputSize, "blockSize is 0"), "creating dispenser")
	require.ErrorIs(t, err, ocl.ErrInputSize)
	assert.Nil(t, ocl.DeviceOf(err))
	assert.Equal(t, ocl.ErrorKind(0), ocl.KindOf(errors.New("other")))

	err = ocl.Wrapf(ocl.ErrConfiguration, errors.New("LOCAL_SIZE must be positive"), "device %d", 0)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
	assert.Contains(t, err.Error(), "LOCAL_SIZE")
}

func TestKernelRelease(t *testing.T) {
	m := must1(ocl.NewManager(host.NewDefault(1), nil))
	device := m.Devices()[0]
	before := ocl.KernelsAlive()
	k, err := m.BuildKernel(testCopySource, device, config.DefaultKernel(), "oclTestCopy")
	require.NoError(t, err)
	assert.Equal(t, before+1, ocl.KernelsAlive())
	assert.Equal(t, "oclTestCopy", k.EntryPoint())
	require.NoError(t, k.Release())
	require.NoError(t, k.Release(), "second release is a no-op")
	assert.Equal(t, before, ocl.KernelsAlive())
	require.ErrorIs(t, k.SetArgs(int32(1)), ocl.ErrBufferState)

	_, err = m.BuildKernel(testCopySource, device, nil, "missingKernel")
	require.ErrorIs(t, err, ocl.ErrDeviceRuntime)
	assert.Same(t, device, ocl.DeviceOf(err))

	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
	_, err = m.BuildKernel(testCopySource, device, nil, "oclTestCopy")
	require.Error(t, err)
}

func TestManagerConcurrentRelease(t *testing.T) {
	m := must1(ocl.NewManager(host.NewDefault(2), nil))
	const numBuilds = 16
	var wg sync.WaitGroup
	kernels := make([]*ocl.Kernel, numBuilds)
	errs := make([]error, numBuilds)
	for ii := range numBuilds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			device := m.Devices()[ii%2]
			kernels[ii], errs[ii] = m.BuildKernel(testCopySource, device, nil, "oclTestCopy")
		}()
	}
	require.NoError(t, m.Release())
	wg.Wait()
	for ii := range numBuilds {
		if errs[ii] != nil {
			assert.Contains(t, errs[ii].Error(), "called after Release")
			continue
		}
		require.NoError(t, kernels[ii].Release())
	}
	_, err := m.BuildKernel(testCopySource, m.Devices()[0], nil, "oclTestCopy")
	require.Error(t, err)
}
