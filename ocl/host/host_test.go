package host

import (
	"fmt"
	"testing"

	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scaleSource = `
__kernel
__attribute__((reqd_work_group_size(4, 1, 1)))
void hostTestScale(__global float* ptrData, uint factor) {
	ptrData[get_global_id(0)] *= factor;
}
`

func init() {
	RegisterKernel("hostTestScale", func(program Program) (KernelFunc, error) {
		if program.Precision != dtypes.Float32 {
			return nil, errors.Errorf("only float supported")
		}
		return func(launch *Launch) error {
			data, err := Buffer[float32](launch, 0)
			if err != nil {
				return err
			}
			factor, err := launch.Scalar(1)
			if err != nil {
				return err
			}
			launch.ForEachGroup(func(group int) {
				for local := range launch.Local {
					data[group*launch.Local+local] *= float32(factor)
				}
			})
			return nil
		}, nil
	})
}

func TestPlatforms(t *testing.T) {
	b := New(
		PlatformSpec{Name: "p0", Devices: []DeviceSpec{{Name: "gpu0", Type: ocl.DeviceTypeGPU}, {Name: "cpu0"}}},
		PlatformSpec{Name: "p1", Devices: []DeviceSpec{{Name: "acc0", Type: ocl.DeviceTypeAccelerator}}},
	)
	platforms, err := b.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 2)
	assert.Equal(t, "p0", platforms[0].Name)
	assert.Equal(t, ocl.DeviceTypeGPU, platforms[0].Devices[0].Type)
	assert.Equal(t, ocl.DeviceTypeCPU, platforms[0].Devices[1].Type, "default device type")
	assert.Equal(t, "acc0", platforms[1].Devices[0].Name)

	_, err = b.OpenQueue(2, 0)
	require.Error(t, err)
	assert.Equal(t, ocl.StatusInvalidPlatform, ocl.StatusOf(err))
	_, err = b.OpenQueue(1, 1)
	assert.Equal(t, ocl.StatusInvalidDevice, ocl.StatusOf(err))
}

func TestLaunch(t *testing.T) {
	q, err := NewDefault(1).OpenQueue(0, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Release()) }()

	input := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	mem, err := q.CreateBuffer(len(input) * 4)
	require.NoError(t, err)
	require.NoError(t, q.WriteBuffer(mem, dtypes.ToRaw(input)))

	k, err := q.BuildKernel(scaleSource, "hostTestScale", "")
	require.NoError(t, err)
	require.NoError(t, q.SetKernelArg(k, 0, mem))
	require.NoError(t, q.SetKernelArg(k, 1, uint32(3)))

	// Work-group size is required to be 4.
	_, err = q.EnqueueNDRange(k, 8, 2)
	assert.Equal(t, ocl.StatusInvalidWorkGroupSize, ocl.StatusOf(err))
	_, err = q.EnqueueNDRange(k, 6, 4)
	assert.Equal(t, ocl.StatusInvalidWorkGroupSize, ocl.StatusOf(err))

	ev, err := q.EnqueueNDRange(k, 8, 4)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	start, end, err := ev.Profile()
	require.NoError(t, err)
	assert.LessOrEqual(t, start, end)
	require.NoError(t, ev.Release())

	output := make([]float32, len(input))
	require.NoError(t, q.ReadBuffer(mem, dtypes.ToRaw(output)))
	fmt.Printf("\toutput=%v\n", output)
	assert.Equal(t, []float32{3, 6, 9, 12, 15, 18, 21, 24}, output)

	require.NoError(t, q.ReleaseKernel(k))
	require.NoError(t, q.ReleaseBuffer(mem))
	assert.Equal(t, ocl.StatusInvalidMemObject, ocl.StatusOf(q.WriteBuffer(mem, dtypes.ToRaw(input))))
}

func TestBuildErrors(t *testing.T) {
	q, err := NewDefault(1).OpenQueue(0, 0)
	require.NoError(t, err)

	_, err = q.BuildKernel(scaleSource, "otherKernel", "")
	assert.Equal(t, ocl.StatusInvalidKernelName, ocl.StatusOf(err))

	_, err = q.BuildKernel("__kernel void notRegistered(__global float* p) {}", "notRegistered", "")
	assert.Equal(t, ocl.StatusInvalidKernelName, ocl.StatusOf(err))

	doubleSource := "#pragma OPENCL EXTENSION cl_khr_fp64 : enable\n" + scaleSource
	_, err = q.BuildKernel(doubleSource, "hostTestScale", "")
	assert.Equal(t, ocl.StatusBuildProgramFailure, ocl.StatusOf(err))

	k, err := q.BuildKernel(scaleSource, "hostTestScale", "")
	require.NoError(t, err)
	assert.Equal(t, ocl.StatusInvalidArgValue, ocl.StatusOf(q.SetKernelArg(k, 1, 3.0)))
	require.NoError(t, q.SetKernelArg(k, 1, uint32(3)))
	_, err = q.EnqueueNDRange(k, 4, 4)
	assert.Equal(t, ocl.StatusInvalidKernelArgs, ocl.StatusOf(err), "argument #0 not set")
}

func TestFaultInjectionAndTiming(t *testing.T) {
	b := New(PlatformSpec{Name: "p", Devices: []DeviceSpec{
		{Name: "slow", NanosPerWorkItem: 10, Slowdown: 2, FailAtLaunch: 2, MaxAllocBytes: 64},
	}})
	q, err := b.OpenQueue(0, 0)
	require.NoError(t, err)

	_, err = q.CreateBuffer(128)
	assert.Equal(t, ocl.StatusMemObjectAllocationFailure, ocl.StatusOf(err))
	mem, err := q.CreateBuffer(32)
	require.NoError(t, err)

	k, err := q.BuildKernel(scaleSource, "hostTestScale", "")
	require.NoError(t, err)
	require.NoError(t, q.SetKernelArg(k, 0, mem))
	require.NoError(t, q.SetKernelArg(k, 1, uint32(1)))

	ev, err := q.EnqueueNDRange(k, 8, 4)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	start, end, _ := ev.Profile()
	assert.Equal(t, uint64(160), end-start, "8 work-items x 10ns x slowdown 2")

	ev, err = q.EnqueueNDRange(k, 8, 4)
	require.NoError(t, err, "failures are reported at execution")
	err = ev.Wait()
	require.Error(t, err)
	assert.Equal(t, ocl.StatusOutOfResources, ocl.StatusOf(err))
}
