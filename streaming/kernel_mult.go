package streaming

import (
	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// multInputs are the buffers shared by the KernelMult executors of all devices during a call.
type multInputs[T dtypes.Float] struct {
	level, index, mask, offset *ocl.ClonedBuffer[T]
	alpha                      *ocl.ClonedBuffer[T]

	// dataset is the padded row-major dataset.
	dataset []T

	// result holds one value per padded data point.
	result *ocl.StretchedBuffer[T]

	// startGrid, endGrid is the range of grid points summed over.
	startGrid, endGrid int
}

// KernelMult runs the mult kernel on one device over the data segments it is handed.
//
// It owns the device copy of the current data segment, and its kernel.
type KernelMult[T dtypes.Float] struct {
	executor[T]

	builder       *SourceBuilderMult[T]
	localSize     int
	dataBlockSize int
	verbose       bool

	deviceData *ocl.Buffer[T]
	// dataStart, dataEnd is the range of data points currently in deviceData.
	dataStart, dataEnd int
}

// NewKernelMult creates the executor for the device with position deviceIndex in the devices
// of the operation. It fails with an ocl.ErrConfiguration error for invalid parameters.
func NewKernelMult[T dtypes.Float](device *ocl.Device, deviceIndex, dims int, manager *ocl.Manager, params *config.Kernel) (*KernelMult[T], error) {
	builder, err := NewSourceBuilderMult[T](device, params, dims)
	if err != nil {
		return nil, err
	}
	return &KernelMult[T]{
		executor: executor[T]{
			device:      device,
			deviceIndex: deviceIndex,
			manager:     manager,
			params:      params,
			dims:        dims,
			entryPoint:  MultEntryPoint,
		},
		builder:       builder,
		localSize:     params.LocalSize,
		dataBlockSize: params.DataBlockSize,
		verbose:       params.Verbose,
		deviceData:    ocl.NewBuffer[T](device),
		dataStart:     -1,
		dataEnd:       -1,
	}, nil
}

// BlockSize is the number of data points processed by a work-group: segments must be multiples of it.
func (k *KernelMult[T]) BlockSize() int {
	return k.localSize * k.dataBlockSize
}

// ResetKernel forgets which data is on the device, so it is streamed again on the next call.
func (k *KernelMult[T]) ResetKernel() {
	k.dataStart, k.dataEnd = -1, -1
}

// Mult processes segments of data points until segments is exhausted, writing the results in
// the window of the shared result. It returns the device time of this call.
func (k *KernelMult[T]) Mult(in *multInputs[T], segments SegmentSource) (deviceSeconds float64, err error) {
	k.deviceNanos = 0
	k.segments = 0
	if in.endGrid <= in.startGrid {
		return 0, nil
	}
	if err = k.build(k.builder.GenerateSource); err != nil {
		return 0, err
	}
	for _, table := range []*ocl.ClonedBuffer[T]{in.level, in.index, in.mask, in.offset, in.alpha} {
		if err = table.Sync(k.deviceIndex); err != nil {
			return 0, errors.WithMessagef(err, "failed to stream grid to device %s", k.device)
		}
	}

	for {
		segment, ok := segments.NextSegment()
		if !ok {
			break
		}
		if segment.IsEmpty() {
			continue
		}
		if k.verbose {
			klog.Infof("mult: device %s, data segment %s (%d points)", k.device, segment, segment.Len())
		}
		if segment.Len()%k.BlockSize() != 0 {
			return 0, ocl.Errorf(ocl.ErrInputSize, "mult: segment %s on device %s is not a multiple of the block size %d",
				segment, k.device, k.BlockSize())
		}
		if segment.Start != k.dataStart || segment.End != k.dataEnd {
			k.dataStart, k.dataEnd = -1, -1
			if err = k.deviceData.InitializeTo(in.dataset, k.dims, segment.Start, segment.End, true); err != nil {
				return 0, errors.WithMessagef(err, "failed to stream data segment %s", segment)
			}
			k.dataStart, k.dataEnd = segment.Start, segment.End
		}
		if err = in.result.SetWindow(k.deviceIndex, segment.Start, segment.End); err != nil {
			return 0, err
		}
		args := make([]any, 0, 10)
		for _, table := range []*ocl.ClonedBuffer[T]{in.level, in.index, in.mask, in.offset} {
			mem, err := table.Buffer(k.deviceIndex)
			if err != nil {
				return 0, err
			}
			args = append(args, mem)
		}
		dataMem, err := k.deviceData.Buffer()
		if err != nil {
			return 0, err
		}
		alphaMem, err := in.alpha.Buffer(k.deviceIndex)
		if err != nil {
			return 0, err
		}
		resultMem, err := in.result.Buffer(k.deviceIndex)
		if err != nil {
			return 0, err
		}
		args = append(args, dataMem, alphaMem, resultMem,
			uint32(segment.Len()), uint32(in.startGrid), uint32(in.endGrid))
		if err = k.kernel.SetArgs(args...); err != nil {
			return 0, err
		}

		nanos, err := k.kernel.Run(segment.Len()/k.dataBlockSize, k.localSize)
		if err != nil {
			return 0, err
		}
		if err = in.result.ReadWindow(k.deviceIndex); err != nil {
			return 0, err
		}
		k.deviceNanos += nanos
		k.segments++
		if k.verbose {
			klog.Infof("mult: device %s, segment %s took %.6fs", k.device, segment, float64(nanos)*1e-9)
		}
	}
	return float64(k.deviceNanos) * 1e-9, nil
}

// Release frees the device data and the kernel. It is idempotent.
func (k *KernelMult[T]) Release() error {
	k.ResetKernel()
	err := k.deviceData.FreeBuffer()
	if kernelErr := k.releaseKernel(); err == nil {
		err = kernelErr
	}
	return err
}
