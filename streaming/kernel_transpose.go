package streaming

import (
	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// multTransposeInputs are the buffers shared by the KernelMultTranspose executors of all devices
// during a call.
type multTransposeInputs[T dtypes.Float] struct {
	// level, index, mask and offset are the padded grid tables, one grid point after the other.
	level, index, mask, offset []T

	// data is the padded dataset, one dimension after the other, and source one value per
	// padded data point.
	data, source *ocl.ClonedBuffer[T]

	// result holds one value per padded grid point.
	result *ocl.StretchedBuffer[T]

	// startData, endData is the range of data points summed over, and sourceSize the number
	// of padded data points.
	startData, endData, sourceSize int
}

// KernelMultTranspose runs the multTranspose kernel on one device over the grid segments it is
// handed.
//
// It owns the device copies of the grid tables of the current segment, and its kernel.
type KernelMultTranspose[T dtypes.Float] struct {
	executor[T]

	builder            *SourceBuilderMultTranspose[T]
	localSize          int
	transGridBlockSize int
	transDataBlockSize int
	verbose            bool

	levelBuffer, indexBuffer, maskBuffer, offsetBuffer *ocl.Buffer[T]
	// gridStart, gridEnd is the range of grid points currently in the device tables.
	gridStart, gridEnd int
}

// NewKernelMultTranspose creates the executor for the device with position deviceIndex in the
// devices of the operation. It fails with an ocl.ErrConfiguration error for invalid parameters.
func NewKernelMultTranspose[T dtypes.Float](device *ocl.Device, deviceIndex, dims int, manager *ocl.Manager, params *config.Kernel) (*KernelMultTranspose[T], error) {
	builder, err := NewSourceBuilderMultTranspose[T](device, params, dims)
	if err != nil {
		return nil, err
	}
	return &KernelMultTranspose[T]{
		executor: executor[T]{
			device:      device,
			deviceIndex: deviceIndex,
			manager:     manager,
			params:      params,
			dims:        dims,
			entryPoint:  MultTransposeEntryPoint,
		},
		builder:            builder,
		localSize:          params.LocalSize,
		transGridBlockSize: params.TransGridBlockSize,
		transDataBlockSize: params.TransDataBlockSize,
		verbose:            params.Verbose,
		levelBuffer:        ocl.NewBuffer[T](device),
		indexBuffer:        ocl.NewBuffer[T](device),
		maskBuffer:         ocl.NewBuffer[T](device),
		offsetBuffer:       ocl.NewBuffer[T](device),
		gridStart:          -1,
		gridEnd:            -1,
	}, nil
}

// GridBlockSize is the number of grid points processed by a work-group: grid segments must be
// multiples of it.
func (k *KernelMultTranspose[T]) GridBlockSize() int {
	return k.transGridBlockSize
}

// DataBlockSize is the number of data points the work-group processes per iteration: the data
// range must be a multiple of it.
func (k *KernelMultTranspose[T]) DataBlockSize() int {
	return k.localSize * k.transDataBlockSize
}

// ResetKernel forgets which grid points are on the device, so they are streamed again on the next
// call. It must be called whenever the grid tables change.
func (k *KernelMultTranspose[T]) ResetKernel() {
	k.gridStart, k.gridEnd = -1, -1
}

// MultTranspose processes segments of grid points until segments is exhausted, writing the
// results in the window of the shared result. It returns the device time of this call.
func (k *KernelMultTranspose[T]) MultTranspose(in *multTransposeInputs[T], segments SegmentSource) (deviceSeconds float64, err error) {
	k.deviceNanos = 0
	k.segments = 0
	if in.endData <= in.startData {
		return 0, nil
	}
	if (in.endData-in.startData)%k.DataBlockSize() != 0 {
		return 0, ocl.Errorf(ocl.ErrInputSize, "multTranspose: data range [%d, %d) on device %s is not a multiple of %d",
			in.startData, in.endData, k.device, k.DataBlockSize())
	}
	if err = k.build(k.builder.GenerateSource); err != nil {
		return 0, err
	}
	for _, buffer := range []*ocl.ClonedBuffer[T]{in.data, in.source} {
		if err = buffer.Sync(k.deviceIndex); err != nil {
			return 0, errors.WithMessagef(err, "failed to stream data to device %s", k.device)
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
			klog.Infof("multTranspose: device %s, grid segment %s (%d points)", k.device, segment, segment.Len())
		}
		if segment.Len()%k.transGridBlockSize != 0 {
			return 0, ocl.Errorf(ocl.ErrInputSize, "multTranspose: segment %s on device %s is not a multiple of the grid block size %d",
				segment, k.device, k.transGridBlockSize)
		}
		if segment.Start != k.gridStart || segment.End != k.gridEnd {
			k.gridStart, k.gridEnd = -1, -1
			for _, table := range []struct {
				buffer *ocl.Buffer[T]
				host   []T
			}{{k.levelBuffer, in.level}, {k.indexBuffer, in.index}, {k.maskBuffer, in.mask}, {k.offsetBuffer, in.offset}} {
				if err = table.buffer.InitializeTo(table.host, k.dims, segment.Start, segment.End, false); err != nil {
					return 0, errors.WithMessagef(err, "failed to stream grid segment %s", segment)
				}
			}
			k.gridStart, k.gridEnd = segment.Start, segment.End
		}
		if err = in.result.SetWindow(k.deviceIndex, segment.Start, segment.End); err != nil {
			return 0, err
		}

		args := make([]any, 0, 10)
		for _, buffer := range []*ocl.Buffer[T]{k.levelBuffer, k.indexBuffer, k.maskBuffer, k.offsetBuffer} {
			mem, err := buffer.Buffer()
			if err != nil {
				return 0, err
			}
			args = append(args, mem)
		}
		dataMem, err := in.data.Buffer(k.deviceIndex)
		if err != nil {
			return 0, err
		}
		sourceMem, err := in.source.Buffer(k.deviceIndex)
		if err != nil {
			return 0, err
		}
		resultMem, err := in.result.Buffer(k.deviceIndex)
		if err != nil {
			return 0, err
		}
		args = append(args, dataMem, sourceMem, resultMem,
			int32(in.sourceSize), int32(in.startData), int32(in.endData))
		if err = k.kernel.SetArgs(args...); err != nil {
			return 0, err
		}

		global := (segment.Len() / k.transGridBlockSize) * k.localSize
		nanos, err := k.kernel.Run(global, k.localSize)
		if err != nil {
			return 0, err
		}
		if err = in.result.ReadWindow(k.deviceIndex); err != nil {
			return 0, err
		}
		k.deviceNanos += nanos
		k.segments++
		if k.verbose {
			klog.Infof("multTranspose: device %s, segment %s took %.6fs", k.device, segment, float64(nanos)*1e-9)
		}
	}
	return float64(k.deviceNanos) * 1e-9, nil
}

// Release frees the device grid tables and the kernel. It is idempotent.
func (k *KernelMultTranspose[T]) Release() error {
	k.ResetKernel()
	var firstErr error
	for _, buffer := range []*ocl.Buffer[T]{k.levelBuffer, k.indexBuffer, k.maskBuffer, k.offsetBuffer} {
		if err := buffer.FreeBuffer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := k.releaseKernel(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
