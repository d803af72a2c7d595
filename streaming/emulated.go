package streaming

import (
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/gomlx/sgstream/ocl/host"
	"github.com/pkg/errors"
)

// Emulations of the generated kernels for the host backend. They compute the same values as the
// generated OpenCL code, deriving the problem shape from the buffer sizes and scalar arguments.
func init() {
	host.RegisterKernel(MultEntryPoint, func(program host.Program) (host.KernelFunc, error) {
		switch program.Precision {
		case dtypes.Float32:
			return emulateMult[float32], nil
		case dtypes.Float64:
			return emulateMult[float64], nil
		}
		return nil, errors.Errorf("unsupported precision %s", program.Precision)
	})
	host.RegisterKernel(MultTransposeEntryPoint, func(program host.Program) (host.KernelFunc, error) {
		switch program.Precision {
		case dtypes.Float32:
			return emulateMultTranspose[float32], nil
		case dtypes.Float64:
			return emulateMultTranspose[float64], nil
		}
		return nil, errors.Errorf("unsupported precision %s", program.Precision)
	})
}

// launchArgs reads the 7 buffers and 3 scalars shared by the signatures of both kernels.
func launchArgs[T dtypes.Float](launch *host.Launch) (buffers [7][]T, scalars [3]int, err error) {
	for ii := range buffers {
		if buffers[ii], err = host.Buffer[T](launch, ii); err != nil {
			return
		}
	}
	for ii := range scalars {
		if scalars[ii], err = launch.Scalar(len(buffers) + ii); err != nil {
			return
		}
	}
	return
}

// basisSupport returns the product over dims of the 1D basis functions of the grid point whose
// tables start at offset, evaluated at the coordinates returned by x.
func basisSupport[T dtypes.Float](level, index, mask, offset []T, tableOffset, dims int, x func(d int) T) T {
	support := T(1)
	for d := range dims {
		entry := tableOffset + d
		eval := level[entry] * x(d)
		absolute := dtypes.OrBits(eval-index[entry], mask[entry])
		support *= max(offset[entry]+absolute, 0)
	}
	return support
}

func emulateMult[T dtypes.Float](launch *host.Launch) error {
	buffers, scalars, err := launchArgs[T](launch)
	if err != nil {
		return err
	}
	level, index, mask, offset, data, alpha, result := buffers[0], buffers[1], buffers[2], buffers[3], buffers[4], buffers[5], buffers[6]
	resultSize, startGrid, endGrid := scalars[0], scalars[1], scalars[2]
	globalSize := launch.Global
	if resultSize <= 0 || resultSize%globalSize != 0 || len(data)%resultSize != 0 || len(result) < resultSize {
		return ocl.StatusErrorf(ocl.StatusInvalidKernelArgs,
			"%s: resultSize=%d incompatible with global size %d, data size %d and result size %d",
			MultEntryPoint, resultSize, globalSize, len(data), len(result))
	}
	dims := len(data) / resultSize
	dataBlockSize := resultSize / globalSize
	if dims == 0 || endGrid < startGrid || endGrid*dims > len(level) || endGrid > len(alpha) {
		return ocl.StatusErrorf(ocl.StatusInvalidKernelArgs,
			"%s: grid range [%d, %d) out of bounds for %d grid table entries and %d coefficients",
			MultEntryPoint, startGrid, endGrid, len(level), len(alpha))
	}
	launch.ForEachGroup(func(group int) {
		for localIdx := range launch.Local {
			globalIdx := group*launch.Local + localIdx
			for block := range dataBlockSize {
				point := globalSize*block + globalIdx
				x := func(d int) T { return data[resultSize*d+point] }
				var sum T
				for k := startGrid; k < endGrid; k++ {
					sum += alpha[k] * basisSupport(level, index, mask, offset, k*dims, dims, x)
				}
				result[point] = sum
			}
		}
	})
	return nil
}

func emulateMultTranspose[T dtypes.Float](launch *host.Launch) error {
	buffers, scalars, err := launchArgs[T](launch)
	if err != nil {
		return err
	}
	level, index, mask, offset, data, source, result := buffers[0], buffers[1], buffers[2], buffers[3], buffers[4], buffers[5], buffers[6]
	sourceSize, startData, endData := scalars[0], scalars[1], scalars[2]
	groups := launch.Groups()
	if sourceSize <= 0 || len(data)%sourceSize != 0 || len(source) < sourceSize || len(result)%groups != 0 {
		return ocl.StatusErrorf(ocl.StatusInvalidKernelArgs,
			"%s: sourceSize=%d incompatible with data size %d, source size %d and result size %d for %d work-groups",
			MultTransposeEntryPoint, sourceSize, len(data), len(source), len(result), groups)
	}
	dims := len(data) / sourceSize
	gridBlockSize := len(result) / groups
	if dims == 0 || gridBlockSize == 0 || len(level) < len(result)*dims || startData < 0 || endData > sourceSize {
		return ocl.StatusErrorf(ocl.StatusInvalidKernelArgs,
			"%s: invalid shapes: %d grid table entries for %d grid points, data range [%d, %d) of %d",
			MultTransposeEntryPoint, len(level), len(result), startData, endData, sourceSize)
	}
	launch.ForEachGroup(func(group int) {
		for gridPoint := range gridBlockSize {
			gridIdx := gridBlockSize*group + gridPoint
			var sum T
			for k := startData; k < endData; k++ {
				x := func(d int) T { return data[d*sourceSize+k] }
				sum += source[k] * basisSupport(level, index, mask, offset, gridIdx*dims, dims, x)
			}
			result[gridIdx] = sum
		}
	})
	return nil
}
