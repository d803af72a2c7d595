package streaming

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/kernelsrc"
	"github.com/gomlx/sgstream/ocl"
)

// SourceBuilderMult generates the OpenCL source of the mult kernel for one device.
//
// The kernel evaluates, for each data point of a segment, the sum over a range of grid points of
// alpha times the basis function. Each work-item handles KERNEL_DATA_BLOCK_SIZE data points. The
// grid tables (level, index, mask, offset) are laid out one grid point after the other, and the
// data segment is laid out one dimension after the other.
type SourceBuilderMult[T dtypes.Float] struct {
	kernelsrc.Builder[T]

	device         *ocl.Device
	dims           int
	localSize      int
	dataBlockSize  int
	maxDimUnroll   int
	storeData      config.StoreMode
	useLocalMemory bool
}

// NewSourceBuilderMult validates the kernel parameters and returns a builder.
// It fails with an ocl.ErrConfiguration error for invalid parameters.
func NewSourceBuilderMult[T dtypes.Float](device *ocl.Device, kernel *config.Kernel, dims int) (*SourceBuilderMult[T], error) {
	if err := validateKernel(device, kernel, dims); err != nil {
		return nil, err
	}
	return &SourceBuilderMult[T]{
		Builder:        kernelsrc.NewBuilder[T](kernel),
		device:         device,
		dims:           dims,
		localSize:      kernel.LocalSize,
		dataBlockSize:  kernel.DataBlockSize,
		maxDimUnroll:   kernel.MaxDimUnroll,
		storeData:      kernel.StoreData,
		useLocalMemory: kernel.UseLocalMemory,
	}, nil
}

// GenerateSource returns the kernel source, or the content of the reused source file.
func (b *SourceBuilderMult[T]) GenerateSource() (string, error) {
	return b.Generate(MultSourceFile, func() (string, error) {
		return b.generate(), nil
	})
}

// data returns the expression of the coordinate dim of the data point of block.
func (b *SourceBuilderMult[T]) data(dim string, block int) string {
	switch b.storeData {
	case config.StoreArray:
		return fmt.Sprintf("data_%d[%s]", block, dim)
	case config.StoreRegister:
		return fmt.Sprintf("data_%d_%s", block, dim)
	default:
		return fmt.Sprintf("ptrData[(resultSize * %s) + (globalSize * %d) + globalIdx]", dim, block)
	}
}

// evaluation1D writes the product of the 1D basis functions of dimensions [startDim, endDim)
// into every curSupport_<block>. tables is the prefix of the grid tables: "ptr" or "loc".
func (b *SourceBuilderMult[T]) evaluation1D(sb *strings.Builder, level, startDim, endDim int, unrollVariable, tables string) {
	in := b.Indent(level)
	for d := startDim; d < endDim; d++ {
		access := fmt.Sprintf("(%d)", d)
		if unrollVariable != "" {
			access = fmt.Sprintf("(%s + %d)", unrollVariable, d)
		}
		dim := access
		if b.storeData == config.StoreRegister {
			dim = strconv.Itoa(d)
		}
		fmt.Fprintf(sb, "%sdimLevelIndex = (k * %d) + %s;\n", in, b.dims, access)
		for block := range b.dataBlockSize {
			fmt.Fprintf(sb, "%seval = %sLevel[dimLevelIndex] * %s;\n", in, tables, b.data(dim, block))
			fmt.Fprintf(sb, "%sindex_calc = eval - %sIndex[dimLevelIndex];\n", in, tables)
			fmt.Fprintf(sb, "%sabsolute = as_%s(as_%s(index_calc) | as_%s(%sMask[dimLevelIndex]));\n",
				in, b.FloatType(), b.IntType(), b.IntType(), tables)
			fmt.Fprintf(sb, "%slast = %sOffset[dimLevelIndex] + absolute;\n", in, tables)
			fmt.Fprintf(sb, "%slocalSupport = fmax(last, %s);\n", in, b.Const(0))
			fmt.Fprintf(sb, "%scurSupport_%d *= localSupport;\n\n", in, block)
		}
	}
}

// evaluation writes the basis function evaluation over all dimensions, unrolled up to
// KERNEL_MAX_DIM_UNROLL dimensions at a time.
func (b *SourceBuilderMult[T]) evaluation(sb *strings.Builder, level int, tables string) {
	if b.dims <= b.maxDimUnroll {
		b.evaluation1D(sb, level, 0, b.dims, "", tables)
		return
	}
	unrolledDims := (b.dims / b.maxDimUnroll) * b.maxDimUnroll
	fmt.Fprintf(sb, "%sfor (size_t unrollDim = 0; unrollDim < %d; unrollDim += %d) {\n",
		b.Indent(level), unrolledDims, b.maxDimUnroll)
	b.evaluation1D(sb, level+1, 0, b.maxDimUnroll, "unrollDim", tables)
	fmt.Fprintf(sb, "%s}\n", b.Indent(level))
	if unrolledDims != b.dims {
		b.evaluation1D(sb, level, unrolledDims, b.dims, "", tables)
	}
}

// gridLoopBody writes the body of the loop over grid points k.
func (b *SourceBuilderMult[T]) gridLoopBody(sb *strings.Builder, level int, alpha, tables string) {
	for block := range b.dataBlockSize {
		fmt.Fprintf(sb, "%s%s curSupport_%d = %s[k];\n", b.Indent(level), b.FloatType(), block, alpha)
	}
	sb.WriteString("\n")
	b.evaluation(sb, level, tables)
	for block := range b.dataBlockSize {
		fmt.Fprintf(sb, "%smyResult_%d += curSupport_%d;\n", b.Indent(level), block, block)
	}
}

func (b *SourceBuilderMult[T]) generate() string {
	var sb strings.Builder
	floatType := b.FloatType()
	in0 := b.Indent(0)

	sb.WriteString(b.Preamble(b.device))
	sb.WriteString("__kernel\n")
	fmt.Fprintf(&sb, "__attribute__((reqd_work_group_size(%d, 1, 1)))\n", b.localSize)
	fmt.Fprintf(&sb, "void %s(__global const %s* ptrLevel,\n", MultEntryPoint, floatType)
	argsIndent := strings.Repeat(" ", len("void "+MultEntryPoint+"("))
	for _, name := range []string{"ptrIndex", "ptrMask", "ptrOffset", "ptrData", "ptrAlpha"} {
		fmt.Fprintf(&sb, "%s__global const %s* %s,\n", argsIndent, floatType, name)
	}
	fmt.Fprintf(&sb, "%s__global       %s* ptrResult,\n", argsIndent, floatType)
	fmt.Fprintf(&sb, "%suint resultSize,\n", argsIndent)
	fmt.Fprintf(&sb, "%suint start_grid,\n", argsIndent)
	fmt.Fprintf(&sb, "%suint end_grid) {\n", argsIndent)
	fmt.Fprintf(&sb, "%sint globalIdx = get_global_id(0);\n", in0)
	fmt.Fprintf(&sb, "%sint localIdx = get_local_id(0);\n", in0)
	fmt.Fprintf(&sb, "%sint globalSize = get_global_size(0);\n\n", in0)

	if b.useLocalMemory {
		for _, name := range []string{"locLevel", "locIndex", "locMask", "locOffset"} {
			fmt.Fprintf(&sb, "%s__local %s %s[%d];\n", in0, floatType, name, b.dims*b.localSize)
		}
		fmt.Fprintf(&sb, "%s__local %s locAlpha[%d];\n\n", in0, floatType, b.localSize)
	}

	fmt.Fprintf(&sb, "%s%s eval, index_calc, absolute, last, localSupport;\n\n", in0, floatType)
	for block := range b.dataBlockSize {
		fmt.Fprintf(&sb, "%s%s myResult_%d = %s;\n", in0, floatType, block, b.Const(0))
	}
	sb.WriteString("\n")

	// Data points are cached in private memory for the array and register modes.
	switch b.storeData {
	case config.StoreArray:
		for block := range b.dataBlockSize {
			fmt.Fprintf(&sb, "%s%s data_%d[%d];\n", in0, floatType, block, b.dims)
		}
		sb.WriteString("\n")
		for block := range b.dataBlockSize {
			for d := range b.dims {
				fmt.Fprintf(&sb, "%sdata_%d[%d] = ptrData[(resultSize * %d) + (globalSize * %d) + globalIdx];\n",
					in0, block, d, d, block)
			}
			sb.WriteString("\n")
		}
	case config.StoreRegister:
		for block := range b.dataBlockSize {
			for d := range b.dims {
				fmt.Fprintf(&sb, "%s%s data_%d_%d = ptrData[(resultSize * %d) + (globalSize * %d) + globalIdx];\n",
					in0, floatType, block, d, d, block)
			}
			sb.WriteString("\n")
		}
	}

	fmt.Fprintf(&sb, "%ssize_t dimLevelIndex;\n\n", in0)

	in1 := b.Indent(1)
	if b.useLocalMemory {
		fmt.Fprintf(&sb, "%s// Grid points in chunks of the work-group size, staged in local memory.\n", in0)
		fmt.Fprintf(&sb, "%suint chunkSizeGrid = end_grid - start_grid;\n", in0)
		fmt.Fprintf(&sb, "%suint fastChunkSizeGrid = (chunkSizeGrid / %d) * %d;\n", in0, b.localSize, b.localSize)
		fmt.Fprintf(&sb, "%sfor (uint j = start_grid; j < start_grid + fastChunkSizeGrid; j += %d) {\n", in0, b.localSize)
		for d := range b.dims {
			for _, table := range []string{"Level", "Index", "Mask", "Offset"} {
				fmt.Fprintf(&sb, "%sloc%s[(localIdx * %d) + %d] = ptr%s[((j + localIdx) * %d) + %d];\n",
					in1, table, b.dims, d, table, b.dims, d)
			}
		}
		fmt.Fprintf(&sb, "%slocAlpha[localIdx] = ptrAlpha[j + localIdx];\n", in1)
		fmt.Fprintf(&sb, "%sbarrier(CLK_LOCAL_MEM_FENCE);\n\n", in1)
		fmt.Fprintf(&sb, "%sfor (uint k = 0; k < %d; k++) {\n", in1, b.localSize)
		b.gridLoopBody(&sb, 2, "locAlpha", "loc")
		fmt.Fprintf(&sb, "%s}\n\n", in1)
		fmt.Fprintf(&sb, "%sbarrier(CLK_LOCAL_MEM_FENCE);\n", in1)
		fmt.Fprintf(&sb, "%s}\n\n", in0)

		fmt.Fprintf(&sb, "%s// Remaining grid points.\n", in0)
		fmt.Fprintf(&sb, "%sfor (uint k = start_grid + fastChunkSizeGrid; k < end_grid; k++) {\n", in0)
		b.gridLoopBody(&sb, 1, "ptrAlpha", "ptr")
		fmt.Fprintf(&sb, "%s}\n\n", in0)
	} else {
		fmt.Fprintf(&sb, "%sfor (uint k = start_grid; k < end_grid; k++) {\n", in0)
		b.gridLoopBody(&sb, 1, "ptrAlpha", "ptr")
		fmt.Fprintf(&sb, "%s}\n\n", in0)
	}

	for block := range b.dataBlockSize {
		fmt.Fprintf(&sb, "%sptrResult[(globalSize * %d) + globalIdx] = myResult_%d;\n", in0, block, block)
	}
	sb.WriteString("}\n")
	return sb.String()
}
