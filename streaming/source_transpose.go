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

// SourceBuilderMultTranspose generates the OpenCL source of the multTranspose kernel for one
// device.
//
// Each work-group computes KERNEL_TRANS_GRID_BLOCK_SIZE consecutive grid points of a segment: its
// work-items stride over the whole dataset, KERNEL_TRANS_DATA_BLOCK_SIZE work-group sizes at a time,
// and the partial sums are reduced in local memory.
type SourceBuilderMultTranspose[T dtypes.Float] struct {
	kernelsrc.Builder[T]

	device             *ocl.Device
	dims               int
	localSize          int
	transGridBlockSize int
	transDataBlockSize int
	maxDimUnroll       int
	storeData          config.StoreMode
}

// NewSourceBuilderMultTranspose validates the kernel parameters and returns a builder.
// It fails with an ocl.ErrConfiguration error for invalid parameters.
func NewSourceBuilderMultTranspose[T dtypes.Float](device *ocl.Device, kernel *config.Kernel, dims int) (*SourceBuilderMultTranspose[T], error) {
	if err := validateKernel(device, kernel, dims); err != nil {
		return nil, err
	}
	return &SourceBuilderMultTranspose[T]{
		Builder:            kernelsrc.NewBuilder[T](kernel),
		device:             device,
		dims:               dims,
		localSize:          kernel.LocalSize,
		transGridBlockSize: kernel.TransGridBlockSize,
		transDataBlockSize: kernel.TransDataBlockSize,
		maxDimUnroll:       kernel.MaxDimUnroll,
		storeData:          kernel.StoreData,
	}, nil
}

// GenerateSource returns the kernel source, or the content of the reused source file.
func (b *SourceBuilderMultTranspose[T]) GenerateSource() (string, error) {
	return b.Generate(MultTransposeSourceFile, func() (string, error) {
		return b.generate(), nil
	})
}

// gridPointOffset is the expression of the first table entry of gridPoint of the work-group.
func (b *SourceBuilderMultTranspose[T]) gridPointOffset(gridPoint int) string {
	return fmt.Sprintf("((%d * groupIdx + %d) * %d)", b.transGridBlockSize, gridPoint, b.dims)
}

// table returns the expression of the entry of table (Level, Index, Mask or Offset) for gridPoint
// in dimension dim.
func (b *SourceBuilderMultTranspose[T]) table(table, dim string, gridPoint int) string {
	switch b.storeData {
	case config.StoreArray:
		return fmt.Sprintf("%s_%d[%s]", strings.ToLower(table), gridPoint, dim)
	case config.StoreRegister:
		return fmt.Sprintf("%s_%d_%s", strings.ToLower(table), gridPoint, dim)
	default:
		return fmt.Sprintf("ptr%s[dimLevelIndex]", table)
	}
}

func (b *SourceBuilderMultTranspose[T]) evaluation1D(sb *strings.Builder, level, startDim, endDim int, unrollVariable string, gridPoint int) {
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
		fmt.Fprintf(sb, "%sdimDataIndex = (%s * sourceSize) + k;\n", in, access)
		if b.storeData == config.StorePointer {
			fmt.Fprintf(sb, "%sdimLevelIndex = %s + %s;\n", in, b.gridPointOffset(gridPoint), access)
		}
		for dataIndex := range b.transDataBlockSize {
			fmt.Fprintf(sb, "%seval = %s * ptrData[dimDataIndex + %d];\n",
				in, b.table("Level", dim, gridPoint), b.localSize*dataIndex)
			fmt.Fprintf(sb, "%sindex_calc = eval - %s;\n", in, b.table("Index", dim, gridPoint))
			fmt.Fprintf(sb, "%sabsolute = as_%s(as_%s(index_calc) | as_%s(%s));\n",
				in, b.FloatType(), b.IntType(), b.IntType(), b.table("Mask", dim, gridPoint))
			fmt.Fprintf(sb, "%slast = %s + absolute;\n", in, b.table("Offset", dim, gridPoint))
			fmt.Fprintf(sb, "%slocalSupport = fmax(last, %s);\n", in, b.Const(0))
			fmt.Fprintf(sb, "%scurSupport_%d_%d *= localSupport;\n\n", in, gridPoint, dataIndex)
		}
	}
}

func (b *SourceBuilderMultTranspose[T]) evaluation(sb *strings.Builder, level, gridPoint int) {
	if b.dims <= b.maxDimUnroll {
		b.evaluation1D(sb, level, 0, b.dims, "", gridPoint)
		return
	}
	unrolledDims := (b.dims / b.maxDimUnroll) * b.maxDimUnroll
	fmt.Fprintf(sb, "%sfor (int unrollDim = 0; unrollDim < %d; unrollDim += %d) {\n",
		b.Indent(level), unrolledDims, b.maxDimUnroll)
	b.evaluation1D(sb, level+1, 0, b.maxDimUnroll, "unrollDim", gridPoint)
	fmt.Fprintf(sb, "%s}\n", b.Indent(level))
	if unrolledDims != b.dims {
		b.evaluation1D(sb, level, unrolledDims, b.dims, "", gridPoint)
	}
}

func (b *SourceBuilderMultTranspose[T]) generate() string {
	var sb strings.Builder
	floatType := b.FloatType()
	in0, in1, in2 := b.Indent(0), b.Indent(1), b.Indent(2)

	sb.WriteString(b.Preamble(b.device))
	sb.WriteString("__kernel\n")
	fmt.Fprintf(&sb, "__attribute__((reqd_work_group_size(%d, 1, 1)))\n", b.localSize)
	fmt.Fprintf(&sb, "void %s(__global const %s* ptrLevel,\n", MultTransposeEntryPoint, floatType)
	argsIndent := strings.Repeat(" ", len("void "+MultTransposeEntryPoint+"("))
	for _, name := range []string{"ptrIndex", "ptrMask", "ptrOffset", "ptrData", "ptrSource"} {
		fmt.Fprintf(&sb, "%s__global const %s* %s,\n", argsIndent, floatType, name)
	}
	fmt.Fprintf(&sb, "%s__global       %s* ptrResult,\n", argsIndent, floatType)
	fmt.Fprintf(&sb, "%sint sourceSize,\n", argsIndent)
	fmt.Fprintf(&sb, "%sint start_data,\n", argsIndent)
	fmt.Fprintf(&sb, "%sint end_data) {\n", argsIndent)
	fmt.Fprintf(&sb, "%sint groupIdx = get_group_id(0);\n", in0)
	fmt.Fprintf(&sb, "%sint localIdx = get_local_id(0);\n\n", in0)

	fmt.Fprintf(&sb, "%s__local %s resultsTemp[%d];\n\n", in0, floatType, b.localSize)
	fmt.Fprintf(&sb, "%s%s eval, index_calc, absolute, last, localSupport;\n\n", in0, floatType)
	for gridPoint := range b.transGridBlockSize {
		fmt.Fprintf(&sb, "%s%s myResult_%d = %s;\n", in0, floatType, gridPoint, b.Const(0))
	}
	sb.WriteString("\n")

	// Grid points of the work-group are cached in private memory for the array and register modes.
	tables := []string{"Level", "Index", "Mask", "Offset"}
	switch b.storeData {
	case config.StoreArray:
		for gridPoint := range b.transGridBlockSize {
			for _, table := range tables {
				fmt.Fprintf(&sb, "%s%s %s_%d[%d];\n", in0, floatType, strings.ToLower(table), gridPoint, b.dims)
			}
			for d := range b.dims {
				for _, table := range tables {
					fmt.Fprintf(&sb, "%s%s_%d[%d] = ptr%s[%s + %d];\n",
						in0, strings.ToLower(table), gridPoint, d, table, b.gridPointOffset(gridPoint), d)
				}
			}
			sb.WriteString("\n")
		}
	case config.StoreRegister:
		for gridPoint := range b.transGridBlockSize {
			for d := range b.dims {
				for _, table := range tables {
					fmt.Fprintf(&sb, "%s%s %s_%d_%d = ptr%s[%s + %d];\n",
						in0, floatType, strings.ToLower(table), gridPoint, d, table, b.gridPointOffset(gridPoint), d)
				}
			}
			sb.WriteString("\n")
		}
	}

	fmt.Fprintf(&sb, "%sint dimDataIndex;\n", in0)
	if b.storeData == config.StorePointer {
		fmt.Fprintf(&sb, "%sint dimLevelIndex;\n", in0)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "%sfor (int k = start_data + localIdx; k < end_data; k += %d) {\n",
		in0, b.transDataBlockSize*b.localSize)
	for gridPoint := range b.transGridBlockSize {
		for dataIndex := range b.transDataBlockSize {
			fmt.Fprintf(&sb, "%s%s curSupport_%d_%d = ptrSource[k + %d];\n",
				in1, floatType, gridPoint, dataIndex, b.localSize*dataIndex)
		}
	}
	sb.WriteString("\n")
	for gridPoint := range b.transGridBlockSize {
		b.evaluation(&sb, 1, gridPoint)
	}
	for gridPoint := range b.transGridBlockSize {
		for dataIndex := range b.transDataBlockSize {
			fmt.Fprintf(&sb, "%smyResult_%d += curSupport_%d_%d;\n", in1, gridPoint, gridPoint, dataIndex)
		}
	}
	fmt.Fprintf(&sb, "%s}\n\n", in0)

	// Reduction of the partial sums of the work-items.
	for gridPoint := range b.transGridBlockSize {
		if gridPoint > 0 {
			fmt.Fprintf(&sb, "%sbarrier(CLK_LOCAL_MEM_FENCE);\n\n", in0)
		}
		fmt.Fprintf(&sb, "%sresultsTemp[localIdx] = myResult_%d;\n", in0, gridPoint)
		fmt.Fprintf(&sb, "%sbarrier(CLK_LOCAL_MEM_FENCE);\n\n", in0)
		fmt.Fprintf(&sb, "%sif (localIdx == 0) {\n", in0)
		fmt.Fprintf(&sb, "%s%s overallResult = %s;\n", in1, floatType, b.Const(0))
		fmt.Fprintf(&sb, "%sfor (int i = 0; i < %d; i++) {\n", in1, b.localSize)
		fmt.Fprintf(&sb, "%soverallResult += resultsTemp[i];\n", in2)
		fmt.Fprintf(&sb, "%s}\n", in1)
		fmt.Fprintf(&sb, "%sptrResult[(%d * groupIdx) + %d] = overallResult;\n", in1, b.transGridBlockSize, gridPoint)
		fmt.Fprintf(&sb, "%s}\n", in0)
	}
	sb.WriteString("}\n")
	return sb.String()
}
