package streaming

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/ocl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flagUpdateGolden = flag.Bool("update", false, "Rewrite the golden kernel sources in testdata/.")

var testDevice = &ocl.Device{PlatformName: "Test Platform", DeviceName: "test-device", Type: ocl.DeviceTypeGPU}

func testKernel(update func(k *config.Kernel)) *config.Kernel {
	k := &config.Kernel{LocalSize: 64}
	if update != nil {
		update(k)
	}
	k.AugmentDefaults()
	return k
}

// checkGolden compares source with testdata/name. With --update the golden file is rewritten instead.
func checkGolden(t *testing.T, name, source string) {
	path := filepath.Join("testdata", name)
	if *flagUpdateGolden {
		require.NoError(t, os.MkdirAll("testdata", 0o755))
		require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
		fmt.Printf("\twrote golden file %s\n", path)
		return
	}
	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Fatalf("golden file %s is missing, run with --update to create it", path)
	}
	require.NoError(t, err)
	assert.Equal(t, string(want), source, "generated source differs from %s, run with --update if the change is intended", path)
}

func generateMult[T float32 | float64](t *testing.T, dims int, kernel *config.Kernel) string {
	builder, err := NewSourceBuilderMult[T](testDevice, kernel, dims)
	require.NoError(t, err)
	source, err := builder.GenerateSource()
	require.NoError(t, err)
	again, err := builder.GenerateSource()
	require.NoError(t, err)
	require.Equal(t, source, again, "generation must be deterministic")
	return source
}

func generateMultTranspose[T float32 | float64](t *testing.T, dims int, kernel *config.Kernel) string {
	builder, err := NewSourceBuilderMultTranspose[T](testDevice, kernel, dims)
	require.NoError(t, err)
	source, err := builder.GenerateSource()
	require.NoError(t, err)
	again, err := builder.GenerateSource()
	require.NoError(t, err)
	require.Equal(t, source, again, "generation must be deterministic")
	return source
}

func TestSourceBuilderMult(t *testing.T) {
	t.Run("array/float64", func(t *testing.T) {
		source := generateMult[float64](t, 3, testKernel(func(k *config.Kernel) { k.DataBlockSize = 2 }))
		checkGolden(t, "mult_array_float64.cl", source)
		assert.True(t, strings.HasPrefix(source, "// platform: Test Platform device: test-device\n"))
		assert.Contains(t, source, "#pragma OPENCL EXTENSION cl_khr_fp64 : enable")
		assert.Contains(t, source, "__attribute__((reqd_work_group_size(64, 1, 1)))")
		assert.Contains(t, source, "void multOCLMask(__global const double* ptrLevel,\n")
		assert.Contains(t, source, "                 uint end_grid) {\n", "arguments aligned after the open parenthesis")
		assert.Contains(t, source, "double myResult_1 = 0.0;")
		assert.Contains(t, source, "data_1[2] = ptrData[(resultSize * 2) + (globalSize * 1) + globalIdx];")
		assert.Contains(t, source, "eval = ptrLevel[dimLevelIndex] * data_1[(2)];")
		assert.Contains(t, source, "absolute = as_double(as_long(index_calc) | as_long(ptrMask[dimLevelIndex]));")
		assert.Contains(t, source, "ptrResult[(globalSize * 1) + globalIdx] = myResult_1;")
		assert.NotContains(t, source, "unrollDim")
		assert.NotContains(t, source, "__local")
	})

	t.Run("register/float32", func(t *testing.T) {
		source := generateMult[float32](t, 2, testKernel(func(k *config.Kernel) { k.StoreData = config.StoreRegister }))
		checkGolden(t, "mult_register_float32.cl", source)
		assert.NotContains(t, source, "#pragma")
		assert.Contains(t, source, "float data_0_1 = ptrData[(resultSize * 1) + (globalSize * 0) + globalIdx];")
		assert.Contains(t, source, "eval = ptrLevel[dimLevelIndex] * data_0_1;")
		assert.Contains(t, source, "absolute = as_float(as_int(index_calc) | as_int(ptrMask[dimLevelIndex]));")
		assert.Contains(t, source, "localSupport = fmax(last, 0.0f);")
	})

	t.Run("pointer/unrolled", func(t *testing.T) {
		source := generateMult[float64](t, 5, testKernel(func(k *config.Kernel) {
			k.StoreData = config.StorePointer
			k.MaxDimUnroll = 2
		}))
		checkGolden(t, "mult_pointer_unrolled_float64.cl", source)
		assert.Contains(t, source, "for (size_t unrollDim = 0; unrollDim < 4; unrollDim += 2) {")
		assert.Contains(t, source, "dimLevelIndex = (k * 5) + (unrollDim + 1);")
		assert.Contains(t, source, "ptrData[(resultSize * (unrollDim + 1)) + (globalSize * 0) + globalIdx]")
		// Residual dimension after the unrolled loop.
		assert.Contains(t, source, "dimLevelIndex = (k * 5) + (4);")
		assert.Contains(t, source, "ptrData[(resultSize * (4)) + (globalSize * 0) + globalIdx]")
		assert.NotContains(t, source, "data_0[")
	})

	t.Run("local memory", func(t *testing.T) {
		source := generateMult[float32](t, 2, testKernel(func(k *config.Kernel) { k.UseLocalMemory = true }))
		checkGolden(t, "mult_local_float32.cl", source)
		assert.Contains(t, source, "__local float locLevel[128];")
		assert.Contains(t, source, "__local float locAlpha[64];")
		assert.Contains(t, source, "locMask[(localIdx * 2) + 1] = ptrMask[((j + localIdx) * 2) + 1];")
		assert.Contains(t, source, "float curSupport_0 = locAlpha[k];")
		assert.Contains(t, source, "eval = locLevel[dimLevelIndex] * data_0[(0)];")
		// Grid points left over by the chunks are read from global memory.
		assert.Contains(t, source, "for (uint k = start_grid + fastChunkSizeGrid; k < end_grid; k++) {")
		assert.Contains(t, source, "float curSupport_0 = ptrAlpha[k];")
		assert.Equal(t, 2, strings.Count(source, "barrier(CLK_LOCAL_MEM_FENCE);"))
	})
}

func TestSourceBuilderMultTranspose(t *testing.T) {
	t.Run("array/float64", func(t *testing.T) {
		source := generateMultTranspose[float64](t, 3, testKernel(func(k *config.Kernel) {
			k.TransGridBlockSize = 2
			k.TransDataBlockSize = 2
		}))
		checkGolden(t, "multTranspose_array_float64.cl", source)
		assert.Contains(t, source, "#pragma OPENCL EXTENSION cl_khr_fp64 : enable")
		assert.Contains(t, source, "void multTransOCLMask(__global const double* ptrLevel,\n")
		assert.Contains(t, source, "int end_data) {\n")
		assert.Contains(t, source, "__local double resultsTemp[64];")
		assert.Contains(t, source, "level_1[2] = ptrLevel[((2 * groupIdx + 1) * 3) + 2];")
		assert.Contains(t, source, "for (int k = start_data + localIdx; k < end_data; k += 128) {")
		assert.Contains(t, source, "double curSupport_1_1 = ptrSource[k + 64];")
		assert.Contains(t, source, "dimDataIndex = ((2) * sourceSize) + k;")
		assert.Contains(t, source, "eval = level_1[(2)] * ptrData[dimDataIndex + 64];")
		assert.Contains(t, source, "absolute = as_double(as_long(index_calc) | as_long(mask_0[(0)]));")
		assert.Contains(t, source, "myResult_1 += curSupport_1_1;")
		assert.Contains(t, source, "ptrResult[(2 * groupIdx) + 1] = overallResult;")
		// One barrier before each reduction, plus one between reductions.
		assert.Equal(t, 3, strings.Count(source, "barrier(CLK_LOCAL_MEM_FENCE);"))
	})

	t.Run("register/float32", func(t *testing.T) {
		source := generateMultTranspose[float32](t, 2, testKernel(func(k *config.Kernel) { k.StoreData = config.StoreRegister }))
		checkGolden(t, "multTranspose_register_float32.cl", source)
		assert.Contains(t, source, "float offset_0_1 = ptrOffset[((1 * groupIdx + 0) * 2) + 1];")
		assert.Contains(t, source, "last = offset_0_1 + absolute;")
		assert.Contains(t, source, "float overallResult = 0.0f;")
	})

	t.Run("pointer/unrolled", func(t *testing.T) {
		source := generateMultTranspose[float64](t, 3, testKernel(func(k *config.Kernel) {
			k.StoreData = config.StorePointer
			k.MaxDimUnroll = 2
		}))
		checkGolden(t, "multTranspose_pointer_unrolled_float64.cl", source)
		assert.Contains(t, source, "int dimLevelIndex;")
		assert.Contains(t, source, "for (int unrollDim = 0; unrollDim < 2; unrollDim += 2) {")
		assert.Contains(t, source, "dimLevelIndex = ((1 * groupIdx + 0) * 3) + (unrollDim + 1);")
		assert.Contains(t, source, "dimLevelIndex = ((1 * groupIdx + 0) * 3) + (2);")
		assert.Contains(t, source, "eval = ptrLevel[dimLevelIndex] * ptrData[dimDataIndex + 0];")
	})

	t.Run("local memory ignored", func(t *testing.T) {
		plain := generateMultTranspose[float32](t, 2, testKernel(nil))
		local := generateMultTranspose[float32](t, 2, testKernel(func(k *config.Kernel) { k.UseLocalMemory = true }))
		assert.Equal(t, plain, local)
	})
}

func TestGoldenSourcesPresent(t *testing.T) {
	if *flagUpdateGolden {
		t.Skip("goldens are being rewritten")
	}
	for _, name := range []string{
		"mult_array_float64.cl", "mult_register_float32.cl", "mult_pointer_unrolled_float64.cl", "mult_local_float32.cl",
		"multTranspose_array_float64.cl", "multTranspose_register_float32.cl", "multTranspose_pointer_unrolled_float64.cl",
	} {
		info, err := os.Stat(filepath.Join("testdata", name))
		require.NoErrorf(t, err, "golden %s must be checked in", name)
		assert.Positive(t, info.Size())
	}
}

func TestSourceBuilderErrors(t *testing.T) {
	// Register mode needs one register per dimension.
	_, err := NewSourceBuilderMult[float64](testDevice, testKernel(func(k *config.Kernel) {
		k.StoreData = config.StoreRegister
		k.MaxDimUnroll = 2
	}), 3)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
	fmt.Printf("\texpected error: %v\n", err)

	_, err = NewSourceBuilderMultTranspose[float64](testDevice, testKernel(func(k *config.Kernel) {
		k.StoreData = config.StoreRegister
		k.MaxDimUnroll = 2
	}), 3)
	require.ErrorIs(t, err, ocl.ErrConfiguration)

	// Zero sizes are rejected.
	for _, update := range []func(k *config.Kernel){
		func(k *config.Kernel) { k.LocalSize = -1 },
		func(k *config.Kernel) { k.DataBlockSize = -1 },
		func(k *config.Kernel) { k.TransGridBlockSize = -1 },
		func(k *config.Kernel) { k.TransDataBlockSize = -1 },
		func(k *config.Kernel) { k.MaxDimUnroll = -1 },
	} {
		_, err = NewSourceBuilderMult[float32](testDevice, testKernel(update), 2)
		require.ErrorIs(t, err, ocl.ErrConfiguration)
	}
	_, err = NewSourceBuilderMult[float32](testDevice, nil, 2)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
	_, err = NewSourceBuilderMult[float32](testDevice, testKernel(nil), 0)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
}

func TestSourceReuse(t *testing.T) {
	dir := t.TempDir()
	kernel := testKernel(func(k *config.Kernel) {
		k.WriteSource = true
		k.SourceDirectory = dir
	})
	generated := generateMult[float32](t, 2, kernel)
	written, err := os.ReadFile(filepath.Join(dir, MultSourceFile))
	require.NoError(t, err)
	assert.Equal(t, generated, string(written))

	// Hand edited sources are picked up with REUSE_SOURCE.
	edited := "// edited\n" + generated
	require.NoError(t, os.WriteFile(filepath.Join(dir, MultSourceFile), []byte(edited), 0o644))
	kernel = testKernel(func(k *config.Kernel) {
		k.ReuseSource = true
		k.SourceDirectory = dir
	})
	assert.Equal(t, edited, generateMult[float32](t, 2, kernel))

	kernel.SourceDirectory = filepath.Join(dir, "missing")
	builder, err := NewSourceBuilderMultTranspose[float32](testDevice, kernel, 2)
	require.NoError(t, err)
	_, err = builder.GenerateSource()
	require.ErrorIs(t, err, ocl.ErrConfiguration)
}
