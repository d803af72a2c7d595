package kernelsrc_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/kernelsrc"
	"github.com/gomlx/sgstream/ocl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpellings(t *testing.T) {
	b32 := kernelsrc.NewBuilder[float32](nil)
	assert.Equal(t, "float", b32.FloatType())
	assert.Equal(t, "int", b32.IntType())
	assert.Equal(t, "f", b32.ConstSuffix())
	assert.Equal(t, "1.0f", b32.Const(1))
	assert.Equal(t, "0.5f", b32.Const(0.5))

	b64 := kernelsrc.NewBuilder[float64](nil)
	assert.Equal(t, "double", b64.FloatType())
	assert.Equal(t, "long", b64.IntType())
	assert.Equal(t, "", b64.ConstSuffix())
	assert.Equal(t, "2.0", b64.Const(2))
}

func TestIndent(t *testing.T) {
	b := kernelsrc.NewBuilder[float64](nil)
	assert.Equal(t, kernelsrc.IndentUnit, b.Indent(0))
	assert.Equal(t, strings.Repeat(kernelsrc.IndentUnit, 3), b.Indent(2))
	// Deeper than the precomputed levels.
	assert.Equal(t, strings.Repeat(kernelsrc.IndentUnit, 13), b.Indent(12))
	assert.Equal(t, "", b.Indent(-1))
}

func TestPreamble(t *testing.T) {
	device := &ocl.Device{PlatformName: "p", DeviceName: "d"}
	b64 := kernelsrc.NewBuilder[float64](nil)
	assert.Equal(t, "// platform: p device: d\n\n#pragma OPENCL EXTENSION cl_khr_fp64 : enable\n\n", b64.Preamble(device))
	b32 := kernelsrc.NewBuilder[float32](nil)
	assert.Equal(t, "// platform: p device: d\n\n", b32.Preamble(device))
}

func TestWriteAndReuseSource(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kernels")
	kernel := config.DefaultKernel()
	kernel.SourceDirectory = dir
	kernel.WriteSource = true
	b := kernelsrc.NewBuilder[float64](kernel)

	calls := 0
	generate := func() (string, error) {
		calls++
		return "__kernel void k() {}\n", nil
	}
	source, err := b.Generate("k.cl", generate)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	content, err := os.ReadFile(filepath.Join(dir, "k.cl"))
	require.NoError(t, err)
	assert.Equal(t, source, string(content))

	// Reuse doesn't call the generator.
	kernel.WriteSource = false
	kernel.ReuseSource = true
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.cl"), []byte("// edited\n"), 0o644))
	source, err = b.Generate("k.cl", generate)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "// edited\n", source)

	_, err = b.Generate("missing.cl", generate)
	require.ErrorIs(t, err, ocl.ErrConfiguration)
}
