// Package kernelsrc holds the common parts of the OpenCL C kernel source generators: indentation,
// precision dependent spellings, and caching of the generated sources in files.
package kernelsrc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"k8s.io/klog/v2"
)

// numPrecomputedIndents is the number of nesting levels with precomputed indentation.
const numPrecomputedIndents = 10

// IndentUnit is the indentation added by each nesting level.
const IndentUnit = "    "

var indents = func() []string {
	table := make([]string, numPrecomputedIndents)
	for level := range table {
		table[level] = strings.Repeat(IndentUnit, level+1)
	}
	return table
}()

// Builder is embedded by the kernel source generators. T selects the precision of the kernels.
type Builder[T dtypes.Float] struct {
	precision dtypes.Precision
	kernel    *config.Kernel
}

// NewBuilder returns a Builder for the given kernel parameters.
func NewBuilder[T dtypes.Float](kernel *config.Kernel) Builder[T] {
	return Builder[T]{precision: dtypes.FromGenericsType[T](), kernel: kernel}
}

// Indent returns the indentation of a statement at the given nesting level. Level 0 is the body
// of the kernel function.
func (b *Builder[T]) Indent(level int) string {
	if level < 0 {
		return ""
	}
	if level < numPrecomputedIndents {
		return indents[level]
	}
	return strings.Repeat(IndentUnit, level+1)
}

// Precision of the generated kernels.
func (b *Builder[T]) Precision() dtypes.Precision {
	return b.precision
}

// Kernel returns the kernel parameters the builder was created with.
func (b *Builder[T]) Kernel() *config.Kernel {
	return b.kernel
}

// FloatType is the OpenCL floating point type: "float" or "double".
func (b *Builder[T]) FloatType() string {
	return b.precision.FloatType()
}

// IntType is the OpenCL integer type with the same width as FloatType: "int" or "long".
func (b *Builder[T]) IntType() string {
	return b.precision.IntType()
}

// ConstSuffix is the suffix of floating point literals: "f" for float, empty for double.
func (b *Builder[T]) ConstSuffix() string {
	return b.precision.ConstSuffix()
}

// Const formats a floating point literal with the precision suffix, e.g. "1.0f".
func (b *Builder[T]) Const(value float64) string {
	s := fmt.Sprintf("%g", value)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s + b.ConstSuffix()
}

// Preamble returns the comment identifying the device and, for double precision, the pragma
// enabling the fp64 extension.
func (b *Builder[T]) Preamble(device *ocl.Device) string {
	var sb strings.Builder
	if device != nil {
		fmt.Fprintf(&sb, "// platform: %s device: %s\n\n", device.PlatformName, device.DeviceName)
	}
	if b.precision == dtypes.Float64 {
		sb.WriteString("#pragma OPENCL EXTENSION cl_khr_fp64 : enable\n\n")
	}
	return sb.String()
}

// SourcePath returns the path of the file used by ReuseSource and WriteSource.
func (b *Builder[T]) SourcePath(fileName string) string {
	if b.kernel == nil || b.kernel.SourceDirectory == "" {
		return fileName
	}
	return filepath.Join(b.kernel.SourceDirectory, fileName)
}

// ReuseSource reads a previously written source file instead of generating it.
func (b *Builder[T]) ReuseSource(fileName string) (string, error) {
	path := b.SourcePath(fileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", ocl.Wrapf(ocl.ErrConfiguration, err, "REUSE_SOURCE set, but failed to read kernel source from %q", path)
	}
	klog.V(1).Infof("reusing kernel source from %q", path)
	return string(content), nil
}

// WriteSource writes the generated source to a file, for inspection or later reuse.
func (b *Builder[T]) WriteSource(fileName, source string) error {
	path := b.SourcePath(fileName)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ocl.Wrapf(ocl.ErrConfiguration, err, "failed to create directory for kernel source %q", path)
		}
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return ocl.Wrapf(ocl.ErrConfiguration, err, "failed to write kernel source to %q", path)
	}
	klog.V(1).Infof("kernel source written to %q", path)
	return nil
}

// Generate returns the source produced by generate, unless the kernel parameters ask to reuse
// fileName. If WRITE_SOURCE is set the source is also written to fileName.
func (b *Builder[T]) Generate(fileName string, generate func() (string, error)) (string, error) {
	if b.kernel != nil && b.kernel.ReuseSource {
		return b.ReuseSource(fileName)
	}
	source, err := generate()
	if err != nil {
		return "", err
	}
	if b.kernel != nil && b.kernel.WriteSource {
		if err := b.WriteSource(fileName, source); err != nil {
			return "", err
		}
	}
	return source, nil
}
