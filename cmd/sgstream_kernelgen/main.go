// sgstream_kernelgen writes the OpenCL sources of the streaming kernels for one device
// configuration, so they can be inspected, hand-tuned and later loaded with REUSE_SOURCE.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/gomlx/sgstream/streaming"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagParams    = flag.String("params", "", "YAML file with the parameter tree. If empty, default parameters are used.")
	flagPlatform  = flag.String("platform", "Host Emulator", "Platform name of the device node to use in the parameter tree.")
	flagDevice    = flag.String("device", "virtual-cpu", "Device name of the device node to use in the parameter tree.")
	flagDims      = flag.Int("dims", 2, "Dimension of the data.")
	flagPrecision = flag.String("precision", "", "Overrides INTERNAL_PRECISION: float32 or float64.")
	flagOutput    = flag.String("output", ".", "Directory where to write the kernel sources.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `sgstream_kernelgen writes the generated mult and multTranspose kernels of the
device given by -platform and -device, with the kernel parameters found in the
parameter tree (or the defaults).

$ sgstream_kernelgen -params=params.yaml -dims=5 -output=/tmp/kernels

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	params := config.New()
	if *flagParams != "" {
		params = must.M1(config.Load(*flagParams))
	}
	if *flagPrecision != "" {
		params.Precision = must.M1(dtypes.ParsePrecision(*flagPrecision))
	}
	key := config.DeviceKey{Platform: *flagPlatform, Device: *flagDevice}
	params.AugmentDefaults(streaming.KernelName, []config.DeviceKey{key})
	kernel := params.Kernel(key, streaming.KernelName).Clone()
	kernel.WriteSource = true
	kernel.ReuseSource = false
	kernel.SourceDirectory = *flagOutput

	device := &ocl.Device{PlatformName: *flagPlatform, DeviceName: *flagDevice}
	switch params.Precision {
	case dtypes.Float32:
		generate[float32](device, kernel)
	case dtypes.Float64:
		generate[float64](device, kernel)
	default:
		klog.Fatalf("invalid precision %s", params.Precision)
	}
}

func generate[T float32 | float64](device *ocl.Device, kernel *config.Kernel) {
	mult := must.M1(streaming.NewSourceBuilderMult[T](device, kernel, *flagDims))
	_ = must.M1(mult.GenerateSource())
	fmt.Printf("\twrote %s\n", mult.SourcePath(streaming.MultSourceFile))

	transpose := must.M1(streaming.NewSourceBuilderMultTranspose[T](device, kernel, *flagDims))
	_ = must.M1(transpose.GenerateSource())
	fmt.Printf("\twrote %s\n", transpose.SourcePath(streaming.MultTransposeSourceFile))
}
