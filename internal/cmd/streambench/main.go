// streambench runs Mult and MultTranspose of a regular sparse grid on a random dataset, and
// reports the time of each call, the device times and, for the linear scheduling, how the
// partitions of work among devices evolve.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/gomlx/sgstream/ocl/host"
	"github.com/gomlx/sgstream/ocl/native"
	"github.com/gomlx/sgstream/sgrid"
	"github.com/gomlx/sgstream/streaming"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagBackend    = flag.String("backend", "host", "Backend: \"host\" (emulated devices) or \"opencl\" (requires building with -tags opencl).")
	flagDevices    = flag.Int("devices", 2, "Number of emulated devices, for -backend=host.")
	flagSlowdown   = flag.String("slowdown", "", "Comma separated slowdown factor of each emulated device, e.g. \"1,3\". Emulated devices then report 1ns per work-item times the slowdown.")
	flagParams     = flag.String("params", "", "YAML file with the parameter tree. If empty, default parameters are used.")
	flagSaveParams = flag.String("save_params", "", "If set, the parameter tree, augmented with defaults, is saved to this file.")
	flagPrecision  = flag.String("precision", "", "Overrides INTERNAL_PRECISION: float32 or float64.")
	flagScheduling = flag.String("scheduling", "", "Overrides LOAD_BALANCING: queue or linear.")
	flagDims       = flag.Int("dims", 4, "Dimension of the grid and data.")
	flagLevel      = flag.Int("level", 5, "Level of the regular sparse grid.")
	flagRows       = flag.Int("rows", 10000, "Number of random data points.")
	flagIterations = flag.Int("iterations", 5, "Number of Mult/MultTranspose calls.")
	flagCheck      = flag.Bool("check", true, "Compare the results of the first iteration with the reference implementation.")
)

func newBackend() ocl.Backend {
	switch *flagBackend {
	case "host":
		if *flagSlowdown == "" {
			return host.NewDefault(*flagDevices)
		}
		platform := host.PlatformSpec{Name: host.PlatformName}
		for ii, factor := range strings.Split(*flagSlowdown, ",") {
			platform.Devices = append(platform.Devices, host.DeviceSpec{
				Name:             fmt.Sprintf("virtual-cpu-%d", ii),
				NanosPerWorkItem: 1,
				Slowdown:         must.M1(strconv.ParseFloat(strings.TrimSpace(factor), 64)),
			})
		}
		return host.New(platform)
	case "opencl":
		return must.M1(native.New())
	}
	klog.Fatalf("unknown backend %q", *flagBackend)
	return nil
}

func maxRelativeError(want, got []float64) float64 {
	var maxErr float64
	for ii := range want {
		maxErr = max(maxErr, math.Abs(want[ii]-got[ii])/max(1, math.Abs(want[ii])))
	}
	return maxErr
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `streambench measures the streaming sparse grid operations.

$ streambench -devices=2 -slowdown=1,3 -scheduling=linear -dims=5 -level=6 -rows=100000

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
	if *flagScheduling != "" {
		params.LoadBalancing = must.M1(config.SchedulingString(*flagScheduling))
	}

	manager := must.M1(ocl.NewManager(newBackend(), params))
	defer func() { must.M(manager.Release()) }()
	for _, device := range manager.Devices() {
		fmt.Printf("device %s\n", device)
	}

	grid := must.M1(sgrid.RegularGrid(*flagDims, *flagLevel))
	dataset := sgrid.RandomDataMatrix(*flagRows, *flagDims, 1)
	fmt.Printf("grid: %d points, dataset: %d points of dimension %d\n", grid.Size(), dataset.Rows(), dataset.Cols())

	op := must.M1(streaming.New(manager, grid, dataset, params))
	defer func() { must.M(op.Release()) }()
	if *flagSaveParams != "" {
		must.M(params.Save(*flagSaveParams))
	}
	fmt.Printf("precision %s, scheduling %s, build times %v\n", params.Precision, op.Scheduling(), op.BuildDurations())

	alpha := make([]float64, grid.Size())
	for ii := range alpha {
		alpha[ii] = 1 / float64(ii+1)
	}
	source := make([]float64, dataset.Rows())
	for ii := range source {
		source[ii] = float64(ii%7) - 3
	}
	multResult := make([]float64, dataset.Rows())
	transposeResult := make([]float64, grid.Size())
	for iteration := range *flagIterations {
		must.M(op.Mult(alpha, multResult))
		multSeconds, multTimes := op.Duration(), op.DeviceTimes()
		multPartitions, transposePartitions := op.Partitions()
		must.M(op.MultTranspose(source, transposeResult))
		fmt.Printf("#%d: mult %.4fs (devices %v), multTranspose %.4fs (devices %v)\n",
			iteration, multSeconds, multTimes, op.Duration(), op.DeviceTimes())
		if multPartitions != nil {
			fmt.Printf("\tpartitions for the next call: mult %.3f, multTranspose %.3f\n", multPartitions, transposePartitions)
		}

		if iteration == 0 && *flagCheck {
			wantMult := must.M1(sgrid.Mult(grid, dataset, alpha))
			wantTranspose := must.M1(sgrid.MultTranspose(grid, dataset, source))
			fmt.Printf("\tmax relative error: mult %.3g, multTranspose %.3g\n",
				maxRelativeError(wantMult, multResult), maxRelativeError(wantTranspose, transposeResult))
		}
	}
}
