package streaming

import (
	"time"

	"github.com/gomlx/sgstream/balance"
	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/gomlx/sgstream/sgrid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Operation evaluates a sparse grid function (Mult) and its transpose (MultTranspose) on a fixed
// dataset, using all devices of an ocl.Manager.
//
// It is created Prepared for the current grid. If the grid is changed (e.g. refined) Prepare must
// be called before the next Mult or MultTranspose. Size changes are detected automatically, but
// changes that keep the number of grid points are not.
//
// An Operation is not safe for concurrent use.
type Operation struct {
	manager    *ocl.Manager
	params     *config.Parameters
	devices    []*ocl.Device
	scheduling config.Scheduling
	verbose    bool

	engine engine

	duration    time.Duration
	deviceTimes []time.Duration
	released    bool
}

// engine is the precision specific part of the Operation.
type engine interface {
	prepare() error
	mult(alpha, result []float64) (deviceSeconds []float64, err error)
	multTranspose(source, result []float64) (deviceSeconds []float64, err error)
	buildDurations() []time.Duration
	partitions() (mult, multTranspose []float64)
	release() error
}

// New creates the Operation for grid and dataset (one data point per row), on the devices of
// manager.
//
// params is the parameter tree, if nil the manager's is used. Missing kernel parameters are
// filled in with their defaults (the tree is modified). The precision of the computation is
// selected by INTERNAL_PRECISION.
//
// It fails with an ocl.ErrConfiguration error for invalid parameters, and an ocl.ErrInputSize
// error if grid and dataset don't match.
func New(manager *ocl.Manager, grid *sgrid.Storage, dataset *sgrid.DataMatrix, params *config.Parameters) (*Operation, error) {
	if params == nil {
		params = manager.Parameters()
	}
	if dataset.Rows() == 0 {
		return nil, ocl.Errorf(ocl.ErrInputSize, "streaming.New: empty dataset")
	}
	if grid.Dims() != dataset.Cols() {
		return nil, ocl.Errorf(ocl.ErrInputSize, "streaming.New: grid has %d dimensions but dataset has %d columns",
			grid.Dims(), dataset.Cols())
	}
	params.AugmentDefaults(KernelName, manager.DeviceKeys())
	if !params.LoadBalancing.IsAScheduling() {
		return nil, ocl.Errorf(ocl.ErrConfiguration, "invalid LOAD_BALANCING=%s, valid values are %v",
			params.LoadBalancing, config.SchedulingStrings())
	}
	op := &Operation{
		manager:    manager,
		params:     params,
		devices:    manager.Devices(),
		scheduling: params.LoadBalancing,
		verbose:    params.Verbose,
	}
	op.deviceTimes = make([]time.Duration, len(op.devices))

	var err error
	switch params.Precision {
	case dtypes.Float32:
		op.engine, err = newOperation[float32](op, grid, dataset)
	case dtypes.Float64:
		op.engine, err = newOperation[float64](op, grid, dataset)
	default:
		err = ocl.Errorf(ocl.ErrConfiguration, "invalid INTERNAL_PRECISION=%s", params.Precision)
	}
	if err != nil {
		return nil, err
	}
	if err = op.engine.prepare(); err != nil {
		_ = op.engine.release()
		return nil, err
	}
	return op, nil
}

// Devices used by the Operation, in the order of DeviceTimes and BuildDurations.
func (op *Operation) Devices() []*ocl.Device {
	return op.devices
}

// Scheduling returns how work is distributed among devices.
func (op *Operation) Scheduling() config.Scheduling {
	return op.scheduling
}

// Prepare rebuilds the grid tables from the grid and marks them stale on every device.
func (op *Operation) Prepare() error {
	if op.released {
		return ocl.Errorf(ocl.ErrBufferState, "Operation.Prepare called after Release")
	}
	return op.engine.prepare()
}

// Mult computes result[j] = sum_i alpha[i] * phi_i(x_j) for every data point x_j.
// alpha must have one value per grid point, and result one value per data point.
func (op *Operation) Mult(alpha, result []float64) error {
	if op.released {
		return ocl.Errorf(ocl.ErrBufferState, "Operation.Mult called after Release")
	}
	start := time.Now()
	deviceSeconds, err := op.engine.mult(alpha, result)
	if err != nil {
		return err
	}
	op.finishCall("mult", start, deviceSeconds)
	return nil
}

// MultTranspose computes result[i] = sum_j source[j] * phi_i(x_j) for every grid point.
// source must have one value per data point, and result one value per grid point.
func (op *Operation) MultTranspose(source, result []float64) error {
	if op.released {
		return ocl.Errorf(ocl.ErrBufferState, "Operation.MultTranspose called after Release")
	}
	start := time.Now()
	deviceSeconds, err := op.engine.multTranspose(source, result)
	if err != nil {
		return err
	}
	op.finishCall("multTranspose", start, deviceSeconds)
	return nil
}

func (op *Operation) finishCall(name string, start time.Time, deviceSeconds []float64) {
	op.duration = time.Since(start)
	for ii, seconds := range deviceSeconds {
		op.deviceTimes[ii] = time.Duration(seconds * float64(time.Second))
	}
	if op.verbose {
		klog.Infof("%s: %s, device times %v", name, op.duration, op.deviceTimes)
	}
}

// Duration returns the wall time in seconds of the last Mult or MultTranspose.
func (op *Operation) Duration() float64 {
	return op.duration.Seconds()
}

// DeviceTimes returns the device execution time of each device in the last Mult or MultTranspose.
func (op *Operation) DeviceTimes() []time.Duration {
	return append([]time.Duration(nil), op.deviceTimes...)
}

// BuildDurations returns the time each device spent generating and compiling its kernels.
func (op *Operation) BuildDurations() []time.Duration {
	return op.engine.buildDurations()
}

// Partitions returns the current fractions of work per device of the static load balancers.
// They are nil unless LOAD_BALANCING is linear.
func (op *Operation) Partitions() (mult, multTranspose []float64) {
	return op.engine.partitions()
}

// Release frees all device resources of the Operation. It is idempotent.
func (op *Operation) Release() error {
	if op.released {
		// Already released, no-op.
		return nil
	}
	op.released = true
	return op.engine.release()
}

// operation implements engine for precision T.
type operation[T dtypes.Float] struct {
	op      *Operation
	grid    *sgrid.Storage
	dims    int
	devices []*ocl.Device

	datasetSize, datasetSizePadded int
	gridSize, gridSizePadded       int
	dataPadding, gridPadding       int
	scheduleSizes                  []int
	prepared                       bool

	// Grid tables, and the inputs of the mult kernels.
	tables                     *gridTables[T]
	level, index, mask, offset *ocl.ClonedBuffer[T]
	alpha                      *ocl.ClonedBuffer[T]
	multResult                 *ocl.StretchedBuffer[T]
	multKernels                []*KernelMult[T]
	multQueue                  *balance.QueueLoadBalancer
	multLinear                 *balance.LinearLoadBalancer

	// Padded row-major dataset, and the inputs of the multTranspose kernels.
	dataset          []T
	data, source     *ocl.ClonedBuffer[T]
	transposeResult  *ocl.StretchedBuffer[T]
	transposeKernels []*KernelMultTranspose[T]
	transposeQueue   *balance.QueueLoadBalancer
	transposeLinear  *balance.LinearLoadBalancer
}

func newOperation[T dtypes.Float](op *Operation, grid *sgrid.Storage, dataset *sgrid.DataMatrix) (_ *operation[T], err error) {
	o := &operation[T]{
		op:          op,
		grid:        grid,
		dims:        dataset.Cols(),
		devices:     op.devices,
		datasetSize: dataset.Rows(),
		dataPadding: 1,
		gridPadding: 1,
	}
	defer func() {
		if err == nil {
			return
		}
		// Executors of the devices before the failing one are already created.
		if releaseErr := o.release(); releaseErr != nil {
			klog.Errorf("streaming: failed to release partially created operation: %+v", releaseErr)
		}
	}()
	for ii, device := range o.devices {
		params := op.params.Kernel(device.Key(), KernelName).Clone()
		mult, err := NewKernelMult[T](device, ii, o.dims, op.manager, params)
		if err != nil {
			return nil, err
		}
		o.multKernels = append(o.multKernels, mult)
		transpose, err := NewKernelMultTranspose[T](device, ii, o.dims, op.manager, params)
		if err != nil {
			return nil, err
		}
		o.transposeKernels = append(o.transposeKernels, transpose)
		o.scheduleSizes = append(o.scheduleSizes, params.ScheduleSize)
		o.dataPadding = lcm(o.dataPadding, lcm(mult.BlockSize(), transpose.DataBlockSize()))
		o.gridPadding = lcm(o.gridPadding, transpose.GridBlockSize()*params.LocalSize)
	}
	klog.V(1).Infof("streaming: %d devices, data padding %d, grid padding %d", len(o.devices), o.dataPadding, o.gridPadding)

	// Pad the dataset repeating the last data point.
	o.datasetSizePadded = balance.RoundUp(o.datasetSize, o.dataPadding)
	o.dataset = make([]T, o.datasetSizePadded*o.dims)
	for row := range o.datasetSizePadded {
		src := dataset.Row(min(row, o.datasetSize-1))
		for d, value := range src {
			o.dataset[row*o.dims+d] = T(value)
		}
	}

	o.level = ocl.NewClonedBuffer[T](o.devices)
	o.index = ocl.NewClonedBuffer[T](o.devices)
	o.mask = ocl.NewClonedBuffer[T](o.devices)
	o.offset = ocl.NewClonedBuffer[T](o.devices)
	o.alpha = ocl.NewClonedBuffer[T](o.devices)
	o.multResult = ocl.NewStretchedBuffer[T](o.devices)
	o.data = ocl.NewClonedBuffer[T](o.devices)
	o.source = ocl.NewClonedBuffer[T](o.devices)
	o.transposeResult = ocl.NewStretchedBuffer[T](o.devices)

	// The transposed kernel reads the whole dataset, one dimension after the other.
	if err := o.data.SetHost(o.dataset, o.dims, 0, o.datasetSizePadded, true); err != nil {
		return nil, err
	}

	switch op.scheduling {
	case config.SchedulingQueue:
		o.multQueue = &balance.QueueLoadBalancer{}
		o.transposeQueue = &balance.QueueLoadBalancer{}
	case config.SchedulingLinear:
		if o.multLinear, err = balance.NewLinearLoadBalancer(o.devices); err != nil {
			return nil, err
		}
		if o.transposeLinear, err = balance.NewLinearLoadBalancer(o.devices); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func (o *operation[T]) prepare() error {
	o.gridSize = o.grid.Size()
	if o.gridSize == 0 {
		return ocl.Errorf(ocl.ErrInputSize, "streaming: empty grid")
	}
	o.gridSizePadded = balance.RoundUp(o.gridSize, o.gridPadding)
	o.tables = newGridTables[T](o.grid, o.gridSizePadded)
	for _, table := range []struct {
		buffer *ocl.ClonedBuffer[T]
		host   []T
	}{{o.level, o.tables.level}, {o.index, o.tables.index}, {o.mask, o.tables.mask}, {o.offset, o.tables.offset}} {
		if err := table.buffer.SetHost(table.host, o.dims, 0, o.gridSizePadded, false); err != nil {
			return err
		}
	}
	for ii := range o.devices {
		o.multKernels[ii].ResetKernel()
		o.transposeKernels[ii].ResetKernel()
	}
	o.prepared = true
	klog.V(1).Infof("streaming: prepared grid of %d points (padded to %d)", o.gridSize, o.gridSizePadded)
	return nil
}

// prepareIfChanged re-prepares the operation if the number of grid points changed.
func (o *operation[T]) prepareIfChanged() error {
	if o.prepared && o.grid.Size() == o.gridSize {
		return nil
	}
	return o.prepare()
}

// fanOut runs fn for every device in its own goroutine and returns the error of the lowest
// device index, if any.
func (o *operation[T]) fanOut(fn func(deviceIndex int) (float64, error)) ([]float64, error) {
	deviceSeconds := make([]float64, len(o.devices))
	deviceErrs := make([]error, len(o.devices))
	var g errgroup.Group
	for ii := range o.devices {
		g.Go(func() error {
			deviceSeconds[ii], deviceErrs[ii] = fn(ii)
			return deviceErrs[ii]
		})
	}
	if g.Wait() == nil {
		return deviceSeconds, nil
	}
	for _, err := range deviceErrs {
		if err != nil {
			return nil, err
		}
	}
	return nil, errors.New("streaming: unexpected error in device fan-out")
}

// segmentSources returns the SegmentSource of each device for the range [0, end).
func (o *operation[T]) segmentSources(queue *balance.QueueLoadBalancer, linear *balance.LinearLoadBalancer,
	scheduleSizes []int, end, blockSize int) ([]SegmentSource, error) {
	sources := make([]SegmentSource, len(o.devices))
	if linear != nil {
		segments, err := linear.PartitionSegments(0, end, blockSize)
		if err != nil {
			return nil, err
		}
		for ii, segment := range segments {
			sources[ii] = NewStaticSegment(segment.Start, segment.End)
		}
		return sources, nil
	}
	if err := queue.Initialize(scheduleSizes[0], 0, end, blockSize); err != nil {
		return nil, err
	}
	for ii := range sources {
		sources[ii] = &sizedSegments{queue: queue, scheduleSize: scheduleSizes[ii]}
	}
	return sources, nil
}

// sizedSegments takes segments of the device's schedule size from a shared dispenser.
type sizedSegments struct {
	queue        *balance.QueueLoadBalancer
	scheduleSize int
}

// NextSegment implements SegmentSource.
func (s *sizedSegments) NextSegment() (balance.Segment, bool) {
	return s.queue.NextSegmentSized(s.scheduleSize)
}

func (o *operation[T]) mult(alpha, result []float64) ([]float64, error) {
	if err := o.prepareIfChanged(); err != nil {
		return nil, err
	}
	if len(alpha) != o.gridSize {
		return nil, ocl.Errorf(ocl.ErrInputSize, "Mult: alpha has %d values for %d grid points", len(alpha), o.gridSize)
	}
	if len(result) != o.datasetSize {
		return nil, ocl.Errorf(ocl.ErrInputSize, "Mult: result has %d values for %d data points", len(result), o.datasetSize)
	}
	alphaPadded := make([]T, o.gridSizePadded)
	for ii, value := range alpha {
		alphaPadded[ii] = T(value)
	}
	if err := o.alpha.SetHost(alphaPadded, 1, 0, o.gridSizePadded, false); err != nil {
		return nil, err
	}
	if err := o.multResult.InitializeHost(o.datasetSizePadded); err != nil {
		return nil, err
	}
	sources, err := o.segmentSources(o.multQueue, o.multLinear, o.scheduleSizes, o.datasetSizePadded, o.dataPadding)
	if err != nil {
		return nil, err
	}
	in := &multInputs[T]{
		level: o.level, index: o.index, mask: o.mask, offset: o.offset, alpha: o.alpha,
		dataset:   o.dataset,
		result:    o.multResult,
		startGrid: 0,
		endGrid:   o.gridSizePadded,
	}
	deviceSeconds, err := o.fanOut(func(deviceIndex int) (float64, error) {
		return o.multKernels[deviceIndex].Mult(in, sources[deviceIndex])
	})
	if err != nil {
		return nil, err
	}
	if o.multLinear != nil {
		if err := o.multLinear.Update(deviceSeconds); err != nil {
			return nil, err
		}
	}
	host, err := o.multResult.HostPointer()
	if err != nil {
		return nil, err
	}
	for ii := range result {
		result[ii] = float64(host[ii])
	}
	return deviceSeconds, nil
}

func (o *operation[T]) multTranspose(source, result []float64) ([]float64, error) {
	if err := o.prepareIfChanged(); err != nil {
		return nil, err
	}
	if len(source) != o.datasetSize {
		return nil, ocl.Errorf(ocl.ErrInputSize, "MultTranspose: source has %d values for %d data points", len(source), o.datasetSize)
	}
	if len(result) != o.gridSize {
		return nil, ocl.Errorf(ocl.ErrInputSize, "MultTranspose: result has %d values for %d grid points", len(result), o.gridSize)
	}
	sourcePadded := make([]T, o.datasetSizePadded)
	for ii, value := range source {
		sourcePadded[ii] = T(value)
	}
	if err := o.source.SetHost(sourcePadded, 1, 0, o.datasetSizePadded, false); err != nil {
		return nil, err
	}
	if err := o.transposeResult.InitializeHost(o.gridSizePadded); err != nil {
		return nil, err
	}
	sources, err := o.segmentSources(o.transposeQueue, o.transposeLinear, o.scheduleSizes, o.gridSizePadded, o.gridPadding)
	if err != nil {
		return nil, err
	}
	in := &multTransposeInputs[T]{
		level: o.tables.level, index: o.tables.index, mask: o.tables.mask, offset: o.tables.offset,
		data:       o.data,
		source:     o.source,
		result:     o.transposeResult,
		startData:  0,
		endData:    o.datasetSizePadded,
		sourceSize: o.datasetSizePadded,
	}
	deviceSeconds, err := o.fanOut(func(deviceIndex int) (float64, error) {
		return o.transposeKernels[deviceIndex].MultTranspose(in, sources[deviceIndex])
	})
	if err != nil {
		return nil, err
	}
	if o.transposeLinear != nil {
		if err := o.transposeLinear.Update(deviceSeconds); err != nil {
			return nil, err
		}
	}
	host, err := o.transposeResult.HostPointer()
	if err != nil {
		return nil, err
	}
	for ii := range result {
		result[ii] = float64(host[ii])
	}
	return deviceSeconds, nil
}

func (o *operation[T]) buildDurations() []time.Duration {
	durations := make([]time.Duration, len(o.devices))
	for ii := range o.devices {
		durations[ii] = o.multKernels[ii].BuildDuration() + o.transposeKernels[ii].BuildDuration()
	}
	return durations
}

func (o *operation[T]) partitions() (mult, multTranspose []float64) {
	if o.multLinear == nil {
		return nil, nil
	}
	return o.multLinear.Partitions(), o.transposeLinear.Partitions()
}

func (o *operation[T]) release() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for ii := range o.multKernels {
		keep(o.multKernels[ii].Release())
	}
	for ii := range o.transposeKernels {
		keep(o.transposeKernels[ii].Release())
	}
	for _, buffer := range []*ocl.ClonedBuffer[T]{o.level, o.index, o.mask, o.offset, o.alpha, o.data, o.source} {
		if buffer != nil {
			keep(buffer.Free())
		}
	}
	for _, buffer := range []*ocl.StretchedBuffer[T]{o.multResult, o.transposeResult} {
		if buffer != nil {
			keep(buffer.Free())
		}
	}
	return firstErr
}
