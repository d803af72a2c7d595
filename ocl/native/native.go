//go:build opencl

// Package native implements ocl.Backend on the system's OpenCL implementation, using
// github.com/jgillich/go-opencl. It is only built with the "opencl" build tag; without it New
// returns an error.
package native

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/gomlx/sgstream/ocl"
	"github.com/jgillich/go-opencl/cl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Available reports whether the OpenCL backend was compiled in.
const Available = true

// Backend implements ocl.Backend with the OpenCL platforms installed in the system.
type Backend struct {
	mu        sync.Mutex
	platforms []*cl.Platform
	devices   [][]*cl.Device
}

var _ ocl.Backend = (*Backend)(nil)

// New enumerates the OpenCL platforms and devices of the system.
func New() (*Backend, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, ocl.Wrapf(ocl.ErrDeviceRuntime, statusErrorf(ocl.StatusPlatformNotFoundKHR, err, "clGetPlatformIDs"), "failed to get OpenCL platforms")
	}
	b := &Backend{platforms: platforms, devices: make([][]*cl.Device, len(platforms))}
	for ii, platform := range platforms {
		b.devices[ii], err = platform.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			return nil, ocl.Wrapf(ocl.ErrDeviceRuntime, statusErrorf(ocl.StatusDeviceNotFound, err, "clGetDeviceIDs"),
				"failed to get devices of OpenCL platform %q", platform.Name())
		}
		klog.V(1).Infof("OpenCL platform %q (%s): %d devices", platform.Name(), platform.Version(), len(b.devices[ii]))
	}
	return b, nil
}

// Name implements ocl.Backend.
func (b *Backend) Name() string {
	return "opencl"
}

func deviceType(device *cl.Device) ocl.DeviceType {
	t := device.Type()
	switch {
	case t&cl.DeviceTypeGPU != 0:
		return ocl.DeviceTypeGPU
	case t&cl.DeviceTypeCPU != 0:
		return ocl.DeviceTypeCPU
	case t&cl.DeviceTypeAccelerator != 0:
		return ocl.DeviceTypeAccelerator
	}
	return ocl.DeviceTypeOther
}

// clStatuses maps the errors of the cl package to their OpenCL status codes.
var clStatuses = []struct {
	err  error
	code int
}{
	{cl.ErrDeviceNotFound, ocl.StatusDeviceNotFound},
	{cl.ErrDeviceNotAvailable, ocl.StatusDeviceNotAvailable},
	{cl.ErrCompilerNotAvailable, ocl.StatusCompilerNotAvailable},
	{cl.ErrMemObjectAllocationFailure, ocl.StatusMemObjectAllocationFailure},
	{cl.ErrOutOfResources, ocl.StatusOutOfResources},
	{cl.ErrOutOfHostMemory, ocl.StatusOutOfHostMemory},
	{cl.ErrProfilingInfoNotAvailable, ocl.StatusProfilingInfoNotAvailable},
	{cl.ErrBuildProgramFailure, ocl.StatusBuildProgramFailure},
	{cl.ErrInvalidValue, ocl.StatusInvalidValue},
	{cl.ErrInvalidPlatform, ocl.StatusInvalidPlatform},
	{cl.ErrInvalidDevice, ocl.StatusInvalidDevice},
	{cl.ErrInvalidContext, ocl.StatusInvalidContext},
	{cl.ErrInvalidCommandQueue, ocl.StatusInvalidCommandQueue},
	{cl.ErrInvalidMemObject, ocl.StatusInvalidMemObject},
	{cl.ErrInvalidKernelName, ocl.StatusInvalidKernelName},
	{cl.ErrInvalidKernel, ocl.StatusInvalidKernel},
	{cl.ErrInvalidArgIndex, ocl.StatusInvalidArgIndex},
	{cl.ErrInvalidArgValue, ocl.StatusInvalidArgValue},
	{cl.ErrInvalidKernelArgs, ocl.StatusInvalidKernelArgs},
	{cl.ErrInvalidWorkGroupSize, ocl.StatusInvalidWorkGroupSize},
	{cl.ErrInvalidEvent, ocl.StatusInvalidEvent},
	{cl.ErrInvalidBufferSize, ocl.StatusInvalidBufferSize},
	{cl.ErrInvalidGlobalWorkSize, ocl.StatusInvalidGlobalWorkSize},
}

// clStatus returns the OpenCL status code of an error returned by the cl package, or
// ocl.StatusSuccess if it isn't known.
func clStatus(err error) int {
	var other cl.ErrOther
	if errors.As(err, &other) {
		return int(other)
	}
	for _, entry := range clStatuses {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ocl.StatusSuccess
}

// statusErrorf wraps a cl error into an ocl.StatusError, using fallback if its code is unknown.
func statusErrorf(fallback int, err error, format string, args ...any) error {
	return withStatus(clStatus(err), fallback, err, format, args...)
}

// Platforms implements ocl.Backend.
func (b *Backend) Platforms() ([]ocl.PlatformDescription, error) {
	descriptions := make([]ocl.PlatformDescription, len(b.platforms))
	for ii, platform := range b.platforms {
		descriptions[ii].Name = strings.TrimSpace(platform.Name())
		for _, device := range b.devices[ii] {
			descriptions[ii].Devices = append(descriptions[ii].Devices, ocl.DeviceDescription{
				Name: strings.TrimSpace(device.Name()),
				Type: deviceType(device),
			})
		}
	}
	return descriptions, nil
}

// OpenQueue implements ocl.Backend.
func (b *Backend) OpenQueue(platformID, deviceID int) (ocl.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if platformID < 0 || platformID >= len(b.platforms) {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidPlatform, "invalid platform id %d", platformID)
	}
	if deviceID < 0 || deviceID >= len(b.devices[platformID]) {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidDevice, "invalid device id %d", deviceID)
	}
	device := b.devices[platformID][deviceID]
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, statusErrorf(ocl.StatusInvalidContext, err, "failed to create context for device %q", device.Name())
	}
	queue, err := context.CreateCommandQueue(device, cl.CommandQueueProfilingEnable)
	if err != nil {
		context.Release()
		return nil, statusErrorf(ocl.StatusInvalidCommandQueue, err, "failed to create command queue for device %q", device.Name())
	}
	return &commandQueue{device: device, context: context, queue: queue}, nil
}

type commandQueue struct {
	device  *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue
}

type memObject struct {
	mem       *cl.MemObject
	sizeBytes int
}

func (m *memObject) SizeBytes() int {
	return m.sizeBytes
}

type kernelObject struct {
	program    *cl.Program
	kernel     *cl.Kernel
	entryPoint string
}

func (k *kernelObject) EntryPoint() string {
	return k.entryPoint
}

type event struct {
	event *cl.Event
}

func (e *event) Wait() error {
	if err := cl.WaitForEvents([]*cl.Event{e.event}); err != nil {
		return statusErrorf(ocl.StatusOutOfResources, err, "failed waiting for event")
	}
	return nil
}

func (e *event) Profile() (start, end uint64, err error) {
	startNanos, err := e.event.GetEventProfilingInfo(cl.ProfilingInfoCommandStart)
	if err != nil {
		return 0, 0, statusErrorf(ocl.StatusProfilingInfoNotAvailable, err, "failed to read command start")
	}
	endNanos, err := e.event.GetEventProfilingInfo(cl.ProfilingInfoCommandEnd)
	if err != nil {
		return 0, 0, statusErrorf(ocl.StatusProfilingInfoNotAvailable, err, "failed to read command end")
	}
	return uint64(startNanos), uint64(endNanos), nil
}

func (e *event) Release() error {
	e.event.Release()
	return nil
}

func toMem(mem ocl.Mem) (*memObject, error) {
	m, ok := mem.(*memObject)
	if !ok || m.mem == nil {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidMemObject, "invalid memory object %T", mem)
	}
	return m, nil
}

func toKernel(object ocl.KernelObject) (*kernelObject, error) {
	k, ok := object.(*kernelObject)
	if !ok || k.kernel == nil {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidKernel, "invalid kernel object %T", object)
	}
	return k, nil
}

func (q *commandQueue) CreateBuffer(sizeBytes int) (ocl.Mem, error) {
	mem, err := q.context.CreateEmptyBuffer(cl.MemReadWrite, sizeBytes)
	if err != nil {
		return nil, statusErrorf(ocl.StatusMemObjectAllocationFailure, err, "failed to allocate %d bytes", sizeBytes)
	}
	return &memObject{mem: mem, sizeBytes: sizeBytes}, nil
}

func (q *commandQueue) WriteBuffer(mem ocl.Mem, data []byte) error {
	m, err := toMem(mem)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	ev, err := q.queue.EnqueueWriteBuffer(m.mem, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return statusErrorf(ocl.StatusOutOfResources, err, "failed to write %d bytes", len(data))
	}
	ev.Release()
	return nil
}

func (q *commandQueue) ReadBuffer(mem ocl.Mem, data []byte) error {
	m, err := toMem(mem)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	ev, err := q.queue.EnqueueReadBuffer(m.mem, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return statusErrorf(ocl.StatusOutOfResources, err, "failed to read %d bytes", len(data))
	}
	ev.Release()
	return nil
}

func (q *commandQueue) ReleaseBuffer(mem ocl.Mem) error {
	m, err := toMem(mem)
	if err != nil {
		return err
	}
	m.mem.Release()
	m.mem = nil
	return nil
}

func (q *commandQueue) BuildKernel(source, entryPoint, options string) (ocl.KernelObject, error) {
	program, err := q.context.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, statusErrorf(ocl.StatusBuildProgramFailure, err, "failed to create program")
	}
	if err = program.BuildProgram([]*cl.Device{q.device}, options); err != nil {
		program.Release()
		return nil, statusErrorf(ocl.StatusBuildProgramFailure, err, "failed to build program with options %q", options)
	}
	kernel, err := program.CreateKernel(entryPoint)
	if err != nil {
		program.Release()
		return nil, statusErrorf(ocl.StatusInvalidKernelName, err, "failed to create kernel %q", entryPoint)
	}
	return &kernelObject{program: program, kernel: kernel, entryPoint: entryPoint}, nil
}

func (q *commandQueue) SetKernelArg(object ocl.KernelObject, index int, value any) error {
	k, err := toKernel(object)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case *memObject:
		err = k.kernel.SetArg(index, v.mem)
	case int32, uint32:
		err = k.kernel.SetArg(index, v)
	default:
		return ocl.StatusErrorf(ocl.StatusInvalidArgValue, "unsupported argument #%d of type %T", index, value)
	}
	if err != nil {
		return statusErrorf(ocl.StatusInvalidArgValue, err, "failed to set argument #%d", index)
	}
	return nil
}

func (q *commandQueue) EnqueueNDRange(object ocl.KernelObject, global, local int) (ocl.Event, error) {
	k, err := toKernel(object)
	if err != nil {
		return nil, err
	}
	ev, err := q.queue.EnqueueNDRangeKernel(k.kernel, nil, []int{global}, []int{local}, nil)
	if err != nil {
		return nil, statusErrorf(ocl.StatusOutOfResources, err, "failed to enqueue kernel %q", k.entryPoint)
	}
	return &event{event: ev}, nil
}

func (q *commandQueue) ReleaseKernel(object ocl.KernelObject) error {
	k, err := toKernel(object)
	if err != nil {
		return err
	}
	k.kernel.Release()
	k.program.Release()
	k.kernel, k.program = nil, nil
	return nil
}

func (q *commandQueue) Finish() error {
	if err := q.queue.Finish(); err != nil {
		return statusErrorf(ocl.StatusOutOfResources, err, "clFinish failed")
	}
	return nil
}

func (q *commandQueue) Release() error {
	q.queue.Release()
	q.context.Release()
	return nil
}
