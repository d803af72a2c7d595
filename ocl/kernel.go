package ocl

import (
	"runtime"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// Kernel is a compiled kernel on one device.
//
// Release it when no longer needed. It is also released when garbage collected.
type Kernel struct {
	wrapper *kernelWrapper
	device  *Device
}

// kernelWrapper holds the part of the Kernel that requires clean up.
type kernelWrapper struct {
	queue  Queue
	object KernelObject
}

func (w *kernelWrapper) Release() error {
	if w == nil || w.object == nil {
		// Already released, no-op.
		return nil
	}
	err := w.queue.ReleaseKernel(w.object)
	w.object = nil
	w.queue = nil
	kernelsAlive.Add(-1)
	return err
}

var kernelsAlive atomic.Int64

// KernelsAlive returns the number of kernels built and not yet released.
func KernelsAlive() int64 {
	return kernelsAlive.Load()
}

func newKernel(device *Device, object KernelObject) *Kernel {
	k := &Kernel{
		device:  device,
		wrapper: &kernelWrapper{queue: device.queue, object: object},
	}
	kernelsAlive.Add(1)
	runtime.AddCleanup(k, func(wrapper *kernelWrapper) {
		if err := wrapper.Release(); err != nil {
			klog.Errorf("ocl.Kernel.Release failed: %v", err)
		}
	}, k.wrapper)
	return k
}

// IsValid returns whether the kernel has not been released.
func (k *Kernel) IsValid() bool {
	return k != nil && k.wrapper != nil && k.wrapper.object != nil
}

// Device the kernel was built for.
func (k *Kernel) Device() *Device {
	return k.device
}

// EntryPoint is the name of the kernel function.
func (k *Kernel) EntryPoint() string {
	if !k.IsValid() {
		return ""
	}
	return k.wrapper.object.EntryPoint()
}

// SetArgs sets the kernel arguments in order. Each argument is a Mem, an int32 or an uint32.
func (k *Kernel) SetArgs(args ...any) error {
	if !k.IsValid() {
		return Errorf(ErrBufferState, "Kernel.SetArgs called on a released kernel")
	}
	for ii, arg := range args {
		if err := k.device.queue.SetKernelArg(k.wrapper.object, ii, arg); err != nil {
			return DeviceErrorf(k.device, err, "failed to set argument #%d of kernel %q", ii, k.EntryPoint())
		}
	}
	return nil
}

// Run enqueues the kernel over global work-items in work-groups of local work-items, waits for
// its completion and returns the device execution time in nanoseconds, as profiled by the queue.
func (k *Kernel) Run(global, local int) (deviceNanos uint64, err error) {
	if !k.IsValid() {
		return 0, Errorf(ErrBufferState, "Kernel.Run called on a released kernel")
	}
	entryPoint := k.EntryPoint()
	event, err := k.device.queue.EnqueueNDRange(k.wrapper.object, global, local)
	if err != nil {
		return 0, DeviceErrorf(k.device, err, "failed to enqueue kernel %q (global=%d, local=%d)", entryPoint, global, local)
	}
	defer func() {
		if releaseErr := event.Release(); releaseErr != nil && err == nil {
			err = DeviceErrorf(k.device, releaseErr, "failed to release event of kernel %q", entryPoint)
		}
	}()
	if err = event.Wait(); err != nil {
		return 0, DeviceErrorf(k.device, err, "kernel %q failed", entryPoint)
	}
	start, end, err := event.Profile()
	if err != nil {
		return 0, DeviceErrorf(k.device, err, "failed to read profiling information of kernel %q", entryPoint)
	}
	if end < start {
		return 0, nil
	}
	return end - start, nil
}

// Release the kernel. It is idempotent.
func (k *Kernel) Release() error {
	if !k.IsValid() {
		return nil
	}
	if err := k.wrapper.Release(); err != nil {
		return DeviceErrorf(k.device, err, "failed to release kernel")
	}
	return nil
}
