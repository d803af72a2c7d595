package ocl

import (
	"github.com/gomlx/sgstream/dtypes"
)

// StretchedBuffer is one host array shared by a set of devices, where each device holds on its
// memory only a window of it.
//
// Each device's goroutine only touches its own window (SetWindow, WriteWindow, ReadWindow with
// its own index). Windows of different devices must not overlap while in use, so they can be
// transferred concurrently.
type StretchedBuffer[T dtypes.Float] struct {
	devices []*Device
	host    []T
	windows []stretchedWindow
}

type stretchedWindow struct {
	start, end int
	allocated  int
	mem        *deviceMem
}

// NewStretchedBuffer creates a StretchedBuffer for devices, without host array nor windows.
func NewStretchedBuffer[T dtypes.Float](devices []*Device) *StretchedBuffer[T] {
	s := &StretchedBuffer[T]{
		devices: devices,
		windows: make([]stretchedWindow, len(devices)),
	}
	for ii, device := range devices {
		s.windows[ii].mem = newDeviceMem(s, device)
	}
	return s
}

// InitializeHost sizes the shared host array to elements values and zeroes it.
// It must not be called while windows are being transferred.
func (s *StretchedBuffer[T]) InitializeHost(elements int) error {
	if elements <= 0 {
		return Errorf(ErrInputSize, "StretchedBuffer.InitializeHost(%d): the number of elements must be positive", elements)
	}
	if len(s.host) != elements {
		s.host = make([]T, elements)
	} else {
		clear(s.host)
	}
	return nil
}

// HostPointer returns the shared host array.
func (s *StretchedBuffer[T]) HostPointer() ([]T, error) {
	if s.host == nil {
		return nil, Errorf(ErrBufferState, "StretchedBuffer.HostPointer() called before InitializeHost")
	}
	return s.host, nil
}

// SetWindow maps [start, end) of the host array to device deviceIndex. The device allocation
// is reused if the window length doesn't change.
func (s *StretchedBuffer[T]) SetWindow(deviceIndex, start, end int) error {
	device := s.devices[deviceIndex]
	if s.host == nil {
		return Errorf(ErrBufferState, "StretchedBuffer.SetWindow(%d) on device %s called before InitializeHost", deviceIndex, device)
	}
	if start < 0 || end <= start || end > len(s.host) {
		return Errorf(ErrInputSize, "StretchedBuffer.SetWindow(%d, %d, %d) on device %s: invalid window for a buffer of %d elements",
			deviceIndex, start, end, device, len(s.host))
	}
	w := &s.windows[deviceIndex]
	if length := end - start; w.allocated != length {
		w.allocated = 0
		if err := w.mem.allocate(length * dtypes.FromGenericsType[T]().Size()); err != nil {
			return DeviceErrorf(device, err, "failed to allocate window of %d elements", length)
		}
		w.allocated = length
	}
	w.start, w.end = start, end
	return nil
}

// Window returns the range of the host array mapped to device deviceIndex.
func (s *StretchedBuffer[T]) Window(deviceIndex int) (start, end int) {
	w := &s.windows[deviceIndex]
	return w.start, w.end
}

func (s *StretchedBuffer[T]) checkWindow(method string, deviceIndex int) error {
	if s.windows[deviceIndex].allocated == 0 {
		return Errorf(ErrBufferState, "StretchedBuffer.%s(%d) on device %s called before SetWindow",
			method, deviceIndex, s.devices[deviceIndex])
	}
	return nil
}

// Buffer returns the device memory object holding the window of device deviceIndex.
func (s *StretchedBuffer[T]) Buffer(deviceIndex int) (Mem, error) {
	if err := s.checkWindow("Buffer", deviceIndex); err != nil {
		return nil, err
	}
	return s.windows[deviceIndex].mem.mem, nil
}

// WriteWindow transfers the window of device deviceIndex from the host array to the device.
func (s *StretchedBuffer[T]) WriteWindow(deviceIndex int) error {
	if err := s.checkWindow("WriteWindow", deviceIndex); err != nil {
		return err
	}
	w := &s.windows[deviceIndex]
	device := s.devices[deviceIndex]
	if err := device.queue.WriteBuffer(w.mem.mem, dtypes.ToRaw(s.host[w.start:w.end])); err != nil {
		return DeviceErrorf(device, err, "failed to write window [%d, %d)", w.start, w.end)
	}
	return nil
}

// ReadWindow transfers the window of device deviceIndex from the device to the host array.
func (s *StretchedBuffer[T]) ReadWindow(deviceIndex int) error {
	if err := s.checkWindow("ReadWindow", deviceIndex); err != nil {
		return err
	}
	w := &s.windows[deviceIndex]
	device := s.devices[deviceIndex]
	if err := device.queue.ReadBuffer(w.mem.mem, dtypes.ToRaw(s.host[w.start:w.end])); err != nil {
		return DeviceErrorf(device, err, "failed to read window [%d, %d)", w.start, w.end)
	}
	return nil
}

// Free releases all device windows and the host array. It is idempotent.
func (s *StretchedBuffer[T]) Free() error {
	var firstErr error
	for ii := range s.windows {
		w := &s.windows[ii]
		if err := w.mem.release(); err != nil && firstErr == nil {
			firstErr = DeviceErrorf(s.devices[ii], err, "failed to release window")
		}
		w.start, w.end, w.allocated = 0, 0, 0
	}
	s.host = nil
	return firstErr
}
