package ocl

import (
	"runtime"
	"sync/atomic"

	"github.com/gomlx/sgstream/dtypes"
	"k8s.io/klog/v2"
)

// deviceMem holds a device allocation that requires clean up.
type deviceMem struct {
	queue Queue
	mem   Mem
}

var buffersAlive atomic.Int64

// BuffersAlive returns the number of device allocations currently held by the buffers of this package.
func BuffersAlive() int64 {
	return buffersAlive.Load()
}

func (m *deviceMem) allocate(sizeBytes int) error {
	if err := m.release(); err != nil {
		return err
	}
	mem, err := m.queue.CreateBuffer(sizeBytes)
	if err != nil {
		return err
	}
	m.mem = mem
	buffersAlive.Add(1)
	return nil
}

func (m *deviceMem) release() error {
	if m == nil || m.mem == nil {
		// Already released, no-op.
		return nil
	}
	err := m.queue.ReleaseBuffer(m.mem)
	m.mem = nil
	buffersAlive.Add(-1)
	return err
}

func newDeviceMem[H any](owner *H, device *Device) *deviceMem {
	m := &deviceMem{queue: device.queue}
	runtime.AddCleanup(owner, func(m *deviceMem) {
		if err := m.release(); err != nil {
			klog.Errorf("ocl: release of device buffer failed: %v", err)
		}
	}, m)
	return m
}

// Buffer is an array of T on one device, along with its host mirror.
//
// The device allocation is valid if and only if the buffer is initialized. A Buffer is owned by
// one goroutine at a time.
type Buffer[T dtypes.Float] struct {
	device      *Device
	mem         *deviceMem
	host        []T
	initialized bool
}

// NewBuffer creates an uninitialized Buffer for device.
func NewBuffer[T dtypes.Float](device *Device) *Buffer[T] {
	b := &Buffer[T]{device: device}
	b.mem = newDeviceMem(b, device)
	return b
}

// Device of the buffer.
func (b *Buffer[T]) Device() *Device {
	return b.device
}

// IsInitialized returns whether the buffer holds an allocation.
func (b *Buffer[T]) IsInitialized() bool {
	return b.initialized
}

func (b *Buffer[T]) checkInitialized(method string) error {
	if !b.initialized {
		return Errorf(ErrBufferState, "Buffer.%s() on device %s called before the buffer was initialized", method, b.device)
	}
	return nil
}

// Buffer returns the device memory object.
func (b *Buffer[T]) Buffer() (Mem, error) {
	if err := b.checkInitialized("Buffer"); err != nil {
		return nil, err
	}
	return b.mem.mem, nil
}

// Size returns the number of elements of the buffer.
func (b *Buffer[T]) Size() (int, error) {
	if err := b.checkInitialized("Size"); err != nil {
		return 0, err
	}
	return len(b.host), nil
}

// HostPointer returns the host mirror. It is owned by the buffer and valid until the next
// (re)initialization or FreeBuffer.
func (b *Buffer[T]) HostPointer() ([]T, error) {
	if err := b.checkInitialized("HostPointer"); err != nil {
		return nil, err
	}
	return b.host, nil
}

// InitializeBuffer allocates elements values on the host and on the device, freeing any
// previous allocation. The contents are zero on the host and undefined on the device.
func (b *Buffer[T]) InitializeBuffer(elements int) error {
	if elements <= 0 {
		return Errorf(ErrInputSize, "Buffer.InitializeBuffer(%d) on device %s: the number of elements must be positive",
			elements, b.device)
	}
	if err := b.FreeBuffer(); err != nil {
		return err
	}
	if err := b.mem.allocate(elements * dtypes.FromGenericsType[T]().Size()); err != nil {
		return DeviceErrorf(b.device, err, "failed to allocate buffer of %d elements", elements)
	}
	b.host = make([]T, elements)
	b.initialized = true
	return nil
}

// WriteToBuffer transfers the host mirror to the device, blocking until done.
func (b *Buffer[T]) WriteToBuffer() error {
	if err := b.checkInitialized("WriteToBuffer"); err != nil {
		return err
	}
	if err := b.device.queue.WriteBuffer(b.mem.mem, dtypes.ToRaw(b.host)); err != nil {
		return DeviceErrorf(b.device, err, "failed to write %d elements to the device", len(b.host))
	}
	return nil
}

// ReadFromBuffer transfers the device contents to the host mirror, blocking until done.
func (b *Buffer[T]) ReadFromBuffer() error {
	if err := b.checkInitialized("ReadFromBuffer"); err != nil {
		return err
	}
	if err := b.device.queue.ReadBuffer(b.mem.mem, dtypes.ToRaw(b.host)); err != nil {
		return DeviceErrorf(b.device, err, "failed to read %d elements from the device", len(b.host))
	}
	return nil
}

// FreeBuffer releases the device allocation and the host mirror. It is a no-op if the buffer is
// not initialized.
func (b *Buffer[T]) FreeBuffer() error {
	if !b.initialized {
		return nil
	}
	b.initialized = false
	b.host = nil
	if err := b.mem.release(); err != nil {
		return DeviceErrorf(b.device, err, "failed to release buffer")
	}
	return nil
}

// InitializeTo (re)initializes the buffer with the points [offsetStart, offsetEnd) of host,
// a row-major array of points with dim components each, and writes it to the device.
//
// With storeStructOfArrays false the layout is kept (array of structs):
// [p0.d0, p0.d1, ..., p1.d0, p1.d1, ...]. With storeStructOfArrays true it is transposed
// (struct of arrays): [d0 of all points, d1 of all points, ...].
//
// The device allocation is reused if the number of elements doesn't change.
func (b *Buffer[T]) InitializeTo(host []T, dim, offsetStart, offsetEnd int, storeStructOfArrays bool) error {
	if dim <= 0 || offsetStart < 0 || offsetEnd <= offsetStart {
		return Errorf(ErrInputSize, "Buffer.InitializeTo(dim=%d, offsetStart=%d, offsetEnd=%d) on device %s: invalid range",
			dim, offsetStart, offsetEnd, b.device)
	}
	if len(host) < offsetEnd*dim {
		return Errorf(ErrInputSize, "Buffer.InitializeTo(dim=%d, offsetEnd=%d) on device %s: host buffer has %d elements, %d required",
			dim, offsetEnd, b.device, len(host), offsetEnd*dim)
	}
	points := offsetEnd - offsetStart
	elements := points * dim
	if !b.initialized || len(b.host) != elements {
		if err := b.InitializeBuffer(elements); err != nil {
			return err
		}
	}
	layout(b.host, host, dim, offsetStart, offsetEnd, storeStructOfArrays)
	return b.WriteToBuffer()
}

// layout copies the points [offsetStart, offsetEnd) of src into dst, either as they are
// or transposed to struct of arrays.
func layout[T dtypes.Float](dst, src []T, dim, offsetStart, offsetEnd int, storeStructOfArrays bool) {
	if !storeStructOfArrays {
		copy(dst, src[offsetStart*dim:offsetEnd*dim])
		return
	}
	points := offsetEnd - offsetStart
	for point := range points {
		row := src[(offsetStart+point)*dim : (offsetStart+point+1)*dim]
		for d, value := range row {
			dst[d*points+point] = value
		}
	}
}
