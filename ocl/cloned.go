package ocl

import (
	"github.com/gomlx/sgstream/dtypes"
)

// ClonedBuffer keeps a full copy of the same content on each of a set of devices.
//
// The host content is staged once with SetHost, from the orchestrating goroutine. Afterwards
// each device's goroutine calls Sync for its own device index, which uploads the content only
// if that device's copy is stale. Sync for different indices may run concurrently.
type ClonedBuffer[T dtypes.Float] struct {
	devices []*Device
	buffers []*Buffer[T]
	host    []T
	version uint64
	synced  []uint64
}

// NewClonedBuffer creates an empty ClonedBuffer for devices.
func NewClonedBuffer[T dtypes.Float](devices []*Device) *ClonedBuffer[T] {
	c := &ClonedBuffer[T]{
		devices: devices,
		buffers: make([]*Buffer[T], len(devices)),
		synced:  make([]uint64, len(devices)),
	}
	for ii, device := range devices {
		c.buffers[ii] = NewBuffer[T](device)
	}
	return c
}

// SetHost stages the points [offsetStart, offsetEnd) of host, with the same layout options as
// Buffer.InitializeTo, and marks every device copy as stale.
func (c *ClonedBuffer[T]) SetHost(host []T, dim, offsetStart, offsetEnd int, storeStructOfArrays bool) error {
	if dim <= 0 || offsetStart < 0 || offsetEnd <= offsetStart {
		return Errorf(ErrInputSize, "ClonedBuffer.SetHost(dim=%d, offsetStart=%d, offsetEnd=%d): invalid range",
			dim, offsetStart, offsetEnd)
	}
	if len(host) < offsetEnd*dim {
		return Errorf(ErrInputSize, "ClonedBuffer.SetHost(dim=%d, offsetEnd=%d): host buffer has %d elements, %d required",
			dim, offsetEnd, len(host), offsetEnd*dim)
	}
	elements := (offsetEnd - offsetStart) * dim
	if len(c.host) != elements {
		c.host = make([]T, elements)
	}
	layout(c.host, host, dim, offsetStart, offsetEnd, storeStructOfArrays)
	c.version++
	return nil
}

// HostPointer returns the staged content. It is owned by the ClonedBuffer.
func (c *ClonedBuffer[T]) HostPointer() ([]T, error) {
	if c.host == nil {
		return nil, Errorf(ErrBufferState, "ClonedBuffer.HostPointer() called before SetHost")
	}
	return c.host, nil
}

// Size returns the number of elements staged.
func (c *ClonedBuffer[T]) Size() int {
	return len(c.host)
}

// Sync uploads the staged content to device deviceIndex if its copy is stale.
func (c *ClonedBuffer[T]) Sync(deviceIndex int) error {
	if c.host == nil {
		return Errorf(ErrBufferState, "ClonedBuffer.Sync(%d) called before SetHost", deviceIndex)
	}
	buffer := c.buffers[deviceIndex]
	if c.synced[deviceIndex] == c.version && buffer.IsInitialized() {
		return nil
	}
	if size, _ := buffer.Size(); !buffer.IsInitialized() || size != len(c.host) {
		if err := buffer.InitializeBuffer(len(c.host)); err != nil {
			return err
		}
	}
	copy(buffer.host, c.host)
	if err := buffer.WriteToBuffer(); err != nil {
		return err
	}
	c.synced[deviceIndex] = c.version
	return nil
}

// Buffer returns the device memory object of device deviceIndex.
func (c *ClonedBuffer[T]) Buffer(deviceIndex int) (Mem, error) {
	return c.buffers[deviceIndex].Buffer()
}

// Invalidate marks every device copy as stale, so the next Sync uploads again.
func (c *ClonedBuffer[T]) Invalidate() {
	clear(c.synced)
}

// Free releases every device copy and the staged content. It is idempotent.
func (c *ClonedBuffer[T]) Free() error {
	var firstErr error
	for _, buffer := range c.buffers {
		if err := buffer.FreeBuffer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.host = nil
	clear(c.synced)
	return firstErr
}
