package ocl

import (
	"fmt"

	"github.com/gomlx/sgstream/config"
)

// Device is one compute device selected by the Manager, with its command queue.
//
// Devices are created once at discovery and are immutable afterwards. They are shared (not owned)
// by the kernels and buffers using them.
type Device struct {
	// Index of the device in the Manager's enumeration: platforms in backend order, then devices
	// in platform order.
	Index int

	PlatformID   int
	DeviceID     int
	PlatformName string
	DeviceName   string
	Type         DeviceType

	queue Queue
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	if d == nil {
		return "<nil>"
	}
	return fmt.Sprintf("#%d %q (platform #%d %q)", d.Index, d.DeviceName, d.PlatformID, d.PlatformName)
}

// Key returns the key of the device in the parameter tree.
func (d *Device) Key() config.DeviceKey {
	return config.DeviceKey{Platform: d.PlatformName, Device: d.DeviceName}
}

// Queue returns the device command queue.
func (d *Device) Queue() Queue {
	return d.queue
}

// Finish blocks until all commands enqueued on the device are completed.
func (d *Device) Finish() error {
	if err := d.queue.Finish(); err != nil {
		return DeviceErrorf(d, err, "failed to finish command queue")
	}
	return nil
}
