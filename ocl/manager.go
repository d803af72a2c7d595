package ocl

import (
	"strings"
	"sync"
	"time"

	"github.com/gomlx/sgstream/config"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Manager selects the devices to use from a Backend, following the parameters PLATFORM,
// DEVICE_TYPE, SELECT_SPECIFIC_DEVICE and MAX_DEVICES, and builds kernels for them.
type Manager struct {
	backend Backend
	params  *config.Parameters
	devices []*Device

	buildOptions string

	// mu serializes kernel builds, some implementations are not thread-safe in the compiler.
	// It also guards released.
	mu       sync.Mutex
	released bool
}

// NewManager discovers the platforms of backend and opens a queue on each selected device.
//
// It fails with an ErrConfiguration error if no device matches the parameters.
func NewManager(backend Backend, params *config.Parameters) (*Manager, error) {
	if params == nil {
		params = config.New()
	}
	m := &Manager{backend: backend, params: params}
	if params.OptimizationsEnabled() {
		m.buildOptions = params.OptimizationFlags
	} else {
		m.buildOptions = "-cl-opt-disable"
	}

	platforms, err := backend.Platforms()
	if err != nil {
		return nil, Wrapf(ErrDeviceRuntime, err, "failed to list platforms of backend %q", backend.Name())
	}
	if len(platforms) == 0 {
		return nil, Errorf(ErrConfiguration, "backend %q has no OpenCL platforms", backend.Name())
	}

	platformIDs, err := selectPlatforms(platforms, params.Platform)
	if err != nil {
		return nil, err
	}
	deviceType := strings.ToLower(params.DeviceType)
	var candidates []*Device
	for _, platformID := range platformIDs {
		platform := platforms[platformID]
		for deviceID, description := range platform.Devices {
			if deviceType != "" && deviceType != "all" && deviceType != string(description.Type) {
				continue
			}
			candidates = append(candidates, &Device{
				PlatformID:   platformID,
				DeviceID:     deviceID,
				PlatformName: platform.Name,
				DeviceName:   description.Name,
				Type:         description.Type,
			})
		}
	}
	if params.SelectSpecificDevice != nil {
		selected := *params.SelectSpecificDevice
		if selected < 0 || selected >= len(candidates) {
			return nil, Errorf(ErrConfiguration, "SELECT_SPECIFIC_DEVICE=%d, but only %d devices available",
				selected, len(candidates))
		}
		candidates = candidates[selected : selected+1]
	}
	if params.MaxDevices > 0 && len(candidates) > params.MaxDevices {
		candidates = candidates[:params.MaxDevices]
	}
	if len(candidates) == 0 {
		return nil, Errorf(ErrConfiguration, "no devices found matching PLATFORM=%q DEVICE_TYPE=%q",
			params.Platform, params.DeviceType)
	}

	for ii, device := range candidates {
		device.Index = ii
		device.queue, err = backend.OpenQueue(device.PlatformID, device.DeviceID)
		if err != nil {
			_ = m.Release()
			return nil, DeviceErrorf(device, err, "failed to create command queue")
		}
		m.devices = append(m.devices, device)
		klog.V(1).Infof("selected OpenCL device %s", device)
	}
	return m, nil
}

func selectPlatforms(platforms []PlatformDescription, selection string) ([]int, error) {
	switch selection {
	case "", "all":
		ids := make([]int, len(platforms))
		for ii := range ids {
			ids[ii] = ii
		}
		return ids, nil
	case "first":
		return []int{0}, nil
	}
	names := make([]string, 0, len(platforms))
	for ii, platform := range platforms {
		if platform.Name == selection {
			return []int{ii}, nil
		}
		names = append(names, platform.Name)
	}
	return nil, Errorf(ErrConfiguration, "PLATFORM=%q not found, available platforms: %q", selection, names)
}

// Devices returns the selected devices. The returned slice is owned by the Manager, don't change it.
func (m *Manager) Devices() []*Device {
	return m.devices
}

// DeviceKeys returns the parameter tree keys of the selected devices.
func (m *Manager) DeviceKeys() []config.DeviceKey {
	keys := make([]config.DeviceKey, len(m.devices))
	for ii, device := range m.devices {
		keys[ii] = device.Key()
	}
	return keys
}

// Parameters returns the parameter tree the Manager was created with.
func (m *Manager) Parameters() *config.Parameters {
	return m.params
}

// Backend returns the backend used by the Manager.
func (m *Manager) Backend() Backend {
	return m.backend
}

// BuildOptions returns the options passed to the OpenCL compiler.
func (m *Manager) BuildOptions() string {
	return m.buildOptions
}

// BuildKernel compiles source for device and returns the kernel entryPoint.
// kernelParams may be nil, it's only used for logging.
func (m *Manager) BuildKernel(source string, device *Device, kernelParams *config.Kernel, entryPoint string) (*Kernel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil, errors.Errorf("Manager.BuildKernel(%q) called after Release", entryPoint)
	}
	start := time.Now()
	object, err := device.queue.BuildKernel(source, entryPoint, m.buildOptions)
	if err != nil {
		return nil, DeviceErrorf(device, err, "failed to build kernel %q", entryPoint)
	}
	if kernelParams != nil && kernelParams.Verbose {
		klog.Infof("built kernel %q for device %s in %s", entryPoint, device, time.Since(start))
	}
	return newKernel(device, object), nil
}

// Release the command queues of all devices. It is idempotent.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		// Already released, no-op.
		return nil
	}
	m.released = true
	var firstErr error
	for _, device := range m.devices {
		if device.queue == nil {
			continue
		}
		if err := device.queue.Release(); err != nil && firstErr == nil {
			firstErr = DeviceErrorf(device, err, "failed to release command queue")
		}
	}
	return firstErr
}
