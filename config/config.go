// Package config holds the parameter tree that drives device selection, kernel generation and
// scheduling.
//
// The tree mirrors the device topology: top-level keys apply to the whole operation, and
// PLATFORMS/<platform name>/DEVICES/<device name>/KERNELS/<kernel name> holds the parameters of
// one kernel on one kind of device. It is stored as YAML.
package config

import (
	"os"

	"github.com/gomlx/sgstream/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Parameters is the root of the parameter tree.
type Parameters struct {
	// Platform selects which platforms are used: "all" (default), "first", or a platform name.
	Platform string `yaml:"PLATFORM,omitempty"`

	// DeviceType restricts the devices used: "all" (default), "gpu", "cpu" or "accelerator".
	DeviceType string `yaml:"DEVICE_TYPE,omitempty"`

	// MaxDevices limits the number of devices used, 0 means no limit.
	MaxDevices int `yaml:"MAX_DEVICES,omitempty"`

	// SelectSpecificDevice, if set, selects only the device with this index in the enumeration
	// of the selected platforms.
	SelectSpecificDevice *int `yaml:"SELECT_SPECIFIC_DEVICE,omitempty"`

	// EnableOptimizations defaults to true. If false kernels are built with "-cl-opt-disable".
	EnableOptimizations *bool  `yaml:"ENABLE_OPTIMIZATIONS,omitempty"`
	OptimizationFlags   string `yaml:"OPTIMIZATION_FLAGS,omitempty"`

	Precision     dtypes.Precision `yaml:"INTERNAL_PRECISION,omitempty"`
	LoadBalancing Scheduling       `yaml:"LOAD_BALANCING,omitempty"`
	Verbose       bool             `yaml:"VERBOSE,omitempty"`

	Platforms map[string]*Platform `yaml:"PLATFORMS,omitempty"`
}

// Platform node of the parameter tree.
type Platform struct {
	Devices map[string]*Device `yaml:"DEVICES,omitempty"`
}

// Device node of the parameter tree.
type Device struct {
	Kernels map[string]*Kernel `yaml:"KERNELS,omitempty"`
}

// DeviceKey identifies a device node in the tree: devices with the same platform and device
// names share their parameters.
type DeviceKey struct {
	Platform, Device string
}

// New returns an empty parameter tree.
func New() *Parameters {
	return &Parameters{}
}

// Parse a YAML document into a parameter tree.
func Parse(content []byte) (*Parameters, error) {
	p := New()
	if err := yaml.Unmarshal(content, p); err != nil {
		return nil, errors.Wrap(err, "failed to parse parameters")
	}
	return p, nil
}

// Load the parameter tree from a YAML file.
func Load(path string) (*Parameters, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read parameters from %q", path)
	}
	p, err := Parse(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in file %q", path)
	}
	return p, nil
}

// Marshal the parameter tree to YAML.
func (p *Parameters) Marshal() ([]byte, error) {
	content, err := yaml.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize parameters")
	}
	return content, nil
}

// Save the parameter tree as a YAML file.
func (p *Parameters) Save(path string) error {
	content, err := p.Marshal()
	if err != nil {
		return err
	}
	if err = os.WriteFile(path, content, 0644); err != nil {
		return errors.Wrapf(err, "failed to write parameters to %q", path)
	}
	return nil
}

// OptimizationsEnabled returns the value of ENABLE_OPTIMIZATIONS, true if not set.
func (p *Parameters) OptimizationsEnabled() bool {
	return p.EnableOptimizations == nil || *p.EnableOptimizations
}

// Kernel returns the parameters of the named kernel on the given device, or nil if the tree has
// no such node.
func (p *Parameters) Kernel(key DeviceKey, kernelName string) *Kernel {
	platform, found := p.Platforms[key.Platform]
	if !found || platform == nil {
		return nil
	}
	device, found := platform.Devices[key.Device]
	if !found || device == nil {
		return nil
	}
	return device.Kernels[kernelName]
}

// SetKernel sets the parameters of the named kernel on the given device, creating the
// intermediary nodes as needed.
func (p *Parameters) SetKernel(key DeviceKey, kernelName string, k *Kernel) {
	if p.Platforms == nil {
		p.Platforms = make(map[string]*Platform)
	}
	platform := p.Platforms[key.Platform]
	if platform == nil {
		platform = &Platform{}
		p.Platforms[key.Platform] = platform
	}
	if platform.Devices == nil {
		platform.Devices = make(map[string]*Device)
	}
	device := platform.Devices[key.Device]
	if device == nil {
		device = &Device{}
		platform.Devices[key.Device] = device
	}
	if device.Kernels == nil {
		device.Kernels = make(map[string]*Kernel)
	}
	device.Kernels[kernelName] = k
}

// AugmentDefaults fills in every missing top-level parameter, and makes sure every given device
// has a node for kernelName with all its parameters set.
//
// A top-level VERBOSE turns on VERBOSE for every kernel.
func (p *Parameters) AugmentDefaults(kernelName string, devices []DeviceKey) {
	if p.Platform == "" {
		p.Platform = "all"
	}
	if p.DeviceType == "" {
		p.DeviceType = "all"
	}
	if p.Precision == dtypes.InvalidPrecision {
		p.Precision = dtypes.Float64
	}
	for _, key := range devices {
		k := p.Kernel(key, kernelName)
		if k == nil {
			k = &Kernel{}
			p.SetKernel(key, kernelName, k)
			klog.V(1).Infof("no parameters for kernel %q on platform %q device %q, using defaults",
				kernelName, key.Platform, key.Device)
		}
		k.AugmentDefaults()
		if p.Verbose {
			k.Verbose = true
		}
	}
}
