package config

import (
	"github.com/pkg/errors"
)

// Default values filled in by Kernel.AugmentDefaults.
const (
	DefaultLocalSize          = 128
	DefaultDataBlockSize      = 1
	DefaultTransGridBlockSize = 1
	DefaultTransDataBlockSize = 1
	DefaultScheduleSize       = 102400
	DefaultMaxDimUnroll       = 10
)

// Kernel holds the tuning parameters of one kernel on one device.
//
// It is read-only once the operation using it is constructed. Zero values are "not set" and are
// replaced by AugmentDefaults.
type Kernel struct {
	// LocalSize is the work-group size. The generated kernels require it exactly.
	LocalSize int `yaml:"LOCAL_SIZE,omitempty"`

	// DataBlockSize is the number of data points each work-item of the mult kernel evaluates.
	DataBlockSize int `yaml:"KERNEL_DATA_BLOCK_SIZE,omitempty"`

	// TransGridBlockSize is the number of grid points each work-group of the transposed kernel
	// accumulates.
	TransGridBlockSize int `yaml:"KERNEL_TRANS_GRID_BLOCK_SIZE,omitempty"`

	// TransDataBlockSize is the number of data points a work-item of the transposed kernel
	// loads per iteration.
	TransDataBlockSize int `yaml:"KERNEL_TRANS_DATA_BLOCK_SIZE,omitempty"`

	// ScheduleSize is the number of data points (mult) or grid points (multTranspose) a device
	// takes from the work dispenser at a time.
	ScheduleSize int `yaml:"KERNEL_SCHEDULE_SIZE,omitempty"`

	StoreData      StoreMode `yaml:"KERNEL_STORE_DATA"`
	MaxDimUnroll   int       `yaml:"KERNEL_MAX_DIM_UNROLL,omitempty"`
	UseLocalMemory bool      `yaml:"KERNEL_USE_LOCAL_MEMORY,omitempty"`

	Verbose     bool `yaml:"VERBOSE,omitempty"`
	WriteSource bool `yaml:"WRITE_SOURCE,omitempty"`
	ReuseSource bool `yaml:"REUSE_SOURCE,omitempty"`

	// SourceDirectory is where WriteSource writes and ReuseSource reads kernel files.
	// Empty means the current directory.
	SourceDirectory string `yaml:"SOURCE_DIRECTORY,omitempty"`
}

// DefaultKernel returns a Kernel with all defaults set.
func DefaultKernel() *Kernel {
	k := &Kernel{}
	k.AugmentDefaults()
	return k
}

// AugmentDefaults sets every parameter not yet set to its default value.
func (k *Kernel) AugmentDefaults() {
	setDefault(&k.LocalSize, DefaultLocalSize)
	setDefault(&k.DataBlockSize, DefaultDataBlockSize)
	setDefault(&k.TransGridBlockSize, DefaultTransGridBlockSize)
	setDefault(&k.TransDataBlockSize, DefaultTransDataBlockSize)
	setDefault(&k.ScheduleSize, DefaultScheduleSize)
	setDefault(&k.MaxDimUnroll, DefaultMaxDimUnroll)
}

func setDefault(v *int, value int) {
	if *v == 0 {
		*v = value
	}
}

// Clone returns a copy of the Kernel.
func (k *Kernel) Clone() *Kernel {
	c := *k
	return &c
}

// Validate checks values that are independent of the problem size.
func (k *Kernel) Validate() error {
	if k.LocalSize <= 0 {
		return errors.Errorf("LOCAL_SIZE must be positive, got %d", k.LocalSize)
	}
	if k.DataBlockSize <= 0 {
		return errors.Errorf("KERNEL_DATA_BLOCK_SIZE must be positive, got %d", k.DataBlockSize)
	}
	if k.TransGridBlockSize <= 0 {
		return errors.Errorf("KERNEL_TRANS_GRID_BLOCK_SIZE must be positive, got %d", k.TransGridBlockSize)
	}
	if k.TransDataBlockSize <= 0 {
		return errors.Errorf("KERNEL_TRANS_DATA_BLOCK_SIZE must be positive, got %d", k.TransDataBlockSize)
	}
	if k.ScheduleSize < 0 {
		return errors.Errorf("KERNEL_SCHEDULE_SIZE must not be negative, got %d", k.ScheduleSize)
	}
	if k.MaxDimUnroll <= 0 {
		return errors.Errorf("KERNEL_MAX_DIM_UNROLL must be positive, got %d", k.MaxDimUnroll)
	}
	if !k.StoreData.IsAStoreMode() {
		return errors.Errorf("illegal value for KERNEL_STORE_DATA: %s, valid values are %v",
			k.StoreData, StoreModeStrings())
	}
	return nil
}
