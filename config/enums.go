package config

// StoreMode selects how a generated kernel keeps the per work-item values it reuses across the
// inner loop: in a private array, in individually named registers, or read through the global pointer.
type StoreMode int

//go:generate go tool enumer -type=StoreMode -trimprefix=Store -transform=lower -text enums.go

const (
	StoreArray StoreMode = iota
	StoreRegister
	StorePointer
)

// Scheduling selects how work is distributed among devices.
//
//   - SchedulingQueue: devices pull fixed size segments from a shared dispenser until it is empty.
//   - SchedulingLinear: each call is split statically, proportional to the throughput measured
//     on the previous calls.
type Scheduling int

//go:generate go tool enumer -type=Scheduling -trimprefix=Scheduling -transform=lower -text enums.go

const (
	SchedulingQueue Scheduling = iota
	SchedulingLinear
)
