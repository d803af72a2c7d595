package host

import (
	"strings"
	"sync"

	"github.com/gomlx/sgstream/dtypes"
	"github.com/pkg/errors"
)

// Program is what the emulator "compiles": the source text and options given to BuildKernel.
type Program struct {
	Source     string
	EntryPoint string
	Options    string

	// Precision of the kernel: Float64 if the source enables the cl_khr_fp64 extension.
	Precision dtypes.Precision
}

// KernelFunc emulates one launch of a kernel.
type KernelFunc func(launch *Launch) error

// KernelFactory returns the emulation of program, or an error if the emulation doesn't
// support it.
type KernelFactory func(program Program) (KernelFunc, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]KernelFactory)
)

// RegisterKernel registers the emulation of the kernels with the given entry point name.
// It is usually called from an init() function. Registering the same name twice replaces the
// previous factory.
func RegisterKernel(entryPoint string, factory KernelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[entryPoint] = factory
}

// IsRegistered reports whether a factory is registered for entryPoint.
func IsRegistered(entryPoint string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, found := registry[entryPoint]
	return found
}

func lookupKernel(entryPoint string) (KernelFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, found := registry[entryPoint]
	if !found {
		return nil, errors.Errorf("no emulation registered for kernel %q", entryPoint)
	}
	return factory, nil
}

func newProgram(source, entryPoint, options string) Program {
	p := Program{Source: source, EntryPoint: entryPoint, Options: options, Precision: dtypes.Float32}
	if strings.Contains(source, "cl_khr_fp64") {
		p.Precision = dtypes.Float64
	}
	return p
}
