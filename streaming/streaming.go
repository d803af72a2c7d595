// Package streaming implements the multi-device evaluation of sparse grid functions with the
// modified linear basis: Operation.Mult evaluates the function on every point of a dataset and
// Operation.MultTranspose computes its transpose.
//
// Each device runs kernels generated for its own configuration (see SourceBuilderMult and
// SourceBuilderMultTranspose), and the work is split among devices either dynamically with a
// balance.QueueLoadBalancer or statically with a balance.LinearLoadBalancer.
package streaming

import (
	"github.com/gomlx/sgstream/config"
	"github.com/gomlx/sgstream/ocl"
)

// KernelName is the name of the kernel node in the parameter tree holding the configuration of
// both kernels of the operation.
const KernelName = "StreamingModOCLMaskMultiPlatform"

// Entry points of the generated kernels.
const (
	MultEntryPoint          = "multOCLMask"
	MultTransposeEntryPoint = "multTransOCLMask"
)

// File names used by WRITE_SOURCE and REUSE_SOURCE.
const (
	MultSourceFile          = "streamingModOCLMask_mult.cl"
	MultTransposeSourceFile = "streamingModOCLMask_multTranspose.cl"
)

// validateKernel checks the kernel parameters against the problem dimension. All failures are
// configuration errors.
func validateKernel(device *ocl.Device, kernel *config.Kernel, dims int) error {
	if kernel == nil {
		return ocl.Errorf(ocl.ErrConfiguration, "no kernel configuration for device %s", device)
	}
	if dims <= 0 {
		return ocl.Errorf(ocl.ErrConfiguration, "invalid number of dimensions %d", dims)
	}
	if err := kernel.Validate(); err != nil {
		return ocl.Wrapf(ocl.ErrConfiguration, err, "invalid configuration of kernel %q for device %s", KernelName, device)
	}
	if kernel.StoreData == config.StoreRegister && kernel.MaxDimUnroll < dims {
		return ocl.Errorf(ocl.ErrConfiguration,
			"KERNEL_STORE_DATA=register requires KERNEL_MAX_DIM_UNROLL >= dimension of the data (%d), got %d, for device %s",
			dims, kernel.MaxDimUnroll, device)
	}
	return nil
}
