package native

import (
	"fmt"

	"github.com/gomlx/sgstream/ocl"
	"github.com/pkg/errors"
)

// withStatus returns an ocl.StatusError with code, keeping the message of the failed call.
// If code is not a failure status, fallback is used instead.
func withStatus(code, fallback int, err error, format string, args ...any) error {
	if code >= ocl.StatusSuccess {
		code = fallback
	}
	return ocl.StatusErrorf(code, "%s: %v", fmt.Sprintf(format, args...), errors.Cause(err))
}
