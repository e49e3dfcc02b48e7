package surfacerelay

import "github.com/pkg/errors"

// Error kinds. Errors returned by BufferRelay wrap one of these; use
// errors.Cause or errors.Is to classify them.
var (
	// Queue construction or configuration failed. The relay is unusable.
	ErrInit = errors.New("surfacerelay: init failed")

	// A required handle was nil.
	ErrInvalidArgument = errors.New("surfacerelay: invalid argument")

	// A queue call returned non-success.
	ErrOperation = errors.New("surfacerelay: queue operation failed")
)
