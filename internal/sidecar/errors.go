package sidecar

import "fmt"

// binaryNotFoundError signals the configured sidecar executable could not be
// resolved, directly or via PATH.
type binaryNotFoundError struct{ bin string }

func (e binaryNotFoundError) Error() string {
	return fmt.Sprintf("sidecar binary not found: %s", e.bin)
}

// IsBinaryNotFound reports whether err indicates a missing sidecar executable.
func IsBinaryNotFound(err error) bool {
	_, ok := err.(binaryNotFoundError)
	return ok
}

// startTimeoutError signals the child never became ready within the start
// timeout. The child has already been killed by the time this surfaces.
type startTimeoutError struct{ url string }

func (e startTimeoutError) Error() string {
	return fmt.Sprintf("sidecar not ready in time: %s", e.url)
}

// IsStartTimeout reports whether err indicates a readiness timeout.
func IsStartTimeout(err error) bool {
	_, ok := err.(startTimeoutError)
	return ok
}
