package ipc

import "fmt"

// authRejectedError signals the host refused the presented token.
type authRejectedError struct {
	reason string
}

func (e authRejectedError) Error() string {
	return fmt.Sprintf("ipc auth rejected: %s", e.reason)
}

// IsAuthRejected reports whether err means the host refused the auth token.
func IsAuthRejected(err error) bool {
	_, ok := err.(authRejectedError)
	return ok
}

// callTimeoutError signals a tool round-trip exceeded its deadline.
type callTimeoutError struct {
	tool string
}

func (e callTimeoutError) Error() string {
	return fmt.Sprintf("ipc call %q timed out", e.tool)
}

// IsCallTimeout reports whether err means a tool call round-trip timed out.
func IsCallTimeout(err error) bool {
	_, ok := err.(callTimeoutError)
	return ok
}

// connClosedError signals the channel went away under a pending operation.
type connClosedError struct{}

func (connClosedError) Error() string { return "ipc connection closed" }

// IsConnClosed reports whether err means the channel closed mid-operation.
func IsConnClosed(err error) bool {
	_, ok := err.(connClosedError)
	return ok
}
