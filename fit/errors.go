package fit

import (
	"fmt"

	"github.com/pkg/errors"
)

// DefaultKernelCode is the exit code of a kernel failure that carries none.
const DefaultKernelCode = 5

// KernelError is a failure surfaced by the numeric kernel. Code is the
// kernel's own exit code.
type KernelError struct {
	Code int
	Err  error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel error %d: %s", e.Code, e.Err)
}

func (e *KernelError) Unwrap() error {
	return e.Err
}

// AsKernelError returns err as a KernelError, adding the default code when it
// is not one already.
func AsKernelError(err error) *KernelError {
	var kernelErr *KernelError
	if errors.As(err, &kernelErr) {
		return kernelErr
	}
	return &KernelError{Code: DefaultKernelCode, Err: err}
}

// wireError is a KernelError on its way from a worker to its sub-master.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (w *wireError) kernelError() *KernelError {
	return &KernelError{Code: w.Code, Err: errors.New(w.Message)}
}

// ErrStopped is returned by a prescan that StopFit interrupted.
var ErrStopped = errors.New("fit stopped")
