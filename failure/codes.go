/*
Package failure funnels every fatal condition of a job through one abort path.

Only the supervisor reports the abort message. Every rank then waits at a
barrier, and no rank returns before all of them have arrived; each one returns
an ExitError carrying the supervisor's exit code.
*/
package failure

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/jobspec"
)

const (
	CodeSuccess     = 0
	CodeParse       = 1
	CodeData        = 2
	CodeValidation  = 3
	CodeInterrupted = 4
	CodeInternal    = 6
	// CodeReduced is a success whose Monte Carlo iterations were cut to fit
	// the wall-time limit.
	CodeReduced = 99
)

// ErrInterrupted ends a job stopped by a signal.
var ErrInterrupted = errors.New("Job interrupted")

// ExitError is how a rank ends after an abort.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("aborted with code %d: %s", e.Code, e.Message)
}

// CodeFor maps an error to its abort code.
func CodeFor(err error) int {
	var (
		exitErr       *ExitError
		parseErr      *jobspec.ParseError
		dataErr       *jobspec.DataError
		validationErr *jobspec.ValidationError
		kernelErr     *fit.KernelError
	)
	switch {
	case err == nil:
		return CodeSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &parseErr):
		return CodeParse
	case errors.As(err, &dataErr):
		return CodeData
	case errors.As(err, &validationErr):
		return CodeValidation
	case errors.As(err, &kernelErr):
		if kernelErr.Code == 0 {
			return fit.DefaultKernelCode
		}
		return kernelErr.Code
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return CodeInterrupted
	default:
		return CodeInternal
	}
}

// MessageFor is the text an abort reports for err. Validation failures report
// only the message of the first conflict.
func MessageFor(err error) string {
	var (
		exitErr       *ExitError
		validationErr *jobspec.ValidationError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Message
	case errors.As(err, &validationErr):
		return validationErr.Message
	default:
		return err.Error()
	}
}
