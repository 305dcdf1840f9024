package fit

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/jobspec"
)

// ValidateOptions rejects combinations of analysis options that cannot run
// together. Every conflict is reported; the first one leads the message.
func ValidateOptions(params jobspec.Parameters, datasetCount int) error {
	var result *multierror.Error

	if params.MeniscusPoints > 1 && datasetCount > 1 {
		result = multierror.Append(result, &jobspec.ValidationError{
			Message: fmt.Sprintf("Meniscus fit is incompatible with a global fit of %d datasets", datasetCount),
		})
	}
	if params.MeniscusPoints > 1 && params.MCIterations > 1 {
		result = multierror.Append(result, &jobspec.ValidationError{
			Message: "Meniscus fit is incompatible with Monte Carlo iterations",
		})
	}
	if params.MCIterations > 1 && params.NoiseEnabled() {
		result = multierror.Append(result, &jobspec.ValidationError{
			Message: "Monte Carlo iterations are incompatible with noise computation",
		})
	}
	if datasetCount > 1 && params.NoiseEnabled() {
		result = multierror.Append(result, &jobspec.ValidationError{
			Message: "Global fit is incompatible with noise computation",
		})
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		return strings.Join(messages, "; ")
	}
	return result
}

// CandidateCount is the number of models a single iteration evaluates.
func CandidateCount(params jobspec.Parameters, buckets []jobspec.Bucket) int {
	switch {
	case params.Analysis.PopulationStyle():
		return max(1, params.Population)
	case params.Analysis == jobspec.PCSA:
		return max(1, params.VariationsCount) * max(1, params.VariationsCount)
	default:
		return len(grid.Lattice(buckets, params.SGridPoints, params.Axis2GridPoints, 0))
	}
}
