package fit

import (
	"strconv"

	"github.com/tedsuo/fitmesh/jobspec"
)

// Fingerprint is the textual form of the nine values that define a fit
// configuration: analysis subtype, s range, second axis range, second axis
// increment, variation count, noise flags and curve resolution. A prescan can
// only be resumed under an identical fingerprint.
type Fingerprint [9]string

func NewFingerprint(params jobspec.Parameters, region jobspec.Bucket) Fingerprint {
	increment := region.Axis2Max - region.Axis2Min
	if params.Axis2GridPoints > 1 {
		increment /= float64(params.Axis2GridPoints - 1)
	}
	return Fingerprint{
		subtype(params),
		formatFloat(region.SMin),
		formatFloat(region.SMax),
		formatFloat(region.Axis2Min),
		formatFloat(region.Axis2Max),
		formatFloat(increment),
		strconv.Itoa(params.VariationsCount),
		strconv.Itoa(params.NoiseFlags()),
		strconv.Itoa(params.CurveResolution),
	}
}

func subtype(params jobspec.Parameters) string {
	if params.Analysis == jobspec.PCSA {
		return string(params.Analysis) + "-" + params.CurveType
	}
	return string(params.Analysis)
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
