package jobspec

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

type AnalysisType string

const (
	TwoDSA   AnalysisType = "2DSA"
	TwoDSACG AnalysisType = "2DSA-CG"
	GA       AnalysisType = "GA"
	DMGA     AnalysisType = "DMGA"
	PCSA     AnalysisType = "PCSA"
)

var analysisTypes = []AnalysisType{TwoDSA, TwoDSACG, GA, DMGA, PCSA}

func ParseAnalysisType(s string) (AnalysisType, bool) {
	for _, t := range analysisTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// GridStyle analyses evaluate a fixed lattice of candidate models derived
// from the buckets.
func (a AnalysisType) GridStyle() bool {
	return a == TwoDSA || a == TwoDSACG || a == PCSA
}

// PopulationStyle analyses breed candidates generation by generation.
func (a AnalysisType) PopulationStyle() bool {
	return a == GA || a == DMGA
}

const (
	RegularizationNone = iota
	RegularizationFixed
	RegularizationScan
)

// Parameters is the typed view of the jobParameters block. Raw keeps every
// key/value pair as it appeared in the documents, including keys the
// coordinator does not interpret itself.
type Parameters struct {
	Analysis AnalysisType      `mapstructure:"-"`
	Raw      map[string]string `mapstructure:"-"`

	MaxIterations  int     `mapstructure:"max_iterations"`
	MCIterations   int     `mapstructure:"mc_iterations"`
	MeniscusRange  float64 `mapstructure:"meniscus_range"`
	MeniscusPoints int     `mapstructure:"meniscus_points"`
	GroupCount     int     `mapstructure:"req_mgroupcount"`

	SGridPoints     int `mapstructure:"s_grid_points"`
	Axis2GridPoints int `mapstructure:"ff0_grid_points"`

	Population  int   `mapstructure:"population"`
	Generations int   `mapstructure:"generations"`
	Crossover   int   `mapstructure:"crossover"`
	Mutation    int   `mapstructure:"mutation"`
	Plague      int   `mapstructure:"plague"`
	Migration   int   `mapstructure:"migration"`
	Elitism     int   `mapstructure:"elitism"`
	Seed        int64 `mapstructure:"seed"`

	CurveType       string `mapstructure:"curve_type"`
	CurveResolution int    `mapstructure:"curve_resolution"`
	VariationsCount int    `mapstructure:"variations_count"`

	RegularizationOption int     `mapstructure:"tikreg_option"`
	Alpha                float64 `mapstructure:"tikreg_alpha"`
	AlphaMin             float64 `mapstructure:"tikreg_alpha_min"`
	AlphaMax             float64 `mapstructure:"tikreg_alpha_max"`
	AlphaPoints          int     `mapstructure:"tikreg_alpha_points"`
	Regularization       float64 `mapstructure:"regularization"`

	ConvergenceRatio float64 `mapstructure:"thr_deltr_ratio"`
	ConcThreshold    float64 `mapstructure:"conc_threshold"`
	MaxWallTime      int     `mapstructure:"max_walltime"`

	TINoise int `mapstructure:"tinoise_option"`
	RINoise int `mapstructure:"rinoise_option"`
}

// DefaultParameters holds the documented defaults for every optional key.
func DefaultParameters() Parameters {
	return Parameters{
		Raw:             map[string]string{},
		MaxIterations:   3,
		MCIterations:    1,
		MeniscusPoints:  1,
		GroupCount:      1,
		SGridPoints:     10,
		Axis2GridPoints: 10,

		Population:  100,
		Generations: 50,
		Crossover:   50,
		Mutation:    50,
		Plague:      4,
		Migration:   3,
		Elitism:     2,

		CurveType:       "SL",
		CurveResolution: 100,
		VariationsCount: 10,

		AlphaMin:    0.01,
		AlphaMax:    1.0,
		AlphaPoints: 10,

		ConvergenceRatio: 0.0001,
		ConcThreshold:    0.000001,
		MaxWallTime:      2880,
	}
}

// NoiseEnabled reports whether time- or radially-invariant noise is fitted.
func (p Parameters) NoiseEnabled() bool {
	return p.TINoise > 0 || p.RINoise > 0
}

// NoiseFlags packs both noise options into one integer: bit 0 is ti, bit 1 is ri.
func (p Parameters) NoiseFlags() int {
	flags := 0
	if p.TINoise > 0 {
		flags |= 1
	}
	if p.RINoise > 0 {
		flags |= 2
	}
	return flags
}

// Alphas returns the regularization values a prescan walks through.
func (p Parameters) Alphas() []float64 {
	if p.RegularizationOption != RegularizationScan || p.AlphaPoints < 1 {
		return nil
	}
	if p.AlphaPoints == 1 {
		return []float64{p.AlphaMin}
	}
	alphas := make([]float64, p.AlphaPoints)
	step := (p.AlphaMax - p.AlphaMin) / float64(p.AlphaPoints-1)
	for i := range alphas {
		alphas[i] = p.AlphaMin + float64(i)*step
	}
	return alphas
}

func decodeParameters(raw map[string]string) (Parameters, error) {
	params := DefaultParameters()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &params,
	})
	if err != nil {
		return Parameters{}, errors.WithStack(err)
	}

	if err := decoder.Decode(raw); err != nil {
		return Parameters{}, errors.Wrap(err, "decoding job parameters")
	}

	params.Raw = make(map[string]string, len(raw))
	for k, v := range raw {
		params.Raw[k] = v
	}
	return params, nil
}
