package jobspec

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	density20W   = 0.998234
	viscosity20W = 1.00194
	kelvin20     = 293.15
	kelvinZero   = 273.15
)

type Speedstep struct {
	RotorSpeed   float64
	Acceleration float64
	Duration     float64
	Scans        int
}

type DataSet struct {
	RawFile    string
	EditFile   string
	NoiseFiles []string

	Density     float64
	Viscosity   float64
	Manual      bool
	Vbar20      float64
	Temperature float64

	Meniscus   float64
	Bottom     float64
	SimPoints  int
	BandVolume float64
	RadialGrid int
	TimeGrid   int

	Speedsteps []Speedstep

	S20WCorrection float64
	D20WCorrection float64
}

func newDataSet() *DataSet {
	return &DataSet{
		Density:     density20W,
		Viscosity:   viscosity20W,
		Vbar20:      0.72,
		Temperature: 20,
		SimPoints:   200,
		BandVolume:  0.015,
		TimeGrid:    1,
	}
}

// Scans is the total scan count over every speed step.
func (d *DataSet) Scans() int {
	total := 0
	for _, step := range d.Speedsteps {
		total += step.Scans
	}
	if total == 0 {
		return 1
	}
	return total
}

// FillCorrections computes the factors that convert observed coefficients to
// standard conditions (water at 20 °C). It is called once, before fitting.
func (d *DataSet) FillCorrections() {
	tempK := d.Temperature + kelvinZero
	viscosityRatio := d.Viscosity / viscosity20W

	buoyancyW := 1 - d.Vbar20*density20W
	buoyancyB := 1 - d.Vbar20*d.Density
	if buoyancyB == 0 {
		d.S20WCorrection = 0
	} else {
		d.S20WCorrection = (buoyancyW / buoyancyB) * viscosityRatio
	}
	d.D20WCorrection = (kelvin20 / tempK) * viscosityRatio
}

// Files lists every file the dataset refers to.
func (d *DataSet) Files() []string {
	files := []string{}
	if d.RawFile != "" {
		files = append(files, d.RawFile)
	}
	if d.EditFile != "" {
		files = append(files, d.EditFile)
	}
	return append(files, d.NoiseFiles...)
}

// VerifyFiles opens every referenced file below dir.
func (d *DataSet) VerifyFiles(dir string) error {
	for _, name := range d.Files() {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}
		f, err := os.Open(path)
		if err != nil {
			return &DataError{File: name, Err: err}
		}
		f.Close()
	}
	return nil
}

// compositeEditName adds a wavelength tag to the edit file name of a
// multi-wavelength dataset. A composite edit name carries a wavelength range
// ("260-280") in its second-to-last segment; the tag pairs it with the
// wavelength of the companion raw file, e.g.
//
//	run.A.260-280.xml + run.RA.1.A.260.auc -> run.A.260-280@260.xml
func compositeEditName(edit, raw string) string {
	editParts := strings.Split(edit, ".")
	if len(editParts) < 3 {
		return edit
	}
	rangePart := editParts[len(editParts)-2]
	if !strings.Contains(rangePart, "-") {
		return edit
	}

	rawParts := strings.Split(raw, ".")
	if len(rawParts) < 2 {
		return edit
	}
	tag := rangePart + "@" + rawParts[len(rawParts)-2]

	base := strings.Join(editParts[:len(editParts)-2], ".")
	return base + "." + tag + "." + editParts[len(editParts)-1]
}
