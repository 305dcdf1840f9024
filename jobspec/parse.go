package jobspec

import (
	"encoding/xml"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
)

type YType string

const (
	YFF0  YType = "ff0"
	YVbar YType = "vbar"
)

// Bucket is a rectangle of the (s, f/f0) or (s, vbar) plane. Which second
// axis applies is fixed for the whole job by the first bucket parsed.
type Bucket struct {
	SMin     float64 `json:"s_min"`
	SMax     float64 `json:"s_max"`
	Axis2Min float64 `json:"axis2_min"`
	Axis2Max float64 `json:"axis2_max"`
}

type Cluster struct {
	Name      string
	ShortName string
}

type Endpoint struct {
	Server string
	Port   int
}

func (e Endpoint) Address() string {
	if e.Server == "" || e.Port == 0 {
		return ""
	}
	return e.Server + ":" + strconv.Itoa(e.Port)
}

type Request struct {
	ID         string
	GUID       string
	SubmitTime time.Time
}

type Job struct {
	Analysis   AnalysisType
	Cluster    Cluster
	Endpoint   Endpoint
	Request    Request
	Database   string
	Parameters Parameters
	YType      YType
	Buckets    []Bucket
	DataSets   []*DataSet
}

const submitTimeLayout = "2006-01-02 15:04:05"

// Parse reads the job-control document and the experiment document.
func Parse(jobDoc, experimentDoc string) (*Job, error) {
	job := &Job{}
	raw := map[string]string{}

	if err := parseFile(jobDoc, func(d *xml.Decoder) error {
		return parseJobDocument(d, job, raw)
	}); err != nil {
		return nil, err
	}

	if err := parseFile(experimentDoc, func(d *xml.Decoder) error {
		return parseExperimentDocument(d, job, raw)
	}); err != nil {
		return nil, err
	}

	if job.Analysis == "" {
		return nil, &ParseError{Kind: MissingField, File: jobDoc, Err: errors.New("method")}
	}
	if len(job.Buckets) == 0 {
		return nil, &ParseError{Kind: MissingField, File: jobDoc, Err: errors.New("bucket")}
	}
	if len(job.DataSets) == 0 {
		return nil, &ParseError{Kind: MissingField, File: experimentDoc, Err: errors.New("dataset")}
	}

	params, err := decodeParameters(raw)
	if err != nil {
		return nil, &ParseError{Kind: MalformedXML, File: jobDoc, Err: err}
	}
	params.Analysis = job.Analysis
	job.Parameters = params

	if job.Request.GUID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		job.Request.GUID = id.String()
	}
	if job.Request.SubmitTime.IsZero() {
		info, err := os.Stat(jobDoc)
		if err == nil {
			job.Request.SubmitTime = info.ModTime()
		}
	}
	return job, nil
}

func parseFile(path string, parse func(*xml.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &ParseError{Kind: MissingFile, File: path, Err: err}
	}
	defer f.Close()

	if err := parse(xml.NewDecoder(f)); err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.File = path
			return parseErr
		}
		return &ParseError{Kind: MalformedXML, File: path, Err: err}
	}
	return nil
}

func attrs(se xml.StartElement) map[string]string {
	values := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		values[a.Name.Local] = strings.TrimSpace(a.Value)
	}
	return values
}

func floatAttr(values map[string]string, name string) (float64, error) {
	v, ok := values[name]
	if !ok || v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &ParseError{Kind: MalformedXML, Err: errors.Wrapf(err, "attribute %s", name)}
	}
	return f, nil
}

func intAttr(values map[string]string, name string) (int, error) {
	f, err := floatAttr(values, name)
	return int(f), err
}

func boolAttr(values map[string]string, name string) bool {
	v := strings.ToLower(values[name])
	return v == "1" || v == "true" || v == "yes"
}

// roundMicro rounds a coordinate to 1e-6 so that overlap tests do not see
// floating round-off from the document.
func roundMicro(x float64) float64 {
	return math.Floor(x*1e6+0.5) / 1e6
}

// forEachElement walks every start element of the document, passing the
// names of its enclosing elements.
func forEachElement(d *xml.Decoder, visit func(se xml.StartElement, path []string) error, leave func(name string, path []string) error) error {
	path := []string{}
	seenRoot := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			if !seenRoot {
				return &ParseError{Kind: MalformedXML, Err: errors.New("no root element")}
			}
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seenRoot = true
			if err := visit(t, path); err != nil {
				return err
			}
			path = append(path, t.Name.Local)
		case xml.EndElement:
			path = path[:len(path)-1]
			if leave != nil {
				if err := leave(t.Name.Local, path); err != nil {
					return err
				}
			}
		}
	}
}

func within(path []string, name string) bool {
	for _, p := range path {
		if p == name {
			return true
		}
	}
	return false
}

func parseJobDocument(d *xml.Decoder, job *Job, raw map[string]string) error {
	return forEachElement(d, func(se xml.StartElement, path []string) error {
		values := attrs(se)
		name := se.Name.Local

		if len(path) == 0 {
			if method, ok := values["method"]; ok {
				analysis, known := ParseAnalysisType(method)
				if !known {
					return &ParseError{Kind: MalformedXML, Err: errors.Errorf("unknown analysis method %q", method)}
				}
				job.Analysis = analysis
			}
			return nil
		}

		switch {
		case name == "cluster":
			job.Cluster = Cluster{Name: values["name"], ShortName: values["shortname"]}
		case name == "udp":
			port, err := intAttr(values, "port")
			if err != nil {
				return err
			}
			job.Endpoint = Endpoint{Server: values["server"], Port: port}
		case name == "request":
			job.Request.ID = values["id"]
			job.Request.GUID = values["guid"]
			if submitted := values["submittime"]; submitted != "" {
				t, err := time.Parse(submitTimeLayout, submitted)
				if err != nil {
					return &ParseError{Kind: MalformedXML, Err: errors.Wrap(err, "submittime")}
				}
				job.Request.SubmitTime = t
			}
		case name == "database":
			job.Database = values["name"]
		case name == "bucket":
			return parseBucket(values, job)
		case within(path, "jobParameters"):
			if v, ok := values["value"]; ok {
				raw[name] = v
			}
		}
		return nil
	}, nil)
}

func parseBucket(values map[string]string, job *Job) error {
	coords := map[string]float64{}
	for _, key := range []string{"s_min", "s_max", "ff0_min", "ff0_max", "vbar_min", "vbar_max"} {
		v, err := floatAttr(values, key)
		if err != nil {
			return err
		}
		coords[key] = v
	}

	if len(job.Buckets) == 0 {
		job.YType = YFF0
		if coords["ff0_max"] == 0 {
			job.YType = YVbar
		}
	}

	bucket := Bucket{
		SMin: roundMicro(coords["s_min"]),
		SMax: roundMicro(coords["s_max"]),
	}
	if job.YType == YFF0 {
		bucket.Axis2Min = roundMicro(coords["ff0_min"])
		bucket.Axis2Max = roundMicro(coords["ff0_max"])
	} else {
		bucket.Axis2Min = roundMicro(coords["vbar_min"])
		bucket.Axis2Max = roundMicro(coords["vbar_max"])
	}
	job.Buckets = append(job.Buckets, bucket)
	return nil
}

func parseExperimentDocument(d *xml.Decoder, job *Job, raw map[string]string) error {
	var current *DataSet

	return forEachElement(d, func(se xml.StartElement, path []string) error {
		values := attrs(se)
		name := se.Name.Local

		if name == "dataset" {
			current = newDataSet()
			return nil
		}
		if current == nil {
			return nil
		}

		var err error
		switch name {
		case "auc":
			current.RawFile = values["filename"]
		case "edit":
			current.EditFile = values["filename"]
		case "noise":
			current.NoiseFiles = append(current.NoiseFiles, values["filename"])
		case "density":
			current.Density, err = floatAttr(values, "value")
		case "viscosity":
			current.Viscosity, err = floatAttr(values, "value")
		case "manual":
			current.Manual = boolAttr(values, "value")
		case "vbar":
			current.Vbar20, err = floatAttr(values, "value")
		case "temperature":
			current.Temperature, err = floatAttr(values, "value")
		case "meniscus":
			current.Meniscus, err = floatAttr(values, "value")
		case "bottom":
			current.Bottom, err = floatAttr(values, "value")
		case "simpoints":
			current.SimPoints, err = intAttr(values, "value")
		case "band_volume":
			current.BandVolume, err = floatAttr(values, "value")
		case "radial_grid":
			current.RadialGrid, err = intAttr(values, "value")
		case "time_grid":
			current.TimeGrid, err = intAttr(values, "value")
		case "speedstep":
			err = parseSpeedstep(values, current)
		case "buffer":
			if within(path, "solution") {
				err = parseBuffer(values, current)
			}
		default:
			if v, ok := values["value"]; ok && within(path, "parameters") {
				raw[name] = v
			}
		}
		return err
	}, func(name string, path []string) error {
		if name == "dataset" && current != nil {
			if strings.Contains(current.EditFile, "-") {
				current.EditFile = compositeEditName(current.EditFile, current.RawFile)
			}
			job.DataSets = append(job.DataSets, current)
			current = nil
		}
		return nil
	})
}

func parseSpeedstep(values map[string]string, ds *DataSet) error {
	var step Speedstep
	var err error
	if step.RotorSpeed, err = floatAttr(values, "rotorspeed"); err != nil {
		return err
	}
	if step.Acceleration, err = floatAttr(values, "acceleration"); err != nil {
		return err
	}
	if step.Duration, err = floatAttr(values, "duration_minutes"); err != nil {
		return err
	}
	if step.Scans, err = intAttr(values, "scans"); err != nil {
		return err
	}
	ds.Speedsteps = append(ds.Speedsteps, step)
	return nil
}

func parseBuffer(values map[string]string, ds *DataSet) error {
	if _, ok := values["density"]; ok {
		v, err := floatAttr(values, "density")
		if err != nil {
			return err
		}
		ds.Density = v
	}
	if _, ok := values["viscosity"]; ok {
		v, err := floatAttr(values, "viscosity")
		if err != nil {
			return err
		}
		ds.Viscosity = v
	}
	if _, ok := values["manual"]; ok {
		ds.Manual = boolAttr(values, "manual")
	}
	return nil
}
