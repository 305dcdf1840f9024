package fittest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	. "github.com/onsi/gomega"

	"github.com/tedsuo/fitmesh/jobspec"
)

// JobFixture describes a job-control document and its experiment document.
type JobFixture struct {
	Method     string
	Database   string
	RequestID  string
	UDP        string
	Buckets    []jobspec.Bucket
	Parameters map[string]string
	DataSets   int
	Noise      bool
}

func NewJobFixture() JobFixture {
	return JobFixture{
		Method:    "2DSA",
		Database:  "us3_demo",
		RequestID: "4711",
		Buckets: []jobspec.Bucket{
			{SMin: 1, SMax: 5, Axis2Min: 1, Axis2Max: 4},
			{SMin: 5, SMax: 10, Axis2Min: 1, Axis2Max: 4},
		},
		Parameters: map[string]string{
			"s_grid_points":   "4",
			"ff0_grid_points": "4",
			"max_iterations":  "2",
		},
		DataSets: 1,
	}
}

// Write puts both documents and the files of every dataset into dir and
// returns the paths of the job and experiment documents.
func (f JobFixture) Write(dir string) (string, string) {
	jobPath := filepath.Join(dir, "job.xml")
	experimentPath := filepath.Join(dir, "experiment.xml")
	ExpectWithOffset(1, os.WriteFile(jobPath, []byte(f.jobDocument()), 0644)).To(Succeed())
	ExpectWithOffset(1, os.WriteFile(experimentPath, []byte(f.experimentDocument()), 0644)).To(Succeed())

	for i := 0; i < f.DataSets; i++ {
		for _, name := range f.files(i) {
			ExpectWithOffset(1, os.WriteFile(filepath.Join(dir, name), []byte("scan data"), 0644)).To(Succeed())
		}
	}
	return jobPath, experimentPath
}

func (f JobFixture) jobDocument() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<?xml version=\"1.0\"?>\n<US_JobSubmit method=%q version=\"1.0\">\n  <job>\n", f.Method)
	b.WriteString("    <cluster name=\"localhost\" shortname=\"local\"/>\n")
	if f.UDP != "" {
		host, port, _ := strings.Cut(f.UDP, ":")
		fmt.Fprintf(&b, "    <udp server=%q port=%q/>\n", host, port)
	}
	fmt.Fprintf(&b, "    <request id=%q guid=\"00000000-0000-4000-8000-000000000001\" submittime=\"2024-01-01 00:00:00\"/>\n", f.RequestID)
	fmt.Fprintf(&b, "    <database name=%q/>\n", f.Database)
	b.WriteString("    <jobParameters>\n")
	for _, bucket := range f.Buckets {
		fmt.Fprintf(&b, "      <bucket s_min=\"%g\" s_max=\"%g\" ff0_min=\"%g\" ff0_max=\"%g\"/>\n",
			bucket.SMin, bucket.SMax, bucket.Axis2Min, bucket.Axis2Max)
	}
	keys := make([]string, 0, len(f.Parameters))
	for k := range f.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "      <%s value=%q/>\n", k, f.Parameters[k])
	}
	b.WriteString("    </jobParameters>\n  </job>\n</US_JobSubmit>\n")
	return b.String()
}

func (f JobFixture) experimentDocument() string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<US_Experiment>\n")
	for i := 0; i < f.DataSets; i++ {
		files := f.files(i)
		b.WriteString("  <dataset>\n    <files>\n")
		fmt.Fprintf(&b, "      <auc filename=%q/>\n      <edit filename=%q/>\n", files[0], files[1])
		if f.Noise {
			fmt.Fprintf(&b, "      <noise filename=%q/>\n", files[2])
		}
		b.WriteString("    </files>\n    <parameters>\n")
		b.WriteString("      <density value=\"0.998234\"/>\n      <viscosity value=\"1.00194\"/>\n")
		b.WriteString("      <vbar value=\"0.72\"/>\n      <temperature value=\"20\"/>\n")
		b.WriteString("      <meniscus value=\"5.8\"/>\n      <bottom value=\"7.2\"/>\n")
		b.WriteString("      <simpoints value=\"200\"/>\n      <speedstep rotorspeed=\"50000\" scans=\"20\"/>\n")
		b.WriteString("    </parameters>\n  </dataset>\n")
	}
	b.WriteString("</US_Experiment>\n")
	return b.String()
}

func (f JobFixture) files(dataset int) []string {
	cell := string(rune('A' + dataset))
	files := []string{
		fmt.Sprintf("demo.RA.1.%s.260.auc", cell),
		fmt.Sprintf("demo.e01.RA.1.%s.260.xml", cell),
	}
	if f.Noise {
		files = append(files, fmt.Sprintf("demo.ti_noise.%s.xml", cell))
	}
	return files
}
