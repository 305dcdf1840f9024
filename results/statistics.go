/*
Package results writes what a successful job leaves behind: a model file for
every fit run, the job statistics record, a manifest of the produced files and
one archive holding all of them.
*/
package results

import (
	"encoding/xml"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/tedsuo/fitmesh/jobspec"
)

const (
	StatisticsFile = "job_statistics.xml"
	timeLayout     = "2006-01-02 15:04:05"
)

// Statistics is the job_statistics.xml record.
type Statistics struct {
	XMLName    xml.Name             `xml:"US_JobStatistics"`
	Statistics statisticsAttributes `xml:"statistics"`
	ID         idAttributes         `xml:"id"`
}

type statisticsAttributes struct {
	WallTime     string `xml:"walltime,attr"`
	CPUTime      string `xml:"cputime,attr"`
	CPUCount     int    `xml:"cpucount,attr"`
	MaxMemory    uint64 `xml:"maxmemory,attr"`
	Cluster      string `xml:"cluster,attr"`
	AnalysisType string `xml:"analysistype,attr"`
}

type idAttributes struct {
	RequestGUID string `xml:"requestguid,attr"`
	DBName      string `xml:"dbname,attr"`
	RequestID   string `xml:"requestid,attr"`
	SubmitTime  string `xml:"submittime,attr"`
	StartTime   string `xml:"starttime,attr"`
	EndTime     string `xml:"endtime,attr"`
	MaxWallTime int    `xml:"maxwalltime,attr"`
	GroupCount  int    `xml:"groupcount,attr"`
}

// NewStatistics fills the record. Wall time runs from submission to end, CPU
// time from start to end; both are in seconds. maxMemory is in megabytes.
func NewStatistics(job *jobspec.Job, poolSize, groupCount int, start, end time.Time, maxMemory uint64) Statistics {
	submitted := job.Request.SubmitTime
	if submitted.IsZero() || submitted.After(start) {
		submitted = start
	}

	cluster := job.Cluster.ShortName
	if cluster == "" {
		cluster = job.Cluster.Name
	}

	return Statistics{
		XMLName: xml.Name{Local: "US_JobStatistics"},
		Statistics: statisticsAttributes{
			WallTime:     seconds(end.Sub(submitted)),
			CPUTime:      seconds(end.Sub(start)),
			CPUCount:     poolSize,
			MaxMemory:    maxMemory,
			Cluster:      cluster,
			AnalysisType: string(job.Analysis),
		},
		ID: idAttributes{
			RequestGUID: job.Request.GUID,
			DBName:      job.Database,
			RequestID:   job.Request.ID,
			SubmitTime:  submitted.UTC().Format(timeLayout),
			StartTime:   start.UTC().Format(timeLayout),
			EndTime:     end.UTC().Format(timeLayout),
			MaxWallTime: job.Parameters.MaxWallTime,
			GroupCount:  groupCount,
		},
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// MaxMemory reports the peak resident set size of this process in
// megabytes. Linux reports ru_maxrss in kilobytes.
func MaxMemory() uint64 {
	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err != nil {
		return 0
	}
	return uint64(usage.Maxrss) >> 10
}

func writeXML(path string, v interface{}) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	return errors.Wrapf(os.WriteFile(path, data, 0644), "writing %s", path)
}
