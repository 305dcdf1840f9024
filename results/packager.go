package results

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/failure"
	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/jobspec"
)

const (
	ManifestFile       = "analysis_files.txt"
	DefaultArchiveName = "analysis-results.tar.gz"
	DefaultGraceDelay  = time.Second
)

type Packager struct {
	Dir         string
	ArchiveName string
	// GraceDelay lets straggling ranks settle before anything is written.
	GraceDelay time.Duration
	Logger     logrus.FieldLogger
	Now        func() time.Time
	Memory     func() uint64
}

// Summary is what the supervisor knows once every group has finished.
type Summary struct {
	Job        *jobspec.Job
	PoolSize   int
	GroupCount int
	Start      time.Time
	Runs       []fit.RunResult
	// Reduced is set when Monte Carlo iterations were cut to fit the
	// wall-time limit.
	Reduced bool
}

type Report struct {
	Archive    string
	Manifest   string
	Files      []string
	Statistics Statistics
	Reduced    bool
}

// ExitCode is 0, or 99 for a job whose Monte Carlo iterations were reduced.
func (r Report) ExitCode() int {
	if r.Reduced {
		return failure.CodeReduced
	}
	return failure.CodeSuccess
}

// Package writes and archives every output of the job. The loose files end
// up only in the archive; the manifest stays next to it.
func (p *Packager) Package(ctx context.Context, summary Summary) (Report, error) {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	memory := p.Memory
	if memory == nil {
		memory = MaxMemory
	}
	archiveName := p.ArchiveName
	if archiveName == "" {
		archiveName = DefaultArchiveName
	}

	select {
	case <-time.After(p.GraceDelay):
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}

	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return Report{}, errors.Wrap(err, "creating output directory")
	}

	files := make([]string, 0, len(summary.Runs)+1)
	for _, run := range summary.Runs {
		name := ModelFile(summary.Job.Analysis, run.Run)
		if err := writeXML(filepath.Join(p.Dir, name), newModelDocument(summary.Job.Analysis, run)); err != nil {
			return Report{}, err
		}
		files = append(files, name)
	}

	end := now()
	stats := NewStatistics(summary.Job, summary.PoolSize, summary.GroupCount, summary.Start, end, memory())
	if err := writeXML(filepath.Join(p.Dir, StatisticsFile), stats); err != nil {
		return Report{}, err
	}
	files = append(files, StatisticsFile)

	manifest := filepath.Join(p.Dir, ManifestFile)
	if err := os.WriteFile(manifest, []byte(strings.Join(files, "\n")+"\n"), 0644); err != nil {
		return Report{}, errors.Wrap(err, "writing manifest")
	}

	archivePath := filepath.Join(p.Dir, archiveName)
	if err := archive(p.Dir, append(files, ManifestFile), archivePath); err != nil {
		return Report{}, err
	}

	for _, name := range files {
		if err := os.Remove(filepath.Join(p.Dir, name)); err != nil {
			p.Logger.WithError(err).WithField("file", name).Warn("failed to remove archived file")
		}
	}

	p.Logger.WithFields(logrus.Fields{
		"archive": archivePath,
		"files":   len(files),
		"reduced": summary.Reduced,
	}).Info("results packaged")

	return Report{
		Archive:    archivePath,
		Manifest:   manifest,
		Files:      files,
		Statistics: stats,
		Reduced:    summary.Reduced,
	}, nil
}
