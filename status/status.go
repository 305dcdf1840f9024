// Package status serves the live state of a job over HTTP.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/http_server"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/progress"
	"github.com/tedsuo/fitmesh/scheduler"
)

type StateSource interface {
	Snapshots() []fit.State
}

type ProgressSource interface {
	Last() progress.Status
}

// Document is the body of /status.
type Document struct {
	RunID    string           `json:"run_id"`
	Request  string           `json:"request"`
	Started  time.Time        `json:"started"`
	Layout   scheduler.Layout `json:"layout"`
	Groups   []fit.State      `json:"groups"`
	Progress *progress.Status `json:"progress,omitempty"`
}

type Source struct {
	RunID    string
	Request  string
	Started  time.Time
	Layout   scheduler.Layout
	States   StateSource
	Progress ProgressSource
}

func (s Source) document() Document {
	doc := Document{
		RunID:   s.RunID,
		Request: s.Request,
		Started: s.Started,
		Layout:  s.Layout,
		Groups:  []fit.State{},
	}
	if s.States != nil {
		doc.Groups = s.States.Snapshots()
	}
	if s.Progress != nil {
		if last := s.Progress.Last(); !last.At.IsZero() {
			doc.Progress = &last
		}
	}
	return doc
}

func NewHandler(source Source, gatherer prometheus.Gatherer, logger logrus.FieldLogger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := json.Marshal(source.document())
		if err != nil {
			logger.WithError(err).Error("failed to encode status")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(append(body, '\n')); err != nil {
			logger.WithError(err).Warn("failed to write status")
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func NewServer(address string, source Source, gatherer prometheus.Gatherer, logger logrus.FieldLogger) ifrit.Runner {
	return http_server.New(address, NewHandler(source, gatherer, logger))
}
