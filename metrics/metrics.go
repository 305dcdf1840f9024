package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Prefix = "fitmesh_"

type Metrics struct {
	progressSent    prometheus.Counter
	progressDropped prometheus.Counter
	progressRelayed *prometheus.CounterVec

	candidates   *prometheus.CounterVec
	iterations   *prometheus.CounterVec
	fitRuns      *prometheus.CounterVec
	varimin      *prometheus.GaugeVec
	rmsd         *prometheus.GaugeVec
	mcReductions prometheus.Counter

	aborts *prometheus.CounterVec
}

// New registers every fitmesh metric with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		progressSent: factory.NewCounter(prometheus.CounterOpts{
			Name: Prefix + "progress_messages_sent",
			Help: "Number of progress messages delivered to the supervisor endpoint or relayed to it",
		}),
		progressDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: Prefix + "progress_messages_dropped",
			Help: "Number of progress messages dropped because the queue was full or delivery failed",
		}),
		progressRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "progress_messages_relayed",
			Help: "Number of progress messages re-delivered by the supervisor, grouped by origin group",
		}, []string{"group"}),
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "candidates_evaluated",
			Help: "Number of candidate models evaluated, grouped by master group",
		}, []string{"group"}),
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "fit_iterations",
			Help: "Number of refinement iterations completed, grouped by master group",
		}, []string{"group"}),
		fitRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "fit_runs",
			Help: "Number of completed fit runs (Monte Carlo iteration x meniscus point), grouped by master group",
		}, []string{"group"}),
		varimin: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: Prefix + "varimin",
			Help: "Best variance of the current fit run, by master group",
		}, []string{"group"}),
		rmsd: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: Prefix + "rmsd",
			Help: "Root mean square deviation of the best model of the current fit run, by master group",
		}, []string{"group"}),
		mcReductions: factory.NewCounter(prometheus.CounterOpts{
			Name: Prefix + "mc_iteration_reductions",
			Help: "Number of times a group reduced its Monte Carlo iterations to fit the wall-time budget",
		}),
		aborts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "aborts",
			Help: "Number of aborts reported by the supervisor, grouped by exit code",
		}, []string{"code"}),
	}
}

func (m *Metrics) RecordProgressSent() {
	m.progressSent.Inc()
}

func (m *Metrics) RecordProgressDropped() {
	m.progressDropped.Inc()
}

func (m *Metrics) RecordProgressRelayed(group int) {
	m.progressRelayed.WithLabelValues(strconv.Itoa(group)).Inc()
}

func (m *Metrics) RecordCandidates(group, n int) {
	m.candidates.WithLabelValues(strconv.Itoa(group)).Add(float64(n))
}

func (m *Metrics) RecordIteration(group int) {
	m.iterations.WithLabelValues(strconv.Itoa(group)).Inc()
}

func (m *Metrics) RecordFitRun(group int) {
	m.fitRuns.WithLabelValues(strconv.Itoa(group)).Inc()
}

func (m *Metrics) RecordBest(group int, variance, rmsd float64) {
	label := strconv.Itoa(group)
	m.varimin.WithLabelValues(label).Set(variance)
	m.rmsd.WithLabelValues(label).Set(rmsd)
}

func (m *Metrics) RecordMCReduction() {
	m.mcReductions.Inc()
}

func (m *Metrics) RecordAbort(code int) {
	m.aborts.WithLabelValues(strconv.Itoa(code)).Inc()
}
