package status_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tedsuo/ifrit"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/fittest"
	"github.com/tedsuo/fitmesh/metrics"
	"github.com/tedsuo/fitmesh/progress"
	"github.com/tedsuo/fitmesh/scheduler"
	"github.com/tedsuo/fitmesh/status"
)

type fakeStates []fit.State

func (f fakeStates) Snapshots() []fit.State { return f }

type fakeProgress progress.Status

func (f fakeProgress) Last() progress.Status { return progress.Status(f) }

var _ = Describe("Status", func() {
	var (
		source   status.Source
		registry *prometheus.Registry
		logger   *logrus.Logger
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetOutput(GinkgoWriter)
		registry = prometheus.NewRegistry()
		metrics.New(registry).RecordIteration(1)

		running := fit.NewState(1)
		running.Stage = fit.StageFitting
		running.Iteration = 2

		source = status.Source{
			RunID:   "run-1",
			Request: "us3_demo-4711",
			Layout:  scheduler.Assign(4, 2, 4),
			States:  fakeStates{fit.NewState(0), running},
			Progress: fakeProgress{
				Text: "us3_demo-4711: MC 1, meniscus 0, iteration 2",
				At:   time.Now(),
			},
		}
	})

	It("reports every group and the last progress message", func() {
		recorder := httptest.NewRecorder()
		status.NewHandler(source, registry, logger).ServeHTTP(recorder, httptest.NewRequest("GET", "/status", nil))

		Expect(recorder.Code).To(Equal(http.StatusOK))
		var doc status.Document
		Expect(json.Unmarshal(recorder.Body.Bytes(), &doc)).To(Succeed())
		Expect(doc.RunID).To(Equal("run-1"))
		Expect(doc.Layout.Groups).To(HaveLen(2))
		Expect(doc.Groups).To(HaveLen(2))
		Expect(doc.Groups[1].Stage).To(Equal(fit.StageFitting))
		Expect(doc.Groups[1].Iteration).To(Equal(2))
		Expect(doc.Groups[0].Varimin).To(BeZero())
		Expect(doc.Progress).NotTo(BeNil())
		Expect(doc.Progress.Text).To(HavePrefix("us3_demo-4711: MC 1"))
	})

	It("omits progress until something was delivered", func() {
		source.Progress = fakeProgress{}
		recorder := httptest.NewRecorder()
		status.NewHandler(source, registry, logger).ServeHTTP(recorder, httptest.NewRequest("GET", "/status", nil))

		Expect(recorder.Body.String()).NotTo(ContainSubstring(`"progress"`))
	})

	It("refuses anything but GET", func() {
		recorder := httptest.NewRecorder()
		status.NewHandler(source, registry, logger).ServeHTTP(recorder, httptest.NewRequest("POST", "/status", nil))
		Expect(recorder.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	Context("when served", func() {
		var (
			address string
			process ifrit.Process
		)

		BeforeEach(func() {
			address = fmt.Sprintf("127.0.0.1:%d", 17400+GinkgoParallelProcess())
			process = fittest.Invoke(status.NewServer(address, source, registry, logger))
		})

		AfterEach(func() {
			fittest.Interrupt(process)
		})

		It("exposes the fit metrics", func() {
			resp, err := http.Get("http://" + address + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`fitmesh_fit_iterations{group="1"} 1`))
		})
	})
})
