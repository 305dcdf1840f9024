package fitmesh

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/tedsuo/ifrit"

	"github.com/tedsuo/fitmesh/config"
	"github.com/tedsuo/fitmesh/fittest"
	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/progress"
	"github.com/tedsuo/fitmesh/results"
)

var _ = Describe("rankRunner", func() {
	var (
		dir      string
		kernel   *fittest.FakeKernel
		job      *Job
		reporter *progress.Reporter
		process  ifrit.Process
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		jobPath, experimentPath := fittest.NewJobFixture().Write(dir)

		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		kernel = &fittest.FakeKernel{TargetS: 3, TargetK: 2, Gate: make(chan struct{})}
		job = NewJob(Options{
			JobDocument:        jobPath,
			ExperimentDocument: experimentPath,
			Config: config.Config{
				PoolSize:     1,
				OutputDir:    dir,
				ArchiveName:  results.DefaultArchiveName,
				AbortTimeout: 5 * time.Second,
				Mesh:         config.MeshConfig{MailboxDepth: 64},
				Progress:     config.ProgressConfig{QueueSize: 64},
			},
			Kernel: kernel,
			Logger: logger,
		})

		plan, err := Prepare(jobPath, experimentPath, "", 1, job.options.Estimator)
		Expect(err).NotTo(HaveOccurred())

		reporter = progress.NewSupervisor("us3_demo-4711: ", progress.Discard, 64, logger, job.metrics)
		process = ifrit.Background(job.newRank(0, plan, mesh.NewLocal(1, 64), reporter, time.Now()))
		Eventually(kernel.Calls).Should(BeNumerically(">", 0))
	})

	AfterEach(func() {
		reporter.Close()
	})

	It("keeps fitting when a sibling's exit signals nil", func() {
		process.Signal(nil)
		Consistently(process.Wait()).ShouldNot(Receive())

		close(kernel.Gate)
		Eventually(process.Wait(), 10*time.Second).Should(Receive(BeNil()))
		_, packaged := job.Report()
		Expect(packaged).To(BeTrue())
	})
})
