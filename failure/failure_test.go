package failure_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/failure"
	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/jobspec"
	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/metrics"
)

type flushingReporter struct {
	messages chan string
}

func (r flushingReporter) Send(text string, _ bool) { r.messages <- text }
func (r flushingReporter) Flush()                   {}

var _ = Describe("CodeFor", func() {
	DescribeTable("abort codes",
		func(err error, code int) {
			Expect(failure.CodeFor(err)).To(Equal(code))
		},
		Entry("success", nil, 0),
		Entry("parse", &jobspec.ParseError{Kind: jobspec.MalformedXML, Err: errors.New("eof")}, 1),
		Entry("data", pkgerrors.Wrap(&jobspec.DataError{File: "a.auc", Err: errors.New("missing")}, "verifying"), 2),
		Entry("validation", &jobspec.ValidationError{Message: "Buckets overlap"}, 3),
		Entry("validation among several", fit.ValidateOptions(jobspec.Parameters{MCIterations: 5, RINoise: 1}, 2), 3),
		Entry("kernel", &fit.KernelError{Code: 42, Err: errors.New("nan")}, 42),
		Entry("kernel without a code", &fit.KernelError{Err: errors.New("nan")}, fit.DefaultKernelCode),
		Entry("interrupt", failure.ErrInterrupted, 4),
		Entry("cancel", context.Canceled, 4),
		Entry("exit", &failure.ExitError{Code: 9, Message: "x"}, 9),
		Entry("anything else", errors.New("boom"), failure.CodeInternal),
	)

	It("reports the first validation conflict", func() {
		err := fit.ValidateOptions(jobspec.Parameters{MeniscusPoints: 3, MCIterations: 5, RINoise: 1}, 1)
		Expect(failure.MessageFor(err)).To(Equal("Meniscus fit is incompatible with Monte Carlo iterations"))
	})

	It("reports an interrupt as the job being interrupted", func() {
		Expect(failure.MessageFor(failure.ErrInterrupted)).To(Equal("Job interrupted"))
	})
})

var _ = Describe("Handler", func() {
	const size = 3

	var (
		ctx      context.Context
		cancel   context.CancelFunc
		local    *mesh.Local
		handlers []*failure.Handler
		reported chan string
		exits    chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		m := metrics.New(prometheus.NewRegistry())

		local = mesh.NewLocal(size, 0)
		reported = make(chan string, 10)
		exits = make(chan error, size)
		handlers = make([]*failure.Handler, size)
		for rank := range handlers {
			mailbox := mesh.NewMailbox(local, rank, logger)
			go mailbox.Pump(ctx)
			handlers[rank] = &failure.Handler{
				Rank:      rank,
				Transport: local,
				Mailbox:   mailbox,
				Reporter:  flushingReporter{messages: reported},
				Metrics:   m,
				Logger:    logger,
			}
		}
	})

	AfterEach(func() {
		cancel()
	})

	joinOnAbort := func(rank int) {
		go func() {
			env := <-handlers[rank].Mailbox.Receive(mesh.Abort)
			exits <- handlers[rank].Join(env)
		}()
	}

	It("lets the supervisor report a worker's abort before anyone exits", func() {
		joinOnAbort(0)

		go func() { exits <- handlers[2].Abort("Buckets overlap", 3) }()

		Eventually(reported).Should(Receive(Equal("Buckets overlap")))
		Consistently(exits).ShouldNot(Receive())

		joinOnAbort(1)
		for i := 0; i < size; i++ {
			var err error
			Eventually(exits).Should(Receive(&err))
			Expect(err).To(MatchError(&failure.ExitError{Code: 3, Message: "Buckets overlap"}))
		}
		Expect(reported).To(BeEmpty())
	})

	It("ends every rank with the supervisor's code", func() {
		joinOnAbort(1)
		joinOnAbort(2)

		go func() { exits <- handlers[0].Abort("kernel error 42: nan", 42) }()

		for i := 0; i < size; i++ {
			var err error
			Eventually(exits).Should(Receive(&err))
			Expect(failure.CodeFor(err)).To(Equal(42))
		}
	})

	It("survives two ranks aborting at once", func() {
		joinOnAbort(0)

		go func() { exits <- handlers[1].Abort("first", 11) }()
		go func() { exits <- handlers[2].Abort("second", 12) }()

		codes := map[int]bool{}
		for i := 0; i < size; i++ {
			var err error
			Eventually(exits).Should(Receive(&err))
			codes[failure.CodeFor(err)] = true
		}
		Expect(codes).To(HaveLen(1))
		Expect(fmt.Sprint(codes)).To(MatchRegexp(`map\[1[12]:true\]`))
	})
})
