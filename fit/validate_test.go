package fit_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/jobspec"
)

var _ = Describe("ValidateOptions", func() {
	var params jobspec.Parameters

	BeforeEach(func() {
		params = jobspec.DefaultParameters()
	})

	It("accepts a plain job", func() {
		Expect(fit.ValidateOptions(params, 1)).To(Succeed())
	})

	It("rejects a meniscus fit of several datasets", func() {
		params.MeniscusPoints = 3
		err := fit.ValidateOptions(params, 2)
		Expect(err).To(MatchError(ContainSubstring("Meniscus fit is incompatible with a global fit of 2 datasets")))

		var validationErr *jobspec.ValidationError
		Expect(errors.As(err, &validationErr)).To(BeTrue())
	})

	It("rejects a meniscus fit with Monte Carlo iterations", func() {
		params.MeniscusPoints = 3
		params.MCIterations = 2
		Expect(fit.ValidateOptions(params, 1)).To(MatchError("Meniscus fit is incompatible with Monte Carlo iterations"))
	})

	It("rejects Monte Carlo iterations with noise", func() {
		params.MCIterations = 5
		params.RINoise = 1
		Expect(fit.ValidateOptions(params, 1)).To(MatchError("Monte Carlo iterations are incompatible with noise computation"))
	})

	It("rejects a global fit with noise", func() {
		params.TINoise = 1
		Expect(fit.ValidateOptions(params, 3)).To(MatchError("Global fit is incompatible with noise computation"))
	})

	It("reports every conflict, the first one leading", func() {
		params.MeniscusPoints = 2
		params.MCIterations = 4
		params.TINoise = 1
		err := fit.ValidateOptions(params, 2)
		Expect(err.Error()).To(HavePrefix("Meniscus fit is incompatible with a global fit of 2 datasets; "))
		Expect(err.Error()).To(ContainSubstring("Global fit is incompatible with noise computation"))
	})
})

var _ = Describe("CandidateCount", func() {
	buckets := []jobspec.Bucket{{SMin: 1, SMax: 2, Axis2Min: 1, Axis2Max: 2}, {SMin: 3, SMax: 4, Axis2Min: 1, Axis2Max: 2}}

	It("counts the lattice of grid analyses", func() {
		params := jobspec.DefaultParameters()
		params.Analysis = jobspec.TwoDSA
		Expect(fit.CandidateCount(params, buckets)).To(Equal(200))
	})

	It("counts curve pairs of PCSA", func() {
		params := jobspec.DefaultParameters()
		params.Analysis = jobspec.PCSA
		params.VariationsCount = 6
		Expect(fit.CandidateCount(params, buckets)).To(Equal(36))
	})

	It("counts the population of GA", func() {
		params := jobspec.DefaultParameters()
		params.Analysis = jobspec.GA
		Expect(fit.CandidateCount(params, buckets)).To(Equal(100))
	})
})
