package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tedsuo/fitmesh/failure"
	"github.com/tedsuo/fitmesh/fittest"
	"github.com/tedsuo/fitmesh/jobspec"
	"github.com/tedsuo/fitmesh/results"
)

var _ = Describe("fitmesh", func() {
	var (
		dir     string
		fixture fittest.JobFixture
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		fixture = fittest.NewJobFixture()
		out = &bytes.Buffer{}
	})

	execute := func(args ...string) error {
		cmd := rootCommand()
		cmd.SetOut(out)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	It("prints its version", func() {
		Expect(execute("version")).To(Succeed())
		Expect(out.String()).To(Equal("dev\n"))
	})

	Describe("validate", func() {
		It("prints the layout of a valid job", func() {
			jobPath, experimentPath := fixture.Write(dir)
			Expect(execute("validate", "--pool-size", "3", jobPath, experimentPath)).To(Succeed())

			var printed struct {
				Analysis   string `json:"analysis"`
				Candidates int    `json:"candidates"`
				Layout     struct {
					PoolSize int `json:"pool_size"`
				} `json:"layout"`
			}
			Expect(json.Unmarshal(out.Bytes(), &printed)).To(Succeed())
			Expect(printed.Analysis).To(Equal("2DSA"))
			Expect(printed.Candidates).To(BeNumerically(">", 0))
			Expect(printed.Layout.PoolSize).To(Equal(3))
		})

		It("exits with the validation code when buckets overlap", func() {
			fixture.Buckets = []jobspec.Bucket{
				{SMin: 1, SMax: 5, Axis2Min: 1, Axis2Max: 4},
				{SMin: 2, SMax: 6, Axis2Min: 2, Axis2Max: 5},
			}
			jobPath, experimentPath := fixture.Write(dir)
			err := execute("validate", "--pool-size", "3", jobPath, experimentPath)
			Expect(err).To(MatchError("aborted with code 3: Buckets overlap"))
			Expect(exitCode(err)).To(Equal(failure.CodeValidation))
		})
	})

	Describe("run", func() {
		It("writes the archive to the output directory", func() {
			jobPath, experimentPath := fixture.Write(dir)
			output := filepath.Join(dir, "out")
			Expect(execute("run", "--pool-size", "2", "--output-dir", output, jobPath, experimentPath)).To(Succeed())
			Expect(filepath.Join(output, results.DefaultArchiveName)).To(BeAnExistingFile())
		})

		It("rejects a missing argument", func() {
			err := execute("run", "job.xml")
			Expect(err).To(HaveOccurred())
			Expect(exitCode(err)).To(Equal(failure.CodeInternal))
		})
	})
})
