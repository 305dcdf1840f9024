package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/tedsuo/fitmesh/config"
)

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeConfig := func(body string) string {
		path := filepath.Join(dir, "fitmesh.yaml")
		Expect(os.WriteFile(path, []byte(body), 0644)).To(Succeed())
		return path
	}

	It("fills the documented defaults", func() {
		cfg, err := config.Load(viper.New(), writeConfig("{}\n"))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.PoolSize).To(BeNumerically(">=", 1))
		Expect(cfg.ArchiveName).To(Equal("analysis-results.tar.gz"))
		Expect(cfg.GraceDelay).To(Equal(time.Second))
		Expect(cfg.Mesh.Distributed()).To(BeFalse())
		Expect(cfg.Progress.QueueSize).To(Equal(64))
		Expect(cfg.Log.Format).To(Equal("text"))
	})

	It("reads the file", func() {
		cfg, err := config.Load(viper.New(), writeConfig(`
pool_size: 6
grace_delay: 250ms
status_address: 127.0.0.1:8089
mesh:
  listen: 0.0.0.0:7300
  hosted: [0, 1, 2]
  peers:
    3: node-b:7300
    4: node-b:7300
log:
  level: debug
  format: json
`))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.PoolSize).To(Equal(6))
		Expect(cfg.GraceDelay).To(Equal(250 * time.Millisecond))
		Expect(cfg.StatusAddress).To(Equal("127.0.0.1:8089"))
		Expect(cfg.Mesh.Hosted).To(Equal([]int{0, 1, 2}))
		Expect(cfg.Mesh.Peers).To(Equal(map[int]string{3: "node-b:7300", 4: "node-b:7300"}))
		Expect(cfg.Mesh.Distributed()).To(BeTrue())
		Expect(cfg.Log.Level).To(Equal("debug"))
	})

	It("lets the environment override the file", func() {
		path := writeConfig("pool_size: 6\n")
		os.Setenv("FITMESH_POOL_SIZE", "3")
		os.Setenv("FITMESH_PROGRESS_QUEUE_SIZE", "8")
		DeferCleanup(os.Unsetenv, "FITMESH_POOL_SIZE")
		DeferCleanup(os.Unsetenv, "FITMESH_PROGRESS_QUEUE_SIZE")

		cfg, err := config.Load(viper.New(), path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.PoolSize).To(Equal(3))
		Expect(cfg.Progress.QueueSize).To(Equal(8))
	})

	It("reports every invalid field", func() {
		_, err := config.Load(viper.New(), writeConfig(`
pool_size: 0
log:
  format: xml
mesh:
  peers:
    1: node-b:7300
`))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("PoolSize"))
		Expect(err.Error()).To(ContainSubstring("Log.Format"))
		Expect(err.Error()).To(ContainSubstring("Mesh.Listen is required"))
	})

	It("fails on a missing explicit file", func() {
		_, err := config.Load(viper.New(), filepath.Join(dir, "absent.yaml"))
		Expect(err).To(MatchError(ContainSubstring("reading config")))
	})
})

var _ = Describe("NewLogger", func() {
	It("writes JSON at the configured level", func() {
		out := &bytes.Buffer{}
		logger, err := config.NewLogger(config.LogConfig{Level: "warn", Format: "json"}, out)
		Expect(err).NotTo(HaveOccurred())

		logger.Info("quiet")
		logger.WithField("rank", 2).Warn("loud")

		Expect(out.String()).NotTo(ContainSubstring("quiet"))
		Expect(out.String()).To(ContainSubstring(`"rank":2`))
		Expect(logger.Formatter).To(BeAssignableToTypeOf(&logrus.JSONFormatter{}))
	})

	It("rejects an unknown level", func() {
		_, err := config.NewLogger(config.LogConfig{Level: "loud", Format: "text"}, &bytes.Buffer{})
		Expect(err).To(HaveOccurred())
	})
})
