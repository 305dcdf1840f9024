/*
Package config loads the run configuration of fitmesh: everything about how a
job runs that is not part of the job documents themselves.

Values come from an optional fitmesh.yaml, FITMESH_* environment variables and
command line flags bound to the same viper instance.
*/
package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "FITMESH"

type Config struct {
	PoolSize      int           `mapstructure:"pool_size" validate:"gte=1"`
	WorkDir       string        `mapstructure:"work_dir"`
	OutputDir     string        `mapstructure:"output_dir"`
	ArchiveName   string        `mapstructure:"archive_name" validate:"required"`
	GraceDelay    time.Duration `mapstructure:"grace_delay" validate:"gte=0"`
	AbortTimeout  time.Duration `mapstructure:"abort_timeout" validate:"gt=0"`
	StatusAddress string        `mapstructure:"status_address"`
	MemoryLimitMB int           `mapstructure:"memory_limit_mb" validate:"gte=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=0"`

	Mesh      MeshConfig      `mapstructure:"mesh"`
	Log       LogConfig       `mapstructure:"log"`
	Inspector InspectorConfig `mapstructure:"inspector"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Kernel    KernelConfig    `mapstructure:"kernel"`
}

// MeshConfig places the ranks of the pool. With no peers every rank runs in
// this process; otherwise Hosted lists the local ranks and Peers the address
// serving each of the others.
type MeshConfig struct {
	Listen         string         `mapstructure:"listen"`
	Hosted         []int          `mapstructure:"hosted" validate:"dive,gte=0"`
	Peers          map[int]string `mapstructure:"peers" validate:"dive,keys,gte=0,endkeys,hostname_port"`
	MaxConnections int            `mapstructure:"max_connections" validate:"gte=1"`
	MailboxDepth   int            `mapstructure:"mailbox_depth" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type InspectorConfig struct {
	Path string `mapstructure:"path"`
}

type ProgressConfig struct {
	QueueSize int `mapstructure:"queue_size" validate:"gte=1"`
}

// KernelConfig tunes the surrogate kernel used in place of a simulation.
type KernelConfig struct {
	Seed  int64         `mapstructure:"seed"`
	Noise float64       `mapstructure:"noise" validate:"gte=0"`
	Delay time.Duration `mapstructure:"delay" validate:"gte=0"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("pool_size", runtime.NumCPU())
	v.SetDefault("work_dir", "")
	v.SetDefault("output_dir", "")
	v.SetDefault("archive_name", "analysis-results.tar.gz")
	v.SetDefault("grace_delay", time.Second)
	v.SetDefault("abort_timeout", time.Minute)
	v.SetDefault("status_address", "")
	v.SetDefault("memory_limit_mb", 0)
	v.SetDefault("batch_size", 0)

	v.SetDefault("mesh.listen", "")
	v.SetDefault("mesh.hosted", []int{})
	v.SetDefault("mesh.peers", map[int]string{})
	v.SetDefault("mesh.max_connections", 64)
	v.SetDefault("mesh.mailbox_depth", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("inspector.path", "")
	v.SetDefault("progress.queue_size", 64)

	v.SetDefault("kernel.seed", 1)
	v.SetDefault("kernel.noise", 0.0)
	v.SetDefault("kernel.delay", time.Duration(0))
}

var decodeHooks = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

// Load reads path, or fitmesh.yaml from the working directory when path is
// empty and such a file exists, and overlays the environment.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", path)
		}
	} else {
		v.SetConfigName("fitmesh")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "reading config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHooks); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	return cfg, Validate(cfg)
}

// Validate reports every invalid field at once.
func Validate(cfg Config) error {
	var result *multierror.Error
	if cfg.Mesh.Distributed() && cfg.Mesh.Listen == "" {
		result = multierror.Append(result, errors.New("config field Mesh.Listen is required"))
	}

	var fieldErrs validator.ValidationErrors
	if err := validator.New().Struct(cfg); err != nil && !errors.As(err, &fieldErrs) {
		return errors.WithStack(err)
	}
	for _, fieldErr := range fieldErrs {
		field := stripPrefix(fieldErr.Namespace())
		switch fieldErr.Tag() {
		case "required":
			result = multierror.Append(result, errors.Errorf("config field %s is required", field))
		default:
			result = multierror.Append(result, errors.Errorf("config field %s has invalid value %v: %s", field, fieldErr.Value(), fieldErr.Tag()))
		}
	}
	return result.ErrorOrNil()
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}

// Distributed reports whether some ranks live in other processes.
func (m MeshConfig) Distributed() bool {
	return len(m.Peers) > 0
}
