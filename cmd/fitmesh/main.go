package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/sigmon"

	"github.com/tedsuo/fitmesh"
	"github.com/tedsuo/fitmesh/config"
	"github.com/tedsuo/fitmesh/failure"
	"github.com/tedsuo/fitmesh/grid"
)

var version = "dev"

func main() {
	err := rootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return failure.CodeSuccess
	}
	return failure.CodeFor(err)
}

func rootCommand() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:           "fitmesh",
		Short:         "fitmesh coordinates distributed sedimentation curve fits.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./fitmesh.yaml when present)")
	cmd.PersistentFlags().Int("pool-size", 0, "number of ranks in the pool")
	cmd.PersistentFlags().String("work-dir", "", "directory holding the dataset files")
	cmd.PersistentFlags().String("log-level", "", "log level")
	bindFlags(v, cmd.PersistentFlags(), map[string]string{
		"pool_size": "pool-size",
		"work_dir":  "work-dir",
		"log.level": "log-level",
	})

	load := func() (config.Config, *logrus.Logger, error) {
		cfg, err := config.Load(v, configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		logger, err := config.NewLogger(cfg.Log, os.Stderr)
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, logger, nil
	}

	cmd.AddCommand(
		runCommand(v, load),
		validateCommand(load),
		versionCommand(),
	)
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

type loader func() (config.Config, *logrus.Logger, error)

func runCommand(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job.xml> <experiment.xml>",
		Short: "Run a fit and package its results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			job := fitmesh.NewJob(fitmesh.Options{
				JobDocument:        args[0],
				ExperimentDocument: args[1],
				Config:             cfg,
				Logger:             logger,
			})
			monitor := sigmon.New(job, os.Interrupt, syscall.SIGTERM, fitmesh.StopSignal)
			err = <-ifrit.Invoke(monitor).Wait()

			code := job.ExitCode(err)
			logger.WithField("code", code).Info("job exited")
			switch {
			case err != nil:
				return err
			case code == failure.CodeReduced:
				return &failure.ExitError{Code: code, Message: "Monte Carlo iterations reduced to fit the wall-time limit"}
			}
			return nil
		},
	}
	cmd.Flags().String("output-dir", "", "directory receiving the result archive")
	cmd.Flags().String("status-address", "", "address of the status endpoint")
	cmd.Flags().String("listen", "", "mesh listen address of this node")
	bindFlags(v, cmd.Flags(), map[string]string{
		"output_dir":     "output-dir",
		"status_address": "status-address",
		"mesh.listen":    "listen",
	})
	return cmd
}

func validateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <job.xml> <experiment.xml>",
		Short: "Parse and validate a job, then print its rank layout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			estimator := grid.NewFootprintEstimator(int64(cfg.MemoryLimitMB) << 20)
			plan, err := fitmesh.Prepare(args[0], args[1], cfg.WorkDir, cfg.PoolSize, estimator)
			if err != nil {
				return &failure.ExitError{Code: failure.CodeFor(err), Message: failure.MessageFor(err)}
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return errors.WithStack(encoder.Encode(struct {
				Analysis   string      `json:"analysis"`
				Candidates int         `json:"candidates"`
				Layout     interface{} `json:"layout"`
			}{string(plan.Job.Analysis), plan.Candidates, plan.Layout}))
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
