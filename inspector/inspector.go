/*
Package inspector dumps the state of a running job on request: the snapshot
of every master group followed by the stacks of all goroutines.
*/
package inspector

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/fit"
)

const signalBufferSize = 1024

type StateSource interface {
	Snapshots() []fit.State
}

type Inspector struct {
	Path    string
	Signals []os.Signal
	States  StateSource
	Logger  logrus.FieldLogger
}

// New watches SIGUSR2 unless other signals are given.
func New(path string, states StateSource, logger logrus.FieldLogger, signals ...os.Signal) Inspector {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGUSR2}
	}
	return Inspector{
		Path:    path,
		Signals: signals,
		States:  states,
		Logger:  logger.WithField("component", "inspector"),
	}
}

// Run writes a dump on every inspection signal from the OS. An inspection
// signal delivered through ifrit writes a last dump before exiting.
func (i Inspector) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	osSignals := make(chan os.Signal, signalBufferSize)
	signal.Notify(osSignals, i.Signals...)
	defer signal.Stop(osSignals)

	close(ready)

	for {
		select {
		case sig := <-signals:
			if i.watches(sig) {
				i.write()
			}
			return nil

		case <-osSignals:
			i.write()
		}
	}
}

func (i Inspector) watches(sig os.Signal) bool {
	for _, s := range i.Signals {
		if s == sig {
			return true
		}
	}
	return false
}

func (i Inspector) write() {
	f, err := os.Create(i.Path)
	if err != nil {
		i.Logger.WithError(err).WithField("path", i.Path).Error("failed to create dump file")
		return
	}
	defer f.Close()

	if err := i.Dump(f); err != nil {
		i.Logger.WithError(err).WithField("path", i.Path).Error("failed to write dump")
		return
	}
	i.Logger.WithField("path", i.Path).Info("wrote dump")
}

// Dump writes the group snapshots as JSON, then the goroutine stacks.
func (i Inspector) Dump(w io.Writer) error {
	states := []fit.State{}
	if i.States != nil {
		states = i.States.Snapshots()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(states); err != nil {
		return errors.Wrap(err, "encoding snapshots")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return errors.WithStack(err)
	}
	_, err := w.Write(stacks())
	return errors.WithStack(err)
}

func stacks() []byte {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}
