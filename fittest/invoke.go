/*
Package fittest holds the ginkgo helpers shared by the fitmesh test suites:
starting and stopping ifrit processes, a scriptable kernel, and writers for
job fixture documents.
*/
package fittest

import (
	"fmt"
	"os"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tedsuo/ifrit"
)

// Invoke starts runner and fails the test if it exits before it is ready.
func Invoke(runner ifrit.Runner) ifrit.Process {
	process := ifrit.Background(runner)

	select {
	case <-process.Ready():
	case err := <-process.Wait():
		ginkgo.Fail(fmt.Sprintf("process failed to start: %s", err))
	}

	return process
}

func Interrupt(process ifrit.Process, intervals ...interface{}) {
	if process != nil {
		process.Signal(os.Interrupt)
		EventuallyWithOffset(1, process.Wait(), intervals...).Should(Receive(), "interrupted process failed to exit in time")
	}
}

func Kill(process ifrit.Process, intervals ...interface{}) {
	if process != nil {
		process.Signal(os.Kill)
		EventuallyWithOffset(1, process.Wait(), intervals...).Should(Receive(), "killed process failed to exit in time")
	}
}

// Wait returns the exit error of a process expected to finish on its own.
func Wait(process ifrit.Process, timeout time.Duration) error {
	var err error
	EventuallyWithOffset(1, process.Wait(), timeout).Should(Receive(&err))
	return err
}
