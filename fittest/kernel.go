package fittest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tedsuo/fitmesh/fit"
)

// FakeKernel scores a candidate by its squared distance to (TargetS,
// TargetK), unless VarianceFunc says otherwise.
type FakeKernel struct {
	TargetS, TargetK float64
	VarianceFunc     func(fit.Task) float64

	// FailOnCall makes the n-th evaluation (1-based) fail with FailCode.
	FailOnCall int
	FailCode   int
	Delay      time.Duration
	// Gate, when set, holds every evaluation until it is closed.
	Gate chan struct{}

	mu    sync.Mutex
	tasks []fit.Task
}

func (k *FakeKernel) Evaluate(ctx context.Context, task fit.Task) (fit.Score, error) {
	k.mu.Lock()
	k.tasks = append(k.tasks, task)
	call := len(k.tasks)
	k.mu.Unlock()

	if k.Gate != nil {
		select {
		case <-k.Gate:
		case <-ctx.Done():
			return fit.Score{}, ctx.Err()
		}
	}
	if k.Delay > 0 {
		select {
		case <-time.After(k.Delay):
		case <-ctx.Done():
			return fit.Score{}, ctx.Err()
		}
	}
	if k.FailOnCall > 0 && call == k.FailOnCall {
		return fit.Score{}, &fit.KernelError{Code: k.FailCode, Err: errors.New("simulation diverged")}
	}

	variance := 0.0
	if k.VarianceFunc != nil {
		variance = k.VarianceFunc(task)
	} else {
		ds := task.Candidate.S - k.TargetS
		dk := task.Candidate.K - k.TargetK
		variance = ds*ds + dk*dk + 1e-6
	}
	return fit.Score{Index: task.Candidate.Index, Variance: variance}, nil
}

func (k *FakeKernel) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tasks)
}

func (k *FakeKernel) Tasks() []fit.Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]fit.Task{}, k.tasks...)
}

// Reporter records progress text.
type Reporter struct {
	mu       sync.Mutex
	messages []string
}

func (r *Reporter) Send(text string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *Reporter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.messages...)
}
