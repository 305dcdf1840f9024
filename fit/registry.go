package fit

import (
	"sort"
	"sync"
)

// Registry lists the coordinators running in this process, for the status
// endpoint and the inspector.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[int]*Coordinator
}

func NewRegistry() *Registry {
	return &Registry{coordinators: map[int]*Coordinator{}}
}

func (r *Registry) Register(c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinators[c.Group()] = c
}

// Snapshots returns the state of every registered group, by group id.
func (r *Registry) Snapshots() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]State, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		states = append(states, c.Snapshot())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Group < states[j].Group })
	return states
}

// StopAll stops every registered fit.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.coordinators {
		c.StopFit()
	}
}
