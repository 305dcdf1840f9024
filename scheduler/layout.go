/*
Package scheduler splits the rank pool into independent master groups.

Each group has a sub-master, the lowest rank of the group, that drives its own
slice of the Monte Carlo iterations. Rank 0 is also the supervisor: it is the
only rank that talks to the outside world and it merges the results of every
group.
*/
package scheduler

import "fmt"

type Role int

const (
	Idle Role = iota
	Worker
	SubMaster
	Supervisor
)

func (r Role) String() string {
	switch r {
	case Supervisor:
		return "supervisor"
	case SubMaster:
		return "sub-master"
	case Worker:
		return "worker"
	default:
		return "idle"
	}
}

type Group struct {
	ID        int   `json:"id"`
	Ranks     []int `json:"ranks"`
	SubMaster int   `json:"sub_master"`
	Cores     int   `json:"cores"`
}

// Workers are the ranks of the group that evaluate candidates for the
// sub-master.
func (g Group) Workers() []int {
	workers := []int{}
	for _, r := range g.Ranks {
		if r != g.SubMaster {
			workers = append(workers, r)
		}
	}
	return workers
}

type Layout struct {
	PoolSize      int     `json:"pool_size"`
	CoresPerGroup int     `json:"cores_per_group"`
	Groups        []Group `json:"groups"`
	// Idle ranks are the remainder of the integer division of the pool. They
	// join no group but still take part in shutdown and abort.
	Idle []int `json:"idle"`
}

// GroupCount applies the rules for splitting into parallel master groups:
// a single group unless there are at least two Monte Carlo iterations and the
// request does not exceed mcIterations+2.
func GroupCount(poolSize, requestedGroups, mcIterations int) int {
	if mcIterations < 2 || requestedGroups > mcIterations+2 {
		return 1
	}
	groups := max(1, requestedGroups)
	return max(1, min(groups, poolSize))
}

func Assign(poolSize, requestedGroups, mcIterations int) Layout {
	poolSize = max(1, poolSize)
	groups := GroupCount(poolSize, requestedGroups, mcIterations)
	cores := poolSize / groups

	layout := Layout{
		PoolSize:      poolSize,
		CoresPerGroup: cores,
		Groups:        make([]Group, groups),
	}
	for g := 0; g < groups; g++ {
		ranks := make([]int, cores)
		for i := range ranks {
			ranks[i] = g*cores + i
		}
		layout.Groups[g] = Group{ID: g, Ranks: ranks, SubMaster: ranks[0], Cores: cores}
	}
	for r := groups * cores; r < poolSize; r++ {
		layout.Idle = append(layout.Idle, r)
	}
	return layout
}

// Supervisor is the globally lowest rank.
func (l Layout) Supervisor() int {
	return 0
}

func (l Layout) GroupOf(rank int) (Group, bool) {
	if l.CoresPerGroup == 0 {
		return Group{}, false
	}
	g := rank / l.CoresPerGroup
	if rank < 0 || g >= len(l.Groups) {
		return Group{}, false
	}
	return l.Groups[g], true
}

func (l Layout) Role(rank int) Role {
	if rank == l.Supervisor() {
		return Supervisor
	}
	group, ok := l.GroupOf(rank)
	switch {
	case !ok:
		return Idle
	case group.SubMaster == rank:
		return SubMaster
	default:
		return Worker
	}
}

// Slice lists the Monte Carlo iterations that group groupID runs.
func (l Layout) Slice(groupID, mcIterations int) []int {
	iterations := []int{}
	for i := 0; i < max(1, mcIterations); i++ {
		if i%len(l.Groups) == groupID {
			iterations = append(iterations, i)
		}
	}
	return iterations
}

func (l Layout) String() string {
	return fmt.Sprintf("%d ranks, %d group(s) of %d, %d idle", l.PoolSize, len(l.Groups), l.CoresPerGroup, len(l.Idle))
}
