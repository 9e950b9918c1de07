// Package global holds the thin per-subsystem views over the shared
// instance table (DispatchScheduler, MigrationScheduler, ScalingScheduler)
// and the GlobalScheduler orchestrator that sequences them against live
// fleet state. It imports package scheduler for policies and data types,
// never the reverse — the same one-directional layering the teacher uses
// between its policy package and its cluster-orchestration package.
package global

import (
	"sort"

	"github.com/chord-scheduler/globalscheduler/scheduler"
)

// DispatchScheduler caches the latest instance table view, owns the
// configured DispatchPolicy, and tracks per-instance dispatch counts for
// policies that key off instanceNumRequests (Flood, Balanced, RoundRobin)
// rather than live telemetry.
type DispatchScheduler struct {
	policy             scheduler.DispatchPolicy
	topKRandomDispatch int
	infos              map[string]scheduler.InstanceInfo
	numRequests        map[string]int
}

// NewDispatchScheduler constructs a DispatchScheduler for the named policy.
func NewDispatchScheduler(policyName string, topKRandomDispatch int, seed int64) (*DispatchScheduler, error) {
	policy, err := scheduler.NewDispatchPolicy(policyName, seed)
	if err != nil {
		return nil, err
	}
	return &DispatchScheduler{
		policy:             policy,
		topKRandomDispatch: topKRandomDispatch,
		infos:              make(map[string]scheduler.InstanceInfo),
		numRequests:        make(map[string]int),
	}, nil
}

// UpdateInstanceInfos refreshes the cached view from the shared table.
func (d *DispatchScheduler) UpdateInstanceInfos(infos map[string]scheduler.InstanceInfo) {
	d.infos = infos
}

// AddInstance registers a new instance id with a zero dispatch count.
func (d *DispatchScheduler) AddInstance(id string, _ scheduler.InstanceArgs) {
	if _, ok := d.numRequests[id]; !ok {
		d.numRequests[id] = 0
	}
}

// RemoveInstance drops an instance id from the dispatch-count table.
func (d *DispatchScheduler) RemoveInstance(id string) {
	delete(d.numRequests, id)
}

// Dispatch chooses an instance for a request needing reqNBlocks blocks.
// The clamp of topKRandomDispatch to the number of candidates (per spec:
// "clamped at runtime to number of candidates") happens inside the Load/
// Queue policies themselves via randomTopK.
func (d *DispatchScheduler) Dispatch(reqNBlocks int64) (string, error) {
	available := make([]scheduler.InstanceInfo, 0, len(d.infos))
	for _, info := range d.infos {
		available = append(available, info)
	}
	sort.Slice(available, func(i, j int) bool { return available[i].InstanceID < available[j].InstanceID })

	id, err := d.policy.Dispatch(d.numRequests, available, d.topKRandomDispatch, reqNBlocks)
	if err != nil {
		return "", err
	}
	d.numRequests[id]++
	return id, nil
}
