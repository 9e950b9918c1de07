package global

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chord-scheduler/globalscheduler/scheduler"
)

// GlobalScheduler is the top-level orchestrator: it owns the authoritative
// instance table, ingests telemetry, and sequences the dispatch/migration/
// scaling sub-schedulers against that shared state.
//
// Concurrency: one mutex guards the table. All decision methods acquire it;
// none suspend on I/O, so held time is always bounded by O(N log N) work
// over the fleet. Sub-schedulers never lock independently — they are only
// ever called with this lock held.
type GlobalScheduler struct {
	mu sync.Mutex

	cfg scheduler.GlobalSchedulerConfig

	instanceIDSet map[string]struct{}
	instanceInfo  map[string]scheduler.InstanceInfo

	dispatchScheduler  *DispatchScheduler
	migrationScheduler *MigrationScheduler
	scalingScheduler   *ScalingScheduler
}

// NewGlobalScheduler validates cfg and constructs a GlobalScheduler with an
// empty fleet.
func NewGlobalScheduler(cfg scheduler.GlobalSchedulerConfig) (*GlobalScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dispatchSched, err := NewDispatchScheduler(cfg.DispatchPolicy, cfg.TopKRandomDispatch, cfg.Seed)
	if err != nil {
		return nil, err
	}
	migrationSched, err := NewMigrationScheduler(cfg.PairMigrationPolicy, cfg.MigrateOutLoadThreshold, cfg.IsGroupKindMigrationBackend)
	if err != nil {
		return nil, err
	}
	scalingSched, err := NewScalingScheduler(cfg.ScalingPolicy, cfg.ScaleUpThreshold, cfg.ScaleDownThreshold, cfg.EnablePDDisagg)
	if err != nil {
		return nil, err
	}

	return &GlobalScheduler{
		cfg:                cfg,
		instanceIDSet:       make(map[string]struct{}),
		instanceInfo:        make(map[string]scheduler.InstanceInfo),
		dispatchScheduler:   dispatchSched,
		migrationScheduler:  migrationSched,
		scalingScheduler:    scalingSched,
	}, nil
}

// NumInstances returns the current fleet size.
func (g *GlobalScheduler) NumInstances() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.instanceIDSet)
}

// UpdateInstanceInfos ingests telemetry. A snapshot for an id not currently
// in instanceIDSet is silently dropped (StaleSnapshot is not an error —
// protects against late reports racing a scale-down).
func (g *GlobalScheduler) UpdateInstanceInfos(snapshots []scheduler.InstanceInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, snap := range snapshots {
		if _, ok := g.instanceIDSet[snap.InstanceID]; !ok {
			logrus.Debugf("global scheduler: dropping stale snapshot for unknown instance %q", snap.InstanceID)
			continue
		}
		g.instanceInfo[snap.InstanceID] = snap
	}
}

// Dispatch chooses an instance to serve a request needing reqNBlocks
// blocks. expectedSteps is 1 when prefill-decode disaggregation is
// enabled, +Inf otherwise — a sentinel telling the runtime not to
// preemptively hand the request off after one step.
func (g *GlobalScheduler) Dispatch(reqNBlocks int64) (instanceID string, expectedSteps float64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dispatchScheduler.UpdateInstanceInfos(g.instanceInfo)
	instanceID, err = g.dispatchScheduler.Dispatch(reqNBlocks)
	if err != nil {
		return "", 0, err
	}
	if g.cfg.EnablePDDisagg {
		return instanceID, 1, nil
	}
	return instanceID, math.Inf(1), nil
}

// PairMigration refreshes the migration view and returns the (src, dst)
// pairs the configured policy selects under constraint.
func (g *GlobalScheduler) PairMigration(constraint scheduler.PairMigrationConstraints) []scheduler.MigrationPair {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.migrationScheduler.UpdateInstanceInfos(g.instanceInfo)
	return g.migrationScheduler.PairMigration(constraint)
}

// GetRedispatchSrcInstances returns instance ids eligible to have waiting
// requests redispatched off of them, most-backlogged first. Nil if the
// configured pair-migration policy has no redispatch capability.
func (g *GlobalScheduler) GetRedispatchSrcInstances() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.migrationScheduler.UpdateInstanceInfos(g.instanceInfo)
	return g.migrationScheduler.GetRedispatchSrcInstances()
}

// GetRedispatchDstInstance picks a redispatch destination for req currently
// queued on srcID. Callers drive this one request at a time because block
// inventory mutates as decisions are made; GlobalScheduler does not mutate
// its own table here (that mutation happens externally once the caller
// actually redispatches).
func (g *GlobalScheduler) GetRedispatchDstInstance(srcID string, req scheduler.Request) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.migrationScheduler.GetRedispatchDstInstance(srcID, req)
}

// GetRedispatchDstInfos returns, per instance, the admission snapshot
// DeriveRedispatchingPlans expects as its candidates argument: headroom
// already net of the watermark reserve, and blocks currently used.
func (g *GlobalScheduler) GetRedispatchDstInfos() map[string]scheduler.CandidateInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]scheduler.CandidateInfo, len(g.instanceInfo))
	for id, info := range g.instanceInfo {
		out[id] = scheduler.CandidateInfo{
			Free: info.NumFreeGPUBlocks - info.NumWatermarkBlocks,
			Used: info.NumUsedGPUBlocks,
		}
	}
	logrus.Debugf("global scheduler: redispatch dst infos computed for %d instances", len(out))
	return out
}

// DeriveRedispatchingPlans is the offline urgency-redispatch planner. It
// walks waitingRequests in order, placing each into the tightest-fitting
// instance below the current usage frontier (or, if none fit under the
// frontier, the one with the least overshoot), mutating candidates in
// place to reflect each placement before considering the next request.
//
// If no available instance can hold a given request, planning stops for
// the remainder of the list (RedispatchInfeasible is not an error — the
// plan accumulated so far is returned as-is). candidates is mutated by this
// call; pass a copy if the caller needs the pre-call values afterward.
func (g *GlobalScheduler) DeriveRedispatchingPlans(
	masterID string,
	waitingRequests []scheduler.Request,
	candidates map[string]scheduler.CandidateInfo,
) map[string]map[string]struct{} {
	plansByID := make(map[string][]string)

	available := availableIDs(candidates)
	if len(available) == 0 {
		logrus.Debugf("redispatch planner: no instance can hold any request, nothing to plan")
		return toSets(plansByID)
	}

	for _, req := range waitingRequests {
		available = availableIDs(candidates)
		if len(available) == 0 {
			break
		}

		var maxUsed int64
		first := true
		for _, id := range available {
			if first || candidates[id].Used > maxUsed {
				maxUsed = candidates[id].Used
				first = false
			}
		}

		var fittable []string
		for _, id := range available {
			if candidates[id].Free-req.NBlocks > 0 {
				fittable = append(fittable, id)
			}
		}
		if len(fittable) == 0 {
			logrus.Debugf("redispatch planner: no instance can hold request %s (%d blocks); stopping", req.RequestID, req.NBlocks)
			break
		}

		var belowFrontier []string
		for _, id := range fittable {
			if maxUsed-candidates[id].Used-req.NBlocks > 0 {
				belowFrontier = append(belowFrontier, id)
			}
		}

		var target string
		if len(belowFrontier) > 0 {
			target = argminInt64(belowFrontier, func(id string) int64 {
				return maxUsed - (candidates[id].Used + req.NBlocks)
			})
		} else {
			target = argminInt64(fittable, func(id string) int64 {
				return candidates[id].Used + req.NBlocks - maxUsed
			})
		}

		if target != masterID {
			plansByID[target] = append(plansByID[target], req.RequestID)
		}
		c := candidates[target]
		c.Free -= req.NBlocks
		c.Used += req.NBlocks
		candidates[target] = c
	}

	return toSets(plansByID)
}

// availableIDs returns candidate ids with positive free headroom, sorted
// for deterministic iteration (tie-breaks elsewhere rely on explicit order,
// not map order).
func availableIDs(candidates map[string]scheduler.CandidateInfo) []string {
	var ids []string
	for id, c := range candidates {
		if c.Free > 0 {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)
	return ids
}

// argminInt64 returns the id minimizing f, ties broken by first occurrence
// in ids (which callers construct in a stable, sorted order).
func argminInt64(ids []string, f func(string) int64) string {
	best := ids[0]
	bestVal := f(ids[0])
	for _, id := range ids[1:] {
		if v := f(id); v < bestVal {
			best, bestVal = id, v
		}
	}
	return best
}

// toSets converts the request-id-list plan into the set-of-ids form the
// public API returns (mirrors the source's post_process step).
func toSets(plansByID map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(plansByID))
	for dst, reqIDs := range plansByID {
		set := make(map[string]struct{}, len(reqIDs))
		for _, id := range reqIDs {
			set[id] = struct{}{}
		}
		out[dst] = set
	}
	return out
}

func sortStrings(ids []string) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// CheckScale refreshes the scaling view and returns the policy's proposed
// (scaleUpN, scaleDownN).
func (g *GlobalScheduler) CheckScale() (scaleUpN, scaleDownN int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.scalingScheduler.UpdateInstanceInfos(g.instanceInfo)
	return g.scalingScheduler.CheckScale()
}

// ScaleUp adds each id not already known, inserting an all-zero placeholder
// InstanceInfo before any sub-scheduler observes it (so it is already a
// valid dispatch target before its first telemetry snapshot arrives).
// Re-adding a known id is a no-op (DuplicateScaleUp is not an error).
// ids and args are zipped positionally; if args is shorter than ids, the
// trailing ids receive a zero-value InstanceArgs.
func (g *GlobalScheduler) ScaleUp(ids []string, args []scheduler.InstanceArgs) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, id := range ids {
		if _, ok := g.instanceIDSet[id]; ok {
			logrus.Infof("global scheduler: scale_up(%q) ignored, instance already registered", id)
			continue
		}
		var instArgs scheduler.InstanceArgs
		if i < len(args) {
			instArgs = args[i]
		}
		logrus.Infof("global scheduler: scaling up instance %q", id)
		g.instanceInfo[id] = scheduler.EmptyInstanceInfo(id)
		g.addInstance(id, instArgs)
	}
	logrus.Infof("global scheduler: num_instances=%d", len(g.instanceIDSet))
	return len(g.instanceIDSet)
}

// ScaleDown removes each known id from the table and every sub-scheduler.
// Unknown ids are ignored (UnknownScaleDown is not an error).
func (g *GlobalScheduler) ScaleDown(ids []string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		if _, ok := g.instanceIDSet[id]; !ok {
			logrus.Infof("global scheduler: scale_down(%q) ignored, instance not registered", id)
			continue
		}
		logrus.Infof("global scheduler: scaling down instance %q", id)
		delete(g.instanceInfo, id)
		g.removeInstance(id)
	}
	logrus.Infof("global scheduler: num_instances=%d", len(g.instanceIDSet))
	return len(g.instanceIDSet)
}

func (g *GlobalScheduler) addInstance(id string, args scheduler.InstanceArgs) {
	g.instanceIDSet[id] = struct{}{}
	for _, sched := range g.subSchedulers() {
		sched.updateInstanceInfos(g.instanceInfo)
		sched.addInstance(id, args)
	}
}

func (g *GlobalScheduler) removeInstance(id string) {
	delete(g.instanceIDSet, id)
	for _, sched := range g.subSchedulers() {
		sched.updateInstanceInfos(g.instanceInfo)
		sched.removeInstance(id)
	}
}

// subScheduler is the common membership-maintenance surface shared by
// DispatchScheduler, MigrationScheduler, and ScalingScheduler, letting
// addInstance/removeInstance iterate over all three uniformly.
type subScheduler interface {
	updateInstanceInfos(map[string]scheduler.InstanceInfo)
	addInstance(string, scheduler.InstanceArgs)
	removeInstance(string)
}

type dispatchSubScheduler struct{ *DispatchScheduler }

func (d dispatchSubScheduler) updateInstanceInfos(m map[string]scheduler.InstanceInfo) { d.UpdateInstanceInfos(m) }
func (d dispatchSubScheduler) addInstance(id string, a scheduler.InstanceArgs)          { d.AddInstance(id, a) }
func (d dispatchSubScheduler) removeInstance(id string)                                { d.RemoveInstance(id) }

type migrationSubScheduler struct{ *MigrationScheduler }

func (m migrationSubScheduler) updateInstanceInfos(infos map[string]scheduler.InstanceInfo) { m.UpdateInstanceInfos(infos) }
func (m migrationSubScheduler) addInstance(id string, a scheduler.InstanceArgs)              { m.AddInstance(id, a) }
func (m migrationSubScheduler) removeInstance(id string)                                    { m.RemoveInstance(id) }

type scalingSubScheduler struct{ *ScalingScheduler }

func (s scalingSubScheduler) updateInstanceInfos(m map[string]scheduler.InstanceInfo) { s.UpdateInstanceInfos(m) }
func (s scalingSubScheduler) addInstance(id string, a scheduler.InstanceArgs)         { s.AddInstance(id, a) }
func (s scalingSubScheduler) removeInstance(id string)                               { s.RemoveInstance(id) }

func (g *GlobalScheduler) subSchedulers() []subScheduler {
	return []subScheduler{
		dispatchSubScheduler{g.dispatchScheduler},
		migrationSubScheduler{g.migrationScheduler},
		scalingSubScheduler{g.scalingScheduler},
	}
}
