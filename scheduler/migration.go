package scheduler

import "sort"

// PairMigrationConstraints selects how the MigrationScheduler partitions the
// fleet into migration sources and destinations before calling a policy.
type PairMigrationConstraints string

const (
	NoConstraints     PairMigrationConstraints = "NO_CONSTRAINTS"
	PrefillRerouting  PairMigrationConstraints = "PREFILL_REROUTING"
	Decode2Decode     PairMigrationConstraints = "DECODE_2_DECODE"
	Prefill2Decode    PairMigrationConstraints = "PREFILL_2_DECODE"
)

// MigrationPair is one (src, dst) instance id pair chosen for migration.
type MigrationPair struct {
	Src string
	Dst string
}

// PairMigrationPolicy chooses (src, dst) instance pairs for batch migration
// of already-queued or running requests. srcInfos and dstInfos are two
// partitions of the fleet supplied by MigrationScheduler; a policy must not
// assume they are disjoint in general, only that they represent "who may
// migrate out" and "who may migrate in" for this call.
type PairMigrationPolicy interface {
	PairMigration(srcInfos, dstInfos []InstanceInfo) []MigrationPair
}

// RedispatchCapable is implemented only by policies that also drive urgency-
// based redispatch of waiting requests. Not every PairMigrationPolicy needs
// this — modeled as an optional capability (checked with a type assertion)
// rather than a required method, since e.g. Balanced and Defrag have no
// notion of per-request redispatch.
type RedispatchCapable interface {
	// GetSrcInstances returns instance ids with num_waiting_requests > 0,
	// sorted descending by num_waiting_requests (most backlogged first).
	// Returns nil if no instance has a non-empty queue.
	GetSrcInstances(srcInfos []InstanceInfo) []string

	// GetDstInstance picks a redispatch destination for one request
	// currently queued on srcID. ok is false if no admissible destination
	// exists, or if the best destination is srcID itself (no self-redispatch).
	GetDstInstance(dstInfos []InstanceInfo, srcID string, req Request) (dst string, ok bool)
}

// sortByMigrationLoad returns a copy of infos sorted by MigrationLoadMetric,
// ascending unless descending is true. Stable, so ties keep
// first-occurrence order.
func sortByMigrationLoad(infos []InstanceInfo, descending bool) []InstanceInfo {
	out := make([]InstanceInfo, len(infos))
	copy(out, infos)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].MigrationLoadMetric > out[j].MigrationLoadMetric
		}
		return out[i].MigrationLoadMetric < out[j].MigrationLoadMetric
	})
	return out
}

// Balanced pairs the most-loaded migration sources with the least-loaded
// destinations, accepting a pair only when migrating strictly reduces the
// load imbalance between them without flipping their relative order (the
// anti-ping-pong guard), or when the destination is currently empty.
type Balanced struct {
	MigrateOutLoadThreshold float64
}

func (p Balanced) PairMigration(srcInfos, dstInfos []InstanceInfo) []MigrationPair {
	sortedSrc := sortByMigrationLoad(srcInfos, true)
	sortedDst := sortByMigrationLoad(dstInfos, false)

	n := len(sortedSrc)
	if len(sortedDst) < n {
		n = len(sortedDst)
	}

	var pairs []MigrationPair
	for i := 0; i < n; i++ {
		src, dst := sortedSrc[i], sortedDst[i]
		diffBefore := src.MigrationLoadMetric - dst.MigrationLoadMetric
		dstAfter := dst.MigrationLoadMetricAfterMigrateIn
		srcAfter := src.MigrationLoadMetricAfterMigrateOut

		if dstAfter > p.MigrateOutLoadThreshold {
			continue
		}
		diffAfter := srcAfter - dstAfter
		if (diffAfter > 0 && diffAfter < diffBefore) || IsNoLoad(dst.MigrationLoadMetric) {
			pairs = append(pairs, MigrationPair{Src: src.InstanceID, Dst: dst.InstanceID})
		}
	}
	return pairs
}

// Defrag pairs the most-loaded sources with the least-loaded destinations
// unconditionally, used when the goal is compaction rather than measured
// load reduction.
type Defrag struct{}

func (Defrag) PairMigration(srcInfos, dstInfos []InstanceInfo) []MigrationPair {
	sortedSrc := sortByMigrationLoad(srcInfos, true)
	sortedDst := sortByMigrationLoad(dstInfos, false)

	n := len(sortedSrc)
	if len(sortedDst) < n {
		n = len(sortedDst)
	}
	pairs := make([]MigrationPair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, MigrationPair{Src: sortedSrc[i].InstanceID, Dst: sortedDst[i].InstanceID})
	}
	return pairs
}

// Urgency drives per-request redispatch instead of batch pair migration;
// PairMigration is a no-op for it (see spec's open question on modeling this
// as an optional capability).
type Urgency struct{}

func (Urgency) PairMigration(_, _ []InstanceInfo) []MigrationPair { return nil }

const redispatchEpsilon = 1e-5

// GetSrcInstances implements RedispatchCapable for Urgency.
func (Urgency) GetSrcInstances(srcInfos []InstanceInfo) []string {
	var withQueue []InstanceInfo
	for _, info := range srcInfos {
		if info.NumWaitingRequests > 0 {
			withQueue = append(withQueue, info)
		}
	}
	if len(withQueue) == 0 {
		return nil
	}
	sort.SliceStable(withQueue, func(i, j int) bool {
		return withQueue[i].NumWaitingRequests > withQueue[j].NumWaitingRequests
	})
	ids := make([]string, len(withQueue))
	for i, info := range withQueue {
		ids[i] = info.InstanceID
	}
	return ids
}

// GetDstInstance implements RedispatchCapable for Urgency.
func (Urgency) GetDstInstance(dstInfos []InstanceInfo, srcID string, req Request) (string, bool) {
	var admissible []InstanceInfo
	for _, info := range dstInfos {
		if info.NumFreeGPUBlocks-info.NumWatermarkBlocks-req.NBlocks > 0 {
			admissible = append(admissible, info)
		}
	}
	if len(admissible) == 0 {
		return "", false
	}
	sort.SliceStable(admissible, func(i, j int) bool {
		ri := float64(admissible[i].NumFreeGPUBlocks) / (float64(admissible[i].NumRunningRequests) + redispatchEpsilon)
		rj := float64(admissible[j].NumFreeGPUBlocks) / (float64(admissible[j].NumRunningRequests) + redispatchEpsilon)
		return ri > rj
	})
	best := admissible[0].InstanceID
	if best == srcID {
		return "", false
	}
	return best, true
}

// pairMigrationPolicyNames enumerates the registry for NewPairMigrationPolicy
// and config validation.
var pairMigrationPolicyNames = map[string]bool{"balanced": true, "defrag": true, "urgency": true}

// IsValidPairMigrationPolicy reports whether name is a recognized pair-
// migration policy.
func IsValidPairMigrationPolicy(name string) bool { return pairMigrationPolicyNames[name] }

// NewPairMigrationPolicy constructs a PairMigrationPolicy by name.
// migrateOutLoadThreshold is used only by "balanced".
func NewPairMigrationPolicy(name string, migrateOutLoadThreshold float64) (PairMigrationPolicy, error) {
	switch name {
	case "balanced":
		return Balanced{MigrateOutLoadThreshold: migrateOutLoadThreshold}, nil
	case "defrag":
		return Defrag{}, nil
	case "urgency":
		return Urgency{}, nil
	default:
		return nil, &UnknownPolicyError{Family: "pair-migration", Name: name}
	}
}
