package scheduler

import (
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// DispatchPolicy chooses one instance to serve a freshly arrived request.
// Implementations must be side-effect free on their inputs: instanceNumRequests
// and available are read-only. RoundRobin is the only variant that keeps
// state across calls (a cursor), and that state lives on the policy value
// itself, not in the arguments.
type DispatchPolicy interface {
	Dispatch(instanceNumRequests map[string]int, available []InstanceInfo, topkRandomDispatch int, reqNBlocks int64) (string, error)
}

// Flood always picks the instance with the maximum instanceNumRequests.
// Test-only: intentionally anti-balanced, useful for exercising overload
// paths in the rest of the pipeline.
type Flood struct{}

func (Flood) Dispatch(instanceNumRequests map[string]int, _ []InstanceInfo, _ int, _ int64) (string, error) {
	if len(instanceNumRequests) == 0 {
		return "", ErrNoCandidate
	}
	best, bestN := "", 0
	first := true
	for id, n := range instanceNumRequests {
		if first || n > bestN {
			best, bestN = id, n
			first = false
		}
	}
	return best, nil
}

// Balanced picks the instance with the minimum instanceNumRequests. Ties are
// broken by Go's map iteration order, same as the source's reliance on dict
// iteration order — deliberately not made deterministic here, matching the
// source's behavior, since instanceNumRequests already reflects dispatcher-
// side bookkeeping rather than fleet telemetry.
type Balanced struct{}

func (Balanced) Dispatch(instanceNumRequests map[string]int, _ []InstanceInfo, _ int, _ int64) (string, error) {
	if len(instanceNumRequests) == 0 {
		return "", ErrNoCandidate
	}
	best, bestN := "", 0
	first := true
	for id, n := range instanceNumRequests {
		if first || n < bestN {
			best, bestN = id, n
			first = false
		}
	}
	return best, nil
}

// Load sorts available instances ascending by DispatchLoadMetric and returns
// a uniformly random pick from the top-k, k = min(topkRandomDispatch, n).
type Load struct {
	rng *rand.Rand
}

// NewLoad returns a Load policy seeded from the process clock. Use
// NewLoadWithSeed for deterministic tests.
func NewLoad() *Load { return NewLoadWithSeed(time.Now().UnixNano()) }

// NewLoadWithSeed returns a Load policy with a deterministic RNG, for tests.
func NewLoadWithSeed(seed int64) *Load {
	return &Load{rng: rand.New(rand.NewSource(seed))}
}

func (p *Load) Dispatch(_ map[string]int, available []InstanceInfo, topkRandomDispatch int, _ int64) (string, error) {
	if len(available) == 0 {
		return "", ErrNoCandidate
	}
	sorted := sortedByMetric(available, func(i InstanceInfo) float64 { return i.DispatchLoadMetric }, false)
	return randomTopK(p.rng, sorted, topkRandomDispatch).InstanceID, nil
}

// Queue is Load but sorted by NumWaitingRequests instead of DispatchLoadMetric.
type Queue struct {
	rng *rand.Rand
}

func NewQueue() *Queue { return NewQueueWithSeed(time.Now().UnixNano()) }

func NewQueueWithSeed(seed int64) *Queue {
	return &Queue{rng: rand.New(rand.NewSource(seed))}
}

func (p *Queue) Dispatch(_ map[string]int, available []InstanceInfo, topkRandomDispatch int, _ int64) (string, error) {
	if len(available) == 0 {
		return "", ErrNoCandidate
	}
	sorted := sortedByMetric(available, func(i InstanceInfo) float64 { return float64(i.NumWaitingRequests) }, false)
	return randomTopK(p.rng, sorted, topkRandomDispatch).InstanceID, nil
}

// RoundRobin cycles through the lexicographically sorted set of known
// instance ids. The cursor is not remapped when membership changes; it
// simply wraps against whatever set size is current on the next call.
type RoundRobin struct {
	prevIdx int
}

// NewRoundRobin returns a RoundRobin policy with a fresh cursor.
func NewRoundRobin() *RoundRobin { return &RoundRobin{prevIdx: -1} }

func (p *RoundRobin) Dispatch(instanceNumRequests map[string]int, _ []InstanceInfo, _ int, _ int64) (string, error) {
	if len(instanceNumRequests) == 0 {
		return "", ErrNoCandidate
	}
	ids := make([]string, 0, len(instanceNumRequests))
	for id := range instanceNumRequests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	next := (p.prevIdx + 1) % len(ids)
	p.prevIdx = next
	return ids[next], nil
}

// Loadv2 is a block-aware, overload-aware policy. See the Loadv2 method doc
// below for the full decision tree; the branch structure here mirrors the
// source exactly, including the non-obvious "pack toward the busiest
// instance below the frontier" behavior in the not-overloaded branch.
type Loadv2 struct{}

// Dispatch implements DispatchPolicy for Loadv2.
//
//  1. max_used = max NumUsedGPUBlocks over available.
//  2. If every available instance has zero waiting requests (system not
//     overloaded): compute slack(i) = max_used - watermark(i) - used(i) -
//     reqNBlocks for each i; among instances with slack >= 0, pick the one
//     with the smallest slack (tightest fit below the current frontier).
//     If none have non-negative slack, pick the instance with the smallest
//     overshoot of the frontier instead.
//  3. Otherwise (some instance has a non-empty queue, i.e. the fleet is
//     overloaded): pick the instance with the most waiting requests,
//     concentrating the overload so the migration subsystem can redispatch
//     it later. This intentionally sorts the full available set rather
//     than the filtered idle set — "dispatch to the logical scheduling
//     center" in the source's own words.
func (Loadv2) Dispatch(_ map[string]int, available []InstanceInfo, _ int, reqNBlocks int64) (string, error) {
	if len(available) == 0 {
		return "", ErrNoCandidate
	}

	var maxUsed int64
	idleCount := 0
	for _, info := range available {
		if info.NumUsedGPUBlocks > maxUsed {
			maxUsed = info.NumUsedGPUBlocks
		}
		if info.NumWaitingRequests == 0 {
			idleCount++
		}
	}

	if idleCount == len(available) {
		slack := func(i InstanceInfo) int64 {
			return maxUsed - i.NumWatermarkBlocks - i.NumUsedGPUBlocks - reqNBlocks
		}
		fits := false
		var best InstanceInfo
		var bestSlack int64
		for _, info := range available {
			if s := slack(info); s >= 0 {
				if !fits || s < bestSlack {
					best, bestSlack = info, s
					fits = true
				}
			}
		}
		if fits {
			logrus.Debugf("dispatch(loadv2): system not overloaded, picked %s (slack=%d)", best.InstanceID, bestSlack)
			return best.InstanceID, nil
		}
		overshoot := func(i InstanceInfo) int64 {
			return i.NumUsedGPUBlocks + reqNBlocks + i.NumWatermarkBlocks - maxUsed
		}
		best = available[0]
		bestOver := overshoot(available[0])
		for _, info := range available[1:] {
			if o := overshoot(info); o < bestOver {
				best, bestOver = info, o
			}
		}
		logrus.Debugf("dispatch(loadv2): system growing steadily, picked %s (overshoot=%d)", best.InstanceID, bestOver)
		return best.InstanceID, nil
	}

	best := available[0]
	for _, info := range available[1:] {
		if info.NumWaitingRequests > best.NumWaitingRequests {
			best = info
		}
	}
	logrus.Debugf("dispatch(loadv2): system overloaded, routing to logical scheduling center %s", best.InstanceID)
	return best.InstanceID, nil
}

// sortedByMetric returns a copy of infos sorted by metric, ascending unless
// descending is true. The sort is stable so ties keep first-occurrence order.
func sortedByMetric(infos []InstanceInfo, metric func(InstanceInfo) float64, descending bool) []InstanceInfo {
	out := make([]InstanceInfo, len(infos))
	copy(out, infos)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return metric(out[i]) > metric(out[j])
		}
		return metric(out[i]) < metric(out[j])
	})
	return out
}

// randomTopK returns a uniformly random element of the first
// min(k, len(sorted)) elements. k <= 0 is clamped to 1.
func randomTopK(rng *rand.Rand, sorted []InstanceInfo, k int) InstanceInfo {
	if k < 1 {
		k = 1
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[rng.Intn(k)]
}

// dispatchPolicyNames enumerates the registry for NewDispatchPolicy and
// config validation. Unexported to prevent external mutation.
var dispatchPolicyNames = map[string]bool{
	"flood": true, "balanced": true, "load": true, "queue": true, "rr": true, "loadv2": true,
}

// IsValidDispatchPolicy reports whether name is a recognized dispatch policy.
func IsValidDispatchPolicy(name string) bool { return dispatchPolicyNames[name] }

// NewDispatchPolicy constructs a DispatchPolicy by name. seed controls the
// RNG for policies that need randomness (load, queue); pass 0 to seed from
// the process clock instead.
func NewDispatchPolicy(name string, seed int64) (DispatchPolicy, error) {
	switch name {
	case "flood":
		return Flood{}, nil
	case "balanced":
		return Balanced{}, nil
	case "load":
		if seed == 0 {
			return NewLoad(), nil
		}
		return NewLoadWithSeed(seed), nil
	case "queue":
		if seed == 0 {
			return NewQueue(), nil
		}
		return NewQueueWithSeed(seed), nil
	case "rr":
		return NewRoundRobin(), nil
	case "loadv2":
		return Loadv2{}, nil
	default:
		return nil, &UnknownPolicyError{Family: "dispatch", Name: name}
	}
}
