package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanced_PicksMinimum(t *testing.T) {
	// S1: instance_num_requests = {a:3, b:1, c:2} -> b.
	p := Balanced{}
	id, err := p.Dispatch(map[string]int{"a": 3, "b": 1, "c": 2}, nil, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestFlood_PicksMaximum(t *testing.T) {
	p := Flood{}
	id, err := p.Dispatch(map[string]int{"a": 3, "b": 1, "c": 2}, nil, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
}

func TestBalanced_EmptyIsNoCandidate(t *testing.T) {
	p := Balanced{}
	_, err := p.Dispatch(map[string]int{}, nil, 1, 0)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestRoundRobin_FourCallsCyclesThree(t *testing.T) {
	// S4: ids={x,y,z}, four calls from a fresh scheduler -> x,y,z,x.
	p := NewRoundRobin()
	ids := map[string]int{"x": 0, "y": 0, "z": 0}
	var got []string
	for i := 0; i < 4; i++ {
		id, err := p.Dispatch(ids, nil, 1, 0)
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, []string{"x", "y", "z", "x"}, got)
}

func TestRoundRobin_FairnessOverManyCalls(t *testing.T) {
	p := NewRoundRobin()
	ids := map[string]int{"a": 0, "b": 0, "c": 0}
	counts := map[string]int{}
	const k = 100
	for i := 0; i < k; i++ {
		id, err := p.Dispatch(ids, nil, 1, 0)
		require.NoError(t, err)
		counts[id]++
	}
	for id, n := range counts {
		assert.GreaterOrEqual(t, n, k/3, "instance %s under-served", id)
		assert.LessOrEqual(t, n, k/3+1, "instance %s over-served", id)
	}
}

func TestRoundRobin_CursorSurvivesMembershipChange(t *testing.T) {
	p := NewRoundRobin()
	id, err := p.Dispatch(map[string]int{"a": 0, "b": 0}, nil, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	// Membership grows; cursor is not remapped, it just wraps against the
	// new set size on the next call.
	id, err = p.Dispatch(map[string]int{"a": 0, "b": 0, "c": 0}, nil, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestLoadv2_NotOverloadedFits(t *testing.T) {
	// S2: three instances, none waiting, used=[40,20,10], watermark=5,
	// req_n_blocks=8. max_used=40. slacks = [-13, 7, 17]. F1={b,c};
	// argmin slack = b.
	infos := []InstanceInfo{
		{InstanceID: "a", NumUsedGPUBlocks: 40, NumWatermarkBlocks: 5},
		{InstanceID: "b", NumUsedGPUBlocks: 20, NumWatermarkBlocks: 5},
		{InstanceID: "c", NumUsedGPUBlocks: 10, NumWatermarkBlocks: 5},
	}
	id, err := Loadv2{}.Dispatch(nil, infos, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestLoadv2_Overloaded(t *testing.T) {
	// S3: num_waiting_requests=[0,5,2] -> argmax -> instance 2 (5 waiters).
	infos := []InstanceInfo{
		{InstanceID: "i0", NumWaitingRequests: 0},
		{InstanceID: "i1", NumWaitingRequests: 5},
		{InstanceID: "i2", NumWaitingRequests: 2},
	}
	id, err := Loadv2{}.Dispatch(nil, infos, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, "i1", id)
}

func TestLoadv2_NotOverloadedNoFit_PicksLeastOvershoot(t *testing.T) {
	// All idle, but no instance has non-negative slack: fall back to
	// least overshoot of the frontier.
	infos := []InstanceInfo{
		{InstanceID: "a", NumUsedGPUBlocks: 10, NumWatermarkBlocks: 2},
		{InstanceID: "b", NumUsedGPUBlocks: 9, NumWatermarkBlocks: 2},
	}
	// max_used=10; slack(a) = 10-2-10-20 = -22; slack(b) = 10-2-9-20 = -21.
	// Neither fits; overshoot(a) = 10+20+2-10 = 22; overshoot(b) = 9+20+2-10 = 21.
	id, err := Loadv2{}.Dispatch(nil, infos, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestLoadv2_EmptyIsNoCandidate(t *testing.T) {
	_, err := Loadv2{}.Dispatch(nil, nil, 1, 1)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestLoad_TopKRandomPick(t *testing.T) {
	infos := []InstanceInfo{
		{InstanceID: "a", DispatchLoadMetric: 3},
		{InstanceID: "b", DispatchLoadMetric: 1},
		{InstanceID: "c", DispatchLoadMetric: 2},
	}
	p := NewLoadWithSeed(1)
	id, err := p.Dispatch(nil, infos, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", id, "topk=1 must pick the strict minimum")
}

func TestQueue_TopKRandomPick(t *testing.T) {
	infos := []InstanceInfo{
		{InstanceID: "a", NumWaitingRequests: 3},
		{InstanceID: "b", NumWaitingRequests: 1},
		{InstanceID: "c", NumWaitingRequests: 2},
	}
	p := NewQueueWithSeed(1)
	id, err := p.Dispatch(nil, infos, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestNewDispatchPolicy_UnknownPolicy(t *testing.T) {
	_, err := NewDispatchPolicy("nonexistent", 0)
	require.Error(t, err)
	var upe *UnknownPolicyError
	assert.ErrorAs(t, err, &upe)
	assert.Equal(t, "dispatch", upe.Family)
}

func TestNewDispatchPolicy_AllRegistered(t *testing.T) {
	for _, name := range []string{"flood", "balanced", "load", "queue", "rr", "loadv2"} {
		_, err := NewDispatchPolicy(name, 1)
		assert.NoError(t, err, "policy %q should construct", name)
	}
}
