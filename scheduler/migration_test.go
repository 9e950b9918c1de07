package scheduler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancedMigration_RejectsWorseningPair(t *testing.T) {
	// S5: diff_before=10, diff_after=12 (worsens) -> empty result.
	src := []InstanceInfo{
		{InstanceID: "src", MigrationLoadMetric: 20, MigrationLoadMetricAfterMigrateOut: 26},
	}
	dst := []InstanceInfo{
		{InstanceID: "dst", MigrationLoadMetric: 10, MigrationLoadMetricAfterMigrateIn: 14},
	}
	// diff_before = 20-10 = 10; diff_after = 26-14 = 12 (not < diff_before).
	p := Balanced{MigrateOutLoadThreshold: 100}
	pairs := p.PairMigration(src, dst)
	assert.Empty(t, pairs)
}

func TestBalancedMigration_AcceptsImprovingPair(t *testing.T) {
	// diff_before = 20-10 = 10; diff_after = 16-12 = 4, and 0<4<10: accept.
	src := []InstanceInfo{
		{InstanceID: "src", MigrationLoadMetric: 20, MigrationLoadMetricAfterMigrateOut: 16},
	}
	dst := []InstanceInfo{
		{InstanceID: "dst", MigrationLoadMetric: 10, MigrationLoadMetricAfterMigrateIn: 12},
	}
	p := Balanced{MigrateOutLoadThreshold: 100}
	pairs := p.PairMigration(src, dst)
	require.Len(t, pairs, 1)
	assert.Equal(t, MigrationPair{Src: "src", Dst: "dst"}, pairs[0])
}

func TestBalancedMigration_RejectsOverloadedReceiver(t *testing.T) {
	src := []InstanceInfo{
		{InstanceID: "src", MigrationLoadMetric: 20, MigrationLoadMetricAfterMigrateOut: 16},
	}
	dst := []InstanceInfo{
		{InstanceID: "dst", MigrationLoadMetric: 10, MigrationLoadMetricAfterMigrateIn: 12},
	}
	p := Balanced{MigrateOutLoadThreshold: 11} // dst_after (12) > threshold (11)
	pairs := p.PairMigration(src, dst)
	assert.Empty(t, pairs)
}

func TestBalancedMigration_AlwaysAcceptsEmptyReceiver(t *testing.T) {
	src := []InstanceInfo{
		{InstanceID: "src", MigrationLoadMetric: 20, MigrationLoadMetricAfterMigrateOut: 16},
	}
	dst := []InstanceInfo{
		{InstanceID: "dst", MigrationLoadMetric: math.Inf(-1), MigrationLoadMetricAfterMigrateIn: 0},
	}
	p := Balanced{MigrateOutLoadThreshold: 100}
	pairs := p.PairMigration(src, dst)
	require.Len(t, pairs, 1)
}

func TestDefragMigration_PairsUnconditionally(t *testing.T) {
	src := []InstanceInfo{
		{InstanceID: "s1", MigrationLoadMetric: 5},
		{InstanceID: "s2", MigrationLoadMetric: 20},
	}
	dst := []InstanceInfo{
		{InstanceID: "d1", MigrationLoadMetric: 1},
		{InstanceID: "d2", MigrationLoadMetric: 2},
	}
	pairs := Defrag{}.PairMigration(src, dst)
	require.Len(t, pairs, 2)
	assert.Equal(t, MigrationPair{Src: "s2", Dst: "d1"}, pairs[0])
	assert.Equal(t, MigrationPair{Src: "s1", Dst: "d2"}, pairs[1])
}

func TestUrgency_PairMigrationIsNoOp(t *testing.T) {
	assert.Nil(t, Urgency{}.PairMigration(nil, nil))
}

func TestUrgency_GetSrcInstances(t *testing.T) {
	infos := []InstanceInfo{
		{InstanceID: "a", NumWaitingRequests: 0},
		{InstanceID: "b", NumWaitingRequests: 5},
		{InstanceID: "c", NumWaitingRequests: 2},
	}
	ids := Urgency{}.GetSrcInstances(infos)
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestUrgency_GetSrcInstances_NoneQueued(t *testing.T) {
	infos := []InstanceInfo{{InstanceID: "a"}, {InstanceID: "b"}}
	assert.Nil(t, Urgency{}.GetSrcInstances(infos))
}

func TestUrgency_GetDstInstance_NoSelfRedispatch(t *testing.T) {
	dst := []InstanceInfo{
		{InstanceID: "src", NumFreeGPUBlocks: 100, NumWatermarkBlocks: 5, NumRunningRequests: 1},
	}
	id, ok := Urgency{}.GetDstInstance(dst, "src", Request{NBlocks: 8})
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestUrgency_GetDstInstance_PicksBestFreeRatio(t *testing.T) {
	dst := []InstanceInfo{
		{InstanceID: "a", NumFreeGPUBlocks: 100, NumWatermarkBlocks: 5, NumRunningRequests: 10},
		{InstanceID: "b", NumFreeGPUBlocks: 50, NumWatermarkBlocks: 5, NumRunningRequests: 1},
	}
	// a: 100/10 = 10; b: 50/1 = 50. b wins.
	id, ok := Urgency{}.GetDstInstance(dst, "src", Request{NBlocks: 8})
	assert.True(t, ok)
	assert.Equal(t, "b", id)
}

func TestUrgency_GetDstInstance_NoneAdmissible(t *testing.T) {
	dst := []InstanceInfo{
		{InstanceID: "a", NumFreeGPUBlocks: 10, NumWatermarkBlocks: 5},
	}
	_, ok := Urgency{}.GetDstInstance(dst, "src", Request{NBlocks: 8}) // 10-5-8 = -3, not > 0
	assert.False(t, ok)
}

func TestNewPairMigrationPolicy_UnknownPolicy(t *testing.T) {
	_, err := NewPairMigrationPolicy("nonexistent", 0)
	require.Error(t, err)
	var upe *UnknownPolicyError
	assert.ErrorAs(t, err, &upe)
	assert.Equal(t, "pair-migration", upe.Family)
}
