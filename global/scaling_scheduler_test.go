package global

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chord-scheduler/globalscheduler/scheduler"
)

func TestScalingScheduler_CheckScaleReflectsLatestSnapshot(t *testing.T) {
	ss, err := NewScalingScheduler("flat-threshold", 0.8, 0.2, false)
	require.NoError(t, err)
	ss.UpdateInstanceInfos(map[string]scheduler.InstanceInfo{
		"a": {InstanceID: "a", ScalingLoadMetric: 0.9},
		"b": {InstanceID: "b", ScalingLoadMetric: 0.05},
	})

	upN, downN := ss.CheckScale()
	assert.Equal(t, 1, upN)
	assert.Equal(t, 1, downN)
}

func TestScalingScheduler_AddRemoveInstanceAreNoOps(t *testing.T) {
	ss, err := NewScalingScheduler("noop", 0.8, 0.2, false)
	require.NoError(t, err)
	ss.AddInstance("a", scheduler.InstanceArgs{})
	ss.RemoveInstance("a")
	ss.UpdateInstanceInfos(map[string]scheduler.InstanceInfo{"a": {InstanceID: "a", ScalingLoadMetric: 999}})
	upN, downN := ss.CheckScale()
	assert.Zero(t, upN)
	assert.Zero(t, downN)
}

func TestScalingScheduler_GetEmptyInstanceInfo(t *testing.T) {
	ss, err := NewScalingScheduler("noop", 0.8, 0.2, false)
	require.NoError(t, err)
	info := ss.GetEmptyInstanceInfo("fresh")
	assert.Equal(t, "fresh", info.InstanceID)
	assert.True(t, scheduler.IsNoLoad(info.DispatchLoadMetric) || info.DispatchLoadMetric == 0, "placeholder must not claim real load")
}
