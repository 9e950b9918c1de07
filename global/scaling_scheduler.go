package global

import "github.com/chord-scheduler/globalscheduler/scheduler"

// ScalingScheduler caches the latest instance table view and owns the
// configured ScalingPolicy plus the threshold parameters it reads every
// call.
type ScalingScheduler struct {
	policy         scheduler.ScalingPolicy
	cfg            scheduler.ScalingConfig
	enablePDDisagg bool
	infos          map[string]scheduler.InstanceInfo
}

// NewScalingScheduler constructs a ScalingScheduler for the named policy.
func NewScalingScheduler(policyName string, scaleUpThreshold, scaleDownThreshold float64, enablePDDisagg bool) (*ScalingScheduler, error) {
	policy, err := scheduler.NewScalingPolicy(policyName)
	if err != nil {
		return nil, err
	}
	return &ScalingScheduler{
		policy: policy,
		cfg: scheduler.ScalingConfig{
			ScaleUpThreshold:   scaleUpThreshold,
			ScaleDownThreshold: scaleDownThreshold,
		},
		enablePDDisagg: enablePDDisagg,
		infos:          make(map[string]scheduler.InstanceInfo),
	}, nil
}

// UpdateInstanceInfos refreshes the cached view from the shared table.
func (s *ScalingScheduler) UpdateInstanceInfos(infos map[string]scheduler.InstanceInfo) {
	s.infos = infos
}

// AddInstance is a no-op: ScalingScheduler has no per-instance state beyond
// the shared table, unlike DispatchScheduler's counters or
// MigrationScheduler's role/group tables.
func (s *ScalingScheduler) AddInstance(string, scheduler.InstanceArgs) {}

// RemoveInstance is a no-op for the same reason as AddInstance.
func (s *ScalingScheduler) RemoveInstance(string) {}

// CheckScale delegates to the configured policy over the current snapshot.
func (s *ScalingScheduler) CheckScale() (scaleUpN, scaleDownN int) {
	infos := make([]scheduler.InstanceInfo, 0, len(s.infos))
	for _, info := range s.infos {
		infos = append(infos, info)
	}
	return s.policy.CheckScale(infos, s.cfg)
}

// GetEmptyInstanceInfo returns the placeholder InstanceInfo GlobalScheduler
// inserts for a newly scaled-up instance before its first telemetry arrives.
func (s *ScalingScheduler) GetEmptyInstanceInfo(id string) scheduler.InstanceInfo {
	return scheduler.EmptyInstanceInfo(id)
}
