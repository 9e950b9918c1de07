package global

import (
	"github.com/chord-scheduler/globalscheduler/scheduler"
)

// MigrationScheduler caches the latest instance table view, owns the
// configured PairMigrationPolicy, and derives the src/dst partition a
// PairMigrationConstraints value implies before delegating to the policy.
type MigrationScheduler struct {
	policy                  scheduler.PairMigrationPolicy
	migrateOutLoadThreshold float64
	isGroupKind             bool
	infos                   map[string]scheduler.InstanceInfo
	roles                   map[string]string // instance id -> scheduler.RolePrefill/RoleDecode/""
	groups                  map[string]string // instance id -> group id
}

// NewMigrationScheduler constructs a MigrationScheduler for the named policy.
func NewMigrationScheduler(policyName string, migrateOutLoadThreshold float64, isGroupKind bool) (*MigrationScheduler, error) {
	policy, err := scheduler.NewPairMigrationPolicy(policyName, migrateOutLoadThreshold)
	if err != nil {
		return nil, err
	}
	return &MigrationScheduler{
		policy:                  policy,
		migrateOutLoadThreshold: migrateOutLoadThreshold,
		isGroupKind:             isGroupKind,
		infos:                   make(map[string]scheduler.InstanceInfo),
		roles:                   make(map[string]string),
		groups:                  make(map[string]string),
	}, nil
}

// UpdateInstanceInfos refreshes the cached view from the shared table.
func (m *MigrationScheduler) UpdateInstanceInfos(infos map[string]scheduler.InstanceInfo) {
	m.infos = infos
}

// AddInstance registers a new instance id, recording its role and group for
// constraint partitioning.
func (m *MigrationScheduler) AddInstance(id string, args scheduler.InstanceArgs) {
	m.roles[id] = args.Role
	m.groups[id] = args.GroupID
}

// RemoveInstance drops an instance id from the role/group tables.
func (m *MigrationScheduler) RemoveInstance(id string) {
	delete(m.roles, id)
	delete(m.groups, id)
}

// partition returns (src, dst) instance lists implied by constraint.
//
//   - NoConstraints: every instance may be both a source and a destination.
//   - PrefillRerouting: only prefill-role instances, both sides (rerouting
//     among prefill replicas).
//   - Decode2Decode: only decode-role instances, both sides.
//   - Prefill2Decode: prefill instances as sources, decode instances as
//     destinations (the pd-disagg handoff direction).
//
// Instances with an unset Role only ever participate under NoConstraints.
func (m *MigrationScheduler) partition(constraint scheduler.PairMigrationConstraints) (src, dst []scheduler.InstanceInfo) {
	all := make([]scheduler.InstanceInfo, 0, len(m.infos))
	for _, info := range m.infos {
		all = append(all, info)
	}

	byRole := func(role string) []scheduler.InstanceInfo {
		var out []scheduler.InstanceInfo
		for _, info := range all {
			if m.roles[info.InstanceID] == role {
				out = append(out, info)
			}
		}
		return out
	}

	switch constraint {
	case scheduler.PrefillRerouting:
		prefill := byRole(scheduler.RolePrefill)
		return prefill, prefill
	case scheduler.Decode2Decode:
		decode := byRole(scheduler.RoleDecode)
		return decode, decode
	case scheduler.Prefill2Decode:
		return byRole(scheduler.RolePrefill), byRole(scheduler.RoleDecode)
	case scheduler.NoConstraints:
		fallthrough
	default:
		return all, all
	}
}

// PairMigration refreshes the partition from current state and delegates to
// the configured policy. When isGroupKind is set, pairs within the same
// InstanceArgs.GroupID are dropped after the fact: a group-kind migration
// backend already shares its accelerator group across the pair's members,
// so an intra-group migration would not relieve the pressure the policy is
// trying to relieve.
func (m *MigrationScheduler) PairMigration(constraint scheduler.PairMigrationConstraints) []scheduler.MigrationPair {
	src, dst := m.partition(constraint)
	pairs := m.policy.PairMigration(src, dst)
	if !m.isGroupKind {
		return pairs
	}
	out := make([]scheduler.MigrationPair, 0, len(pairs))
	for _, p := range pairs {
		if m.groups[p.Src] != "" && m.groups[p.Src] == m.groups[p.Dst] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// GetRedispatchSrcInstances returns ids eligible as urgency-redispatch
// sources, or nil if the configured policy does not implement
// RedispatchCapable (e.g. Balanced, Defrag).
func (m *MigrationScheduler) GetRedispatchSrcInstances() []string {
	capable, ok := m.policy.(scheduler.RedispatchCapable)
	if !ok {
		return nil
	}
	src, _ := m.partition(scheduler.NoConstraints)
	return capable.GetSrcInstances(src)
}

// GetRedispatchDstInstance picks a redispatch destination for req currently
// queued on srcID. ok is false if the policy does not implement
// RedispatchCapable, or if no admissible non-self destination exists.
func (m *MigrationScheduler) GetRedispatchDstInstance(srcID string, req scheduler.Request) (string, bool) {
	capable, ok := m.policy.(scheduler.RedispatchCapable)
	if !ok {
		return "", false
	}
	_, dst := m.partition(scheduler.NoConstraints)
	return capable.GetDstInstance(dst, srcID, req)
}
