package scheduler

// ScalingConfig groups the parameters a ScalingPolicy reads from
// GlobalSchedulerConfig. It is a separate struct (rather than passing two
// bare arguments) because CheckScale is called every scheduling tick and a
// named struct keeps call sites readable.
type ScalingConfig struct {
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
}

// ScalingPolicy emits scale-up/scale-down counts from aggregate fleet load.
// It never decides *which* instances to add or remove — that is the
// orchestrator's membership bookkeeping — only how many.
type ScalingPolicy interface {
	CheckScale(infos []InstanceInfo, cfg ScalingConfig) (scaleUpN, scaleDownN int)
}

// Threshold is the ScalingPolicy registered as "flat-threshold": an instance contributes to
// scaleUpN if its ScalingLoadMetric exceeds ScaleUpThreshold, and to
// scaleDownN if it is both idle (no waiting or running requests) and its
// ScalingLoadMetric is below ScaleDownThreshold. Idleness is required in
// addition to the threshold so the policy never proposes removing a unit
// that still has in-flight work, even if its scalar load metric happens to
// read low.
type Threshold struct{}

func (Threshold) CheckScale(infos []InstanceInfo, cfg ScalingConfig) (int, int) {
	var upN, downN int
	for _, info := range infos {
		if info.ScalingLoadMetric > cfg.ScaleUpThreshold {
			upN++
		}
		idle := info.NumWaitingRequests == 0 && info.NumRunningRequests == 0
		if idle && info.ScalingLoadMetric < cfg.ScaleDownThreshold {
			downN++
		}
	}
	return upN, downN
}

// NoOpScaling never proposes scaling; for deployments that drive scaling
// externally and only want this package's membership bookkeeping.
type NoOpScaling struct{}

func (NoOpScaling) CheckScale(_ []InstanceInfo, _ ScalingConfig) (int, int) { return 0, 0 }

var scalingPolicyNames = map[string]bool{"flat-threshold": true, "noop": true}

// IsValidScalingPolicy reports whether name is a recognized scaling policy.
func IsValidScalingPolicy(name string) bool { return scalingPolicyNames[name] }

// NewScalingPolicy constructs a ScalingPolicy by name.
func NewScalingPolicy(name string) (ScalingPolicy, error) {
	switch name {
	case "flat-threshold":
		return Threshold{}, nil
	case "noop":
		return NoOpScaling{}, nil
	default:
		return nil, &UnknownPolicyError{Family: "scaling", Name: name}
	}
}
