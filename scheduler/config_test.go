package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() GlobalSchedulerConfig {
	return GlobalSchedulerConfig{
		DispatchPolicy:     "balanced",
		TopKRandomDispatch: 2,
		PairMigrationPolicy:     "balanced",
		MigrateOutLoadThreshold: 10,
		ScalingPolicy:           "flat-threshold",
		ScaleUpThreshold:        0.8,
		ScaleDownThreshold:      0.2,
	}
}

func TestGlobalSchedulerConfig_ValidatesCleanConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestGlobalSchedulerConfig_RejectsUnknownDispatchPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.DispatchPolicy = "nonexistent"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch policy")
}

func TestGlobalSchedulerConfig_RejectsZeroTopK(t *testing.T) {
	cfg := validConfig()
	cfg.TopKRandomDispatch = 0
	require.Error(t, cfg.Validate())
}

func TestGlobalSchedulerConfig_RejectsInvertedThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.ScaleDownThreshold = 0.9
	cfg.ScaleUpThreshold = 0.1
	require.Error(t, cfg.Validate())
}
