package scheduler

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle is the on-disk, YAML-loadable form of GlobalSchedulerConfig.
// Grounded on the teacher's PolicyBundle: strict decoding (unrecognized
// keys are rejected, catching typos), then ToConfig, then a separate
// GlobalSchedulerConfig.Validate pass on the resulting config.
type Bundle struct {
	Dispatch      DispatchBundle      `yaml:"dispatch"`
	PairMigration PairMigrationBundle `yaml:"pair_migration"`
	Scaling       ScalingBundle       `yaml:"scaling"`
	EnablePDDisagg bool               `yaml:"enable_pd_disagg"`
	Seed          int64               `yaml:"seed"`
}

// DispatchBundle holds dispatch policy configuration.
type DispatchBundle struct {
	Policy             string `yaml:"policy"`
	TopKRandomDispatch int    `yaml:"topk_random_dispatch"`
}

// PairMigrationBundle holds pair-migration policy configuration.
type PairMigrationBundle struct {
	Policy                      string  `yaml:"policy"`
	MigrateOutLoadThreshold     float64 `yaml:"migrate_out_load_threshold"`
	IsGroupKindMigrationBackend bool    `yaml:"is_group_kind_migration_backend"`
}

// ScalingBundle holds scaling policy configuration.
type ScalingBundle struct {
	Policy             string  `yaml:"policy"`
	ScaleUpThreshold   float64 `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64 `yaml:"scale_down_threshold"`
	LoadMetric         string  `yaml:"load_metric"`
}

// LoadBundle reads and strictly parses a YAML policy configuration file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy bundle: %w", err)
	}
	var b Bundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("parsing policy bundle: %w", err)
	}
	return &b, nil
}

// ToConfig converts a Bundle into a GlobalSchedulerConfig. Does not call
// Validate; callers should validate the result before constructing a
// GlobalScheduler from it.
func (b *Bundle) ToConfig() GlobalSchedulerConfig {
	return GlobalSchedulerConfig{
		DispatchPolicy:              b.Dispatch.Policy,
		TopKRandomDispatch:          b.Dispatch.TopKRandomDispatch,
		PairMigrationPolicy:         b.PairMigration.Policy,
		MigrateOutLoadThreshold:     b.PairMigration.MigrateOutLoadThreshold,
		IsGroupKindMigrationBackend: b.PairMigration.IsGroupKindMigrationBackend,
		ScaleUpThreshold:            b.Scaling.ScaleUpThreshold,
		ScaleDownThreshold:          b.Scaling.ScaleDownThreshold,
		ScalingPolicy:               b.Scaling.Policy,
		ScalingLoadMetric:           b.Scaling.LoadMetric,
		EnablePDDisagg:              b.EnablePDDisagg,
		Seed:                        b.Seed,
	}
}
