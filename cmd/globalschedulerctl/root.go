// Command globalschedulerctl is a small operator harness for exercising the
// global scheduler library end to end against a YAML fleet snapshot and
// policy bundle: it is not a production control plane (no RPC server is
// implemented here, per spec.md's out-of-scope transport/RPC boundary),
// just a way to drive a decision from the command line and see it.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chord-scheduler/globalscheduler/global"
	"github.com/chord-scheduler/globalscheduler/scheduler"
)

var (
	bundlePath string
	fleetPath  string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "globalschedulerctl",
		Short: "Drive global scheduler decisions against a fleet snapshot",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&bundlePath, "bundle", "", "path to a policy bundle YAML file (required)")
	root.PersistentFlags().StringVar(&fleetPath, "fleet", "", "path to a fleet snapshot YAML file (required)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log decision-point detail")
	root.MarkPersistentFlagRequired("bundle")
	root.MarkPersistentFlagRequired("fleet")

	root.AddCommand(newDispatchCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newScaleCmd())
	root.AddCommand(newRedispatchPlanCmd())
	return root
}

// buildScheduler loads the bundle and fleet, validates the resulting
// config, and returns a GlobalScheduler with every fleet instance already
// scaled up and its snapshot ingested.
func buildScheduler() (*global.GlobalScheduler, error) {
	bundle, err := scheduler.LoadBundle(bundlePath)
	if err != nil {
		return nil, err
	}
	cfg := bundle.ToConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy bundle: %w", err)
	}

	fleet, err := loadFleet(fleetPath)
	if err != nil {
		return nil, err
	}

	gs, err := global.NewGlobalScheduler(cfg)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(fleet))
	args := make([]scheduler.InstanceArgs, len(fleet))
	for i, info := range fleet {
		ids[i] = info.InstanceID
	}
	gs.ScaleUp(ids, args)
	gs.UpdateInstanceInfos(fleet)
	return gs, nil
}

func newDispatchCmd() *cobra.Command {
	var blocks int64
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Choose an instance for a request needing --blocks blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, err := buildScheduler()
			if err != nil {
				return err
			}
			id, expectedSteps, err := gs.Dispatch(blocks)
			if err != nil {
				return err
			}
			fmt.Printf("instance=%s expected_steps=%v\n", id, expectedSteps)
			return nil
		},
	}
	cmd.Flags().Int64Var(&blocks, "blocks", 1, "blocks the request needs to be admitted")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var constraint string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "List (src, dst) pairs chosen for batch migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, err := buildScheduler()
			if err != nil {
				return err
			}
			pairs := gs.PairMigration(scheduler.PairMigrationConstraints(constraint))
			if len(pairs) == 0 {
				fmt.Println("no migration pairs selected")
				return nil
			}
			for _, p := range pairs {
				fmt.Printf("%s -> %s\n", p.Src, p.Dst)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&constraint, "constraint", string(scheduler.NoConstraints), "one of NO_CONSTRAINTS, PREFILL_REROUTING, DECODE_2_DECODE, PREFILL_2_DECODE")
	return cmd
}

func newScaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Print the proposed (scale_up_n, scale_down_n) for the current fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, err := buildScheduler()
			if err != nil {
				return err
			}
			upN, downN := gs.CheckScale()
			fmt.Printf("scale_up=%d scale_down=%d\n", upN, downN)
			return nil
		},
	}
	return cmd
}

func newRedispatchPlanCmd() *cobra.Command {
	var masterID, requestsPath string
	cmd := &cobra.Command{
		Use:   "redispatch-plan",
		Short: "Derive a redispatch plan for waiting requests queued on --master",
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, err := buildScheduler()
			if err != nil {
				return err
			}
			requests, err := loadRequests(requestsPath)
			if err != nil {
				return err
			}
			candidates := gs.GetRedispatchDstInfos()
			plan := gs.DeriveRedispatchingPlans(masterID, requests, candidates)
			if len(plan) == 0 {
				fmt.Println("no requests redispatched")
				return nil
			}
			for dst, ids := range plan {
				fmt.Printf("%s:", dst)
				for id := range ids {
					fmt.Printf(" %s", id)
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&masterID, "master", "", "instance id the requests are currently queued on (required)")
	cmd.Flags().StringVar(&requestsPath, "requests", "", "path to a YAML list of waiting requests (required)")
	cmd.MarkFlagRequired("master")
	cmd.MarkFlagRequired("requests")
	return cmd
}
