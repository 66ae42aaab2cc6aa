package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/featuretrack-backend/internal/replay"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// replayPlan is a replay request kept in a file so operators can review it
// before running it.
//
//	scope: aggregate_set
//	features: [FT-1, FT-2]
//	from: 2026-01-01T00:00:00Z
//	dryRun: true
type replayPlan struct {
	Scope    string    `yaml:"scope"`
	Features []string  `yaml:"features"`
	From     time.Time `yaml:"from"`
	To       time.Time `yaml:"to"`
	DryRun   bool      `yaml:"dryRun"`
}

func newPlanCommand(open opener) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Replay the request described by a YAML plan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}
			req, err := parsePlan(data)
			if err != nil {
				return err
			}
			return execute(cmd, open, req)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to the plan file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func parsePlan(data []byte) (replay.Request, error) {
	var plan replayPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return replay.Request{}, fmt.Errorf("decode plan: %w", err)
	}

	raw := plan.Scope
	if raw == "" {
		raw = string(enums.ReplayScopeAll)
	}
	scope, err := enums.ParseReplayScope(raw)
	if err != nil {
		return replay.Request{}, err
	}

	codes := make([]string, 0, len(plan.Features))
	for _, code := range plan.Features {
		codes = append(codes, normalizeCode(code))
	}

	return replay.Request{
		Selector: replay.Selector{Scope: scope, AggregateIDs: codes},
		From:     plan.From.UTC(),
		To:       plan.To.UTC(),
		DryRun:   plan.DryRun,
	}, nil
}
