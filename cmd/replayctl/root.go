package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/featuretrack-backend/internal/replay"
)

type replayer interface {
	Replay(ctx context.Context, req replay.Request) (*replay.Result, error)
}

// opener builds the replayer lazily so flag errors never touch the database.
type opener func(ctx context.Context) (replayer, func() error, error)

type rootOptions struct {
	DryRun bool
	From   string
	To     string
}

func newRootCommand(open opener) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "replayctl",
		Short:         "Replay stored feature events through the notification handler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "count matching events without executing handlers")
	cmd.PersistentFlags().StringVar(&opts.From, "from", "", "inclusive lower bound on occurredAt (RFC3339)")
	cmd.PersistentFlags().StringVar(&opts.To, "to", "", "inclusive upper bound on occurredAt (RFC3339)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "feature CODE",
			Short: "Replay every event of one feature",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSelector(cmd, open, opts, replay.Aggregate(normalizeCode(args[0])))
			},
		},
		&cobra.Command{
			Use:   "features CODE...",
			Short: "Replay the events of a set of features",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				codes := make([]string, 0, len(args))
				for _, arg := range args {
					for _, part := range strings.Split(arg, ",") {
						codes = append(codes, normalizeCode(part))
					}
				}
				return runSelector(cmd, open, opts, replay.AggregateSet(codes))
			},
		},
		&cobra.Command{
			Use:   "range",
			Short: "Replay every stored event, optionally bounded by --from/--to",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSelector(cmd, open, opts, replay.All())
			},
		},
		newPlanCommand(open),
	)

	return cmd
}

func runSelector(cmd *cobra.Command, open opener, opts *rootOptions, selector replay.Selector) error {
	from, err := parseBound("from", opts.From)
	if err != nil {
		return err
	}
	to, err := parseBound("to", opts.To)
	if err != nil {
		return err
	}
	return execute(cmd, open, replay.Request{
		Selector: selector,
		From:     from,
		To:       to,
		DryRun:   opts.DryRun,
	})
}

func execute(cmd *cobra.Command, open opener, req replay.Request) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engine, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	result, runErr := engine.Replay(ctx, req)
	if result != nil {
		if err := writeResult(cmd, result); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("replay: %w", runErr)
	}
	if result != nil && result.HasErrors {
		return errors.New("replay finished with handler errors")
	}
	return nil
}

func writeResult(cmd *cobra.Command, result *replay.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseBound(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected RFC3339", name, value)
	}
	return t.UTC(), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
