package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"credpass/internal/consensus"
	"credpass/internal/ledger/journal"
	"credpass/internal/ledger/source"
	projector "credpass/internal/projector/service"
	"credpass/internal/query/readmodels"
	query "credpass/internal/query/service"
)

type replaySummary struct {
	Stats      source.Stats                `json:"stats"`
	Projection readmodels.Projection       `json:"projection"`
	Errors     []projector.ProjectionError `json:"errors,omitempty"`
}

func newReplayCmd(opts *options) *cobra.Command {
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Project a JSON-lines event history and print the resulting snapshot summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := opts.logger(cmd)

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open events file: %w", err)
			}
			defer f.Close()

			engine := consensus.New()
			proj := projector.New(journal.NewInMemory(),
				projector.WithEngine(engine),
				projector.WithLogger(log),
			)
			stats, err := source.Replay(ctx, f, proj)
			if err != nil {
				return err
			}

			view, err := query.New(proj, query.WithEngine(engine)).At(0)
			if err != nil {
				return err
			}
			summary := replaySummary{Stats: stats, Projection: view.Summary()}
			if showErrors {
				summary.Errors = proj.Errors()
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&showErrors, "errors", false, "include skipped-event errors in the output")
	return cmd
}
