package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tansy/pkg/reconcile"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Merge an operator-designated duplicate group",
	Long: `Merge a reviewed duplicate group under a chosen survivor.

The member ids and the primary usually come from a review candidate
reported by "tansy dedupe". A committed merge marks the matching review
candidate resolved.

Examples:
  tansy resolve --ids 4,9,17 --primary 4
  tansy resolve --ids 4,9 --primary 4 --dry-run`,
	RunE: runResolve,
}

var (
	resolveIDs     []int64
	resolvePrimary int64
	resolveDryRun  bool
	resolveOut     string
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().Int64SliceVar(&resolveIDs, "ids", nil, "Member contact ids, including the primary")
	resolveCmd.Flags().Int64Var(&resolvePrimary, "primary", 0, "Contact id that survives the merge")
	resolveCmd.Flags().BoolVar(&resolveDryRun, "dry-run", false, "Plan only, write nothing")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "Write the run report to this file instead of stdout")
	_ = resolveCmd.MarkFlagRequired("ids")
	_ = resolveCmd.MarkFlagRequired("primary")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	observers, err := app.buildObservers(ctx)
	if err != nil {
		return err
	}

	runner, err := app.buildRunner(observers...)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, reconcile.Options{
		DryRun: resolveDryRun,
		ExplicitGroup: &reconcile.ExplicitGroup{
			MemberIDs: resolveIDs,
			PrimaryID: resolvePrimary,
		},
	})
	if err != nil {
		return err
	}

	data, err := report.Serialize()
	if err != nil {
		return err
	}
	if err := writeReport(data, resolveOut); err != nil {
		return err
	}

	// A single explicit merge should fail the command when it did not
	// apply; batch runs report per-group failures instead.
	entry := report.Groups[0]
	switch entry.Outcome {
	case reconcile.OutcomeAborted, reconcile.OutcomeFailed:
		return fmt.Errorf("merge %s: %s", entry.Outcome, entry.Error)
	}
	return nil
}
