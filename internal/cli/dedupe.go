package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/reconcile"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Scan for duplicate contacts and merge the obvious groups",
	Long: `Scan the contact store for duplicate candidates, classify each
group and merge the obvious ones under a surviving contact.

Ambiguous groups are never merged: they are recorded as review
candidates for an operator to rule on with "tansy resolve". Without
--auto-merge (or AUTO_MERGE_ENABLED) obvious groups are planned, not
executed.

Examples:
  tansy dedupe --dry-run                 # Report what would happen, write nothing
  tansy dedupe --auto-merge              # Merge obvious groups
  tansy dedupe --strategy email_exact    # Restrict to one match strategy
  tansy dedupe --out report.json         # Write the run report to a file`,
	RunE: runDedupe,
}

var (
	dedupeDryRun     bool
	dedupeAutoMerge  bool
	dedupeStrategies []string
	dedupeOut        string
)

func init() {
	rootCmd.AddCommand(dedupeCmd)

	dedupeCmd.Flags().BoolVar(&dedupeDryRun, "dry-run", false, "Plan only, write nothing")
	dedupeCmd.Flags().BoolVar(&dedupeAutoMerge, "auto-merge", false, "Merge obvious groups (defaults to AUTO_MERGE_ENABLED)")
	dedupeCmd.Flags().StringSliceVar(&dedupeStrategies, "strategy", nil, "Restrict match strategies (email_exact, person_name_exact, org_name_exact)")
	dedupeCmd.Flags().StringVar(&dedupeOut, "out", "", "Write the run report to this file instead of stdout")
}

func runDedupe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	autoMerge := dedupeAutoMerge
	if !cmd.Flags().Changed("auto-merge") {
		autoMerge = app.Config.AutoMergeEnabled
	}

	observers, err := app.buildObservers(ctx)
	if err != nil {
		return err
	}

	runner, err := app.buildRunner(observers...)
	if err != nil {
		return err
	}

	strategies := make([]models.Strategy, 0, len(dedupeStrategies))
	for _, s := range dedupeStrategies {
		strategies = append(strategies, models.Strategy(s))
	}

	report, err := runner.Run(ctx, reconcile.Options{
		DryRun:     dedupeDryRun,
		AutoMerge:  autoMerge,
		Strategies: strategies,
	})
	if report == nil {
		return err
	}

	data, serr := report.Serialize()
	if serr != nil {
		return serr
	}
	if werr := writeReport(data, dedupeOut); werr != nil {
		return werr
	}

	// A cancelled run still printed its partial report.
	return err
}
