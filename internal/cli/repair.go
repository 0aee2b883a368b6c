package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tansy/internal/repositories/detail"
	"github.com/Ramsey-B/tansy/pkg/reconcile"
	"github.com/Ramsey-B/tansy/pkg/repair"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Restore structural invariants on the contact store",
	Long: `Run the integrity passes: create missing kind-specific detail
rows, assign keys to detail rows whose key column is null and report
orphaned detail rows that reference no live contact.

Orphans are only ever reported, never deleted. The passes are
idempotent; a clean store yields an empty report.

Examples:
  tansy repair --dry-run        # List what would be repaired
  tansy repair                  # Apply the repairs
  tansy repair --out report.json`,
	RunE: runRepair,
}

var (
	repairDryRun bool
	repairOut    string
)

func init() {
	rootCmd.AddCommand(repairCmd)

	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "List repairs without applying them")
	repairCmd.Flags().StringVar(&repairOut, "out", "", "Write the run report to this file instead of stdout")
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	details := detail.NewRepository(app.DB, app.Logger)
	repairer := repair.NewRepairer(app.Logger, details)

	rep, err := repairer.Run(ctx, repairDryRun)
	if err != nil {
		return err
	}

	report := reconcile.NewRunReport(reconcile.Options{DryRun: repairDryRun})
	report.AttachRepair(rep)

	if emitter := app.buildEmitter(); emitter != nil {
		emitter.RepairCompleted(ctx, report.RunID, rep)
	}

	data, err := report.Serialize()
	if err != nil {
		return err
	}
	return writeReport(data, repairOut)
}
