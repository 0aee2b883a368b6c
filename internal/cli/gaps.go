package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tansy/internal/repositories/contact"
	"github.com/Ramsey-B/tansy/internal/repositories/detail"
	"github.com/Ramsey-B/tansy/pkg/gapaudit"
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Audit migrated contacts against their source records",
	Long: `Compare the contact store against the JSON source records it was
imported from and report fields that were lost: non-blank at the source,
blank on the matched contact.

With --previous the command prints a unified diff against an archived
report instead of the report itself, so a scheduled audit shows only
what changed since the last run.

Examples:
  tansy gaps --source legacy.json
  tansy gaps --source legacy.json --fields config/gapfields.yaml
  tansy gaps --source legacy.json --previous last-week.json
  tansy gaps --source legacy.json --out report.json`,
	RunE: runGaps,
}

var (
	gapsSource   string
	gapsFields   string
	gapsPrevious string
	gapsOut      string
)

func init() {
	rootCmd.AddCommand(gapsCmd)

	gapsCmd.Flags().StringVar(&gapsSource, "source", "", "JSON array of source records")
	gapsCmd.Flags().StringVar(&gapsFields, "fields", "", "Field table YAML (defaults to GAP_FIELDS_PATH)")
	gapsCmd.Flags().StringVar(&gapsPrevious, "previous", "", "Archived report to diff against")
	gapsCmd.Flags().StringVar(&gapsOut, "out", "", "Write the report to this file instead of stdout")
	_ = gapsCmd.MarkFlagRequired("source")
}

func runGaps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	fieldsPath := gapsFields
	if fieldsPath == "" {
		fieldsPath = app.Config.GapFieldsPath
	}

	table, err := gapaudit.LoadFieldTable(fieldsPath)
	if err != nil {
		return err
	}
	records, err := gapaudit.LoadSourceRecords(gapsSource)
	if err != nil {
		return err
	}

	contacts := contact.NewRepository(app.DB, app.Logger)
	details := detail.NewRepository(app.DB, app.Logger)
	analyzer := gapaudit.NewAnalyzer(app.Logger, contacts, details, table)

	report, err := analyzer.Run(ctx, records)
	if err != nil {
		return err
	}

	data, err := report.Serialize()
	if err != nil {
		return err
	}

	if gapsPrevious != "" {
		previous, err := os.ReadFile(gapsPrevious)
		if err != nil {
			return err
		}
		diff, err := gapaudit.Diff(previous, data)
		if err != nil {
			return err
		}
		if gapsOut != "" {
			if err := os.WriteFile(gapsOut, data, 0o644); err != nil {
				return err
			}
		}
		_, err = fmt.Fprint(os.Stdout, diff)
		return err
	}

	return writeReport(data, gapsOut)
}
