// Package cli wires the operator-facing verbs over the engine packages.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tansy",
	Short: "Contact deduplication and integrity engine",
	Long: `tansy deduplicates a contact store: it extracts match keys, groups
duplicate candidates, classifies each group as obvious or ambiguous and
merges the obvious ones under a surviving contact. Standalone verbs
repair structural defects, audit migration gaps against the original
source records and apply schema migrations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
