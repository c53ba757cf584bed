// ABOUTME: Import command loading a snapshot file into the database
// ABOUTME: Runs the forward migration chain on older backups by default
package commands

import (
	"fmt"

	"github.com/junelab/palmchat/internal/snapshot"
	"github.com/spf13/cobra"
)

// NewImportCmd creates the import command.
func NewImportCmd() *cobra.Command {
	var (
		overwrite bool
		noMigrate bool
		strict    bool
		stores    []string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a snapshot file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.ImportFromFile(cmd.Context(), args[0], snapshot.ImportOptions{
				Overwrite:       overwrite,
				ValidateVersion: strict,
				EnableMigration: !noMigrate,
				Stores:          stores,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d stores (migrated: %v)\n",
				len(result.ImportedStores), result.Migrated)
			for _, name := range result.ImportedStores {
				r := result.Results[name]
				fmt.Fprintf(cmd.OutOrStdout(), "  %-22s total=%d added=%d skipped=%d\n",
					name, r.Total, r.Added, r.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "clear each target store before inserting")
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "reject snapshots from older schema versions")
	cmd.Flags().BoolVar(&strict, "strict", false, "require an exact schema version match")
	cmd.Flags().StringSliceVar(&stores, "stores", nil, "restrict import to these stores")
	return cmd
}
