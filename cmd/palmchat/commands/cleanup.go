// ABOUTME: Cleanup command removing blob-store files with no live reference
// ABOUTME: Thin wrapper over the reference-index orphan sweep
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored files no reference points at",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.Files.CleanupUnusedFiles(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d unreferenced files\n", result.DeletedCount)
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", e)
			}
			return nil
		},
	}
}
