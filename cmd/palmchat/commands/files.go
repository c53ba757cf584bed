// ABOUTME: Files command group for the bulk media archive
// ABOUTME: Exports and imports the blob store as a ZIP bundle with matching
package commands

import (
	"fmt"
	"time"

	"github.com/junelab/palmchat/internal/archive"
	"github.com/spf13/cobra"
)

// NewFilesCmd creates the files command group.
func NewFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage the bulk media archive",
		Long: `Package the blob store and its reference index into a ZIP archive,
or merge such an archive back, matching files onto existing contacts,
emojis, and moments.`,
	}

	cmd.AddCommand(newFilesExportCmd())
	cmd.AddCommand(newFilesImportCmd())
	return cmd
}

func newFilesExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export referenced media into a ZIP archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			if output == "" {
				output = fmt.Sprintf("palmchat-media-%s.zip", time.Now().Format("2006-01-02"))
			}

			manifest, err := svc.ExportArchive(cmd.Context(), output)
			if err != nil {
				return err
			}
			total := 0
			for _, listing := range manifest.Categories {
				total += len(listing.Files)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d files across %d categories to %s\n",
				total, len(manifest.Categories), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output archive path")
	return cmd
}

func newFilesImportCmd() *cobra.Command {
	var (
		overwrite     bool
		createMissing bool
	)

	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Merge a media archive into the blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.ImportArchive(cmd.Context(), args[0], archive.ImportOptions{
				Overwrite:     overwrite,
				CreateMissing: createMissing,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Processed %d: matched=%d created=%d skipped=%d failed=%d\n",
				result.Processed, result.Matched, result.Created, result.Skipped, result.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing references on match")
	cmd.Flags().BoolVar(&createMissing, "create-missing", false, "import unmatched files under their original keys")
	return cmd
}
