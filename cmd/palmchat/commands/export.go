// ABOUTME: Export command writing a database snapshot to disk
// ABOUTME: Manual backups omit bulk media stores unless --full is given
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/junelab/palmchat/internal/snapshot"
	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	var (
		output       string
		full         bool
		asYAML       bool
		blankAvatars bool
		stores       []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database to a snapshot file",
		Long: `Write a self-describing backup of the database. By default the bulk
media stores (emojiImages, fileStorage, fileReferences) are omitted;
use --full to include them. Secrets in apiSettings are always redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			if output == "" {
				ext := "json"
				if asYAML {
					ext = "yaml"
				}
				output = fmt.Sprintf("palmchat-backup-%s.%s", time.Now().Format("2006-01-02"), ext)
			}

			opts := snapshot.ExportOptions{
				Full:         full,
				BlankAvatars: blankAvatars,
				Stores:       stores,
			}
			if err := svc.ExportToFile(cmd.Context(), output, opts, asYAML); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&full, "full", false, "include bulk media stores")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "write YAML instead of JSON")
	cmd.Flags().BoolVar(&blankAvatars, "blank-avatars", false, "strip avatar payloads to reduce size")
	cmd.Flags().StringSliceVar(&stores, "stores", nil, "restrict export to these stores (comma-separated)")

	cmd.Example = strings.TrimSpace(`
  palmchat export
  palmchat export --full -o everything.json
  palmchat export --stores contacts,moments`)
	return cmd
}
