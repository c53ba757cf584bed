// ABOUTME: Stats command reporting database, blob-store, and disk usage
// ABOUTME: Mirrors the in-app storage panel for headless inspection
package commands

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	var persist bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database and blob-store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, cleanup, err := openService()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			info, err := svc.DB.DBInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Database: %s (schema v%d)\n", info.Name, info.Version)

			names := append([]string(nil), info.Stores...)
			sort.Strings(names)
			for _, name := range names {
				n, err := svc.DB.Count(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-24s %d\n", name, n)
			}

			dataDir := filepath.Dir(cfg.DBPath)
			report, err := svc.RefreshStats(ctx, dataDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nFiles: %d (%d bytes)\n", report.Blob.TotalFiles, report.Blob.TotalSize)
			types := make([]string, 0, len(report.Blob.TypeBreakdown))
			for mime := range report.Blob.TypeBreakdown {
				types = append(types, mime)
			}
			sort.Strings(types)
			for _, mime := range types {
				st := report.Blob.TypeBreakdown[mime]
				fmt.Fprintf(out, "  %-24s %d (%d bytes)\n", mime, st.Count, st.Size)
			}
			if report.Persistent != nil {
				fmt.Fprintf(out, "\nDisk: %v used of %v\n", report.Persistent["usage"], report.Persistent["quota"])
			}

			if persist {
				svc.RequestPersistentStorage(dataDir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "also request persistent storage for the data directory")
	return cmd
}
