// ABOUTME: Root command and shared service bootstrap for the palmchat CLI
// ABOUTME: Builds the database manager, blob store, and event bus per run
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/junelab/palmchat/internal/app"
	"github.com/junelab/palmchat/internal/blob"
	"github.com/junelab/palmchat/internal/config"
	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/events"
	"github.com/junelab/palmchat/internal/mailbox"
	"github.com/spf13/cobra"
)

var dbPathFlag string

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "palmchat",
		Short: "palmchat storage core",
		Long: `Manage the palmchat document database: backups, media archives,
blob-store maintenance, and the memory pipeline.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database file path (default from PALMCHAT_DB)")

	root.AddCommand(NewExportCmd())
	root.AddCommand(NewImportCmd())
	root.AddCommand(NewFilesCmd())
	root.AddCommand(NewStatsCmd())
	root.AddCommand(NewCleanupCmd())
	root.AddCommand(NewMemoryCmd())
	root.AddCommand(NewVersionCmd())

	return root.Execute()
}

// openService builds the application service for one command run. The
// returned cleanup closes the database.
func openService() (*app.Service, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}

	var box mailbox.Mailbox
	if cfg.DBPath != ":memory:" {
		fb, err := mailbox.NewFileMailbox(filepath.Join(filepath.Dir(cfg.DBPath), "mailbox"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open mailbox: %w", err)
		}
		box = fb
	}

	db := database.NewManager(cfg.DBPath, cfg.Page, box)
	files := blob.NewStore(db)
	bus := events.NewBus()
	wireProgressPrinter(bus)

	svc := app.NewService(db, files, bus)
	cleanup := func() { _ = db.Close() }
	return svc, cfg, cleanup, nil
}

// wireProgressPrinter mirrors progress events onto stdout for headless use.
func wireProgressPrinter(bus *events.Bus) {
	bus.On(events.DBImportProgress, func(p events.Payload) {
		if msg, ok := p["message"].(string); ok {
			fmt.Println(msg)
		}
	})
	bus.On(events.DBImportError, func(p events.Payload) {
		if msg, ok := p["error"].(string); ok {
			fmt.Println("import error:", msg)
		}
	})
	bus.On(events.DBExportError, func(p events.Payload) {
		if msg, ok := p["error"].(string); ok {
			fmt.Println("export error:", msg)
		}
	})
}
