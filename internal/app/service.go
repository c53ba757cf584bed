// ABOUTME: Application service tying the storage core to the event bus
// ABOUTME: Backup/export flows, stats refresh, and persistence requests
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/junelab/palmchat/internal/archive"
	"github.com/junelab/palmchat/internal/blob"
	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/events"
	"github.com/junelab/palmchat/internal/snapshot"
	"github.com/junelab/palmchat/internal/util"
	"github.com/shirou/gopsutil/v3/disk"
)

// Retry policy for whole app-level operations (never inside transactions).
const (
	retryAttempts = 3
	retryBase     = time.Second
	retryCap      = 5 * time.Second
)

// Service wires the database, blob store, and event bus. The UI layer
// subscribes to the bus; headless callers read the returned values.
type Service struct {
	DB    *database.Manager
	Files *blob.Store
	Bus   *events.Bus
}

// NewService builds the application service.
func NewService(db *database.Manager, files *blob.Store, bus *events.Bus) *Service {
	return &Service{DB: db, Files: files, Bus: bus}
}

// ExportToFile writes a snapshot to path, emitting export lifecycle events.
func (s *Service) ExportToFile(ctx context.Context, path string, opts snapshot.ExportOptions, asYAML bool) error {
	s.Bus.Emit(events.DBExportStart, events.Payload{})

	var data []byte
	err := util.Retry(ctx, retryAttempts, retryBase, retryCap, func() error {
		snap, err := snapshot.ExportDatabase(ctx, s.DB, opts)
		if err != nil {
			return err
		}
		if asYAML {
			data, err = snap.EncodeYAML()
		} else {
			data, err = snap.EncodeJSON()
		}
		return err
	})
	if err != nil {
		s.Bus.Emit(events.DBExportError, events.Payload{"error": err.Error()})
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.Bus.Emit(events.DBExportError, events.Payload{"error": err.Error()})
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.Bus.Emit(events.DBExportError, events.Payload{"error": err.Error()})
		return fmt.Errorf("export: %w", err)
	}

	s.Bus.Emit(events.DBExportSuccess, events.Payload{"path": path, "size": len(data)})
	s.Bus.Emit(events.DBDownloadFile, events.Payload{
		"url":      path,
		"filename": filepath.Base(path),
		"mimeType": "application/json",
	})
	return nil
}

// ImportFromFile reads a snapshot file and imports it. The UI layer is
// asked to confirm through the event bus; headless callers see the import
// proceed (no subscriber means confirmed).
func (s *Service) ImportFromFile(ctx context.Context, path string, opts snapshot.ImportOptions) (*snapshot.ImportResult, error) {
	confirmed, _ := s.Bus.Ask(events.DBImportConfirmationNeeded,
		events.Payload{"file": path}, true).(bool)
	if !confirmed {
		return nil, fmt.Errorf("import cancelled")
	}

	s.Bus.Emit(events.DBImportStart, events.Payload{"fileName": filepath.Base(path)})
	s.Bus.Emit(events.DBImportProgress, events.Payload{"message": "reading backup file", "stage": "read"})

	data, err := os.ReadFile(path)
	if err != nil {
		s.Bus.Emit(events.DBImportError, events.Payload{"error": err.Error()})
		return nil, fmt.Errorf("import: %w", err)
	}
	snap, err := snapshot.Parse(data)
	if err != nil {
		s.Bus.Emit(events.DBImportError, events.Payload{"error": err.Error()})
		return nil, err
	}

	s.Bus.Emit(events.DBImportProgress, events.Payload{"message": "importing stores", "stage": "write"})

	var result *snapshot.ImportResult
	err = util.Retry(ctx, retryAttempts, retryBase, retryCap, func() error {
		var ierr error
		result, ierr = snapshot.ImportDatabase(ctx, s.DB, snap, opts)
		return ierr
	})
	if err != nil {
		s.Bus.Emit(events.DBImportError, events.Payload{"error": err.Error()})
		return nil, err
	}

	if result.Migrated && snap.Metadata.Version < 9 {
		s.Bus.Emit(events.DBImportProgress, events.Payload{"message": "migrating inline media", "stage": "media"})
		if _, err := snapshot.MigrateInlineMedia(ctx, s.DB, s.Files); err != nil {
			s.Bus.Emit(events.DBImportError, events.Payload{"error": err.Error()})
			return result, err
		}
	}

	s.Bus.Emit(events.DBImportSuccess, events.Payload{
		"result":      result,
		"autoReload":  true,
		"reloadDelay": 1500,
	})
	return result, nil
}

// ExportArchive writes the bulk media archive, asking the UI layer for its
// export configuration first.
func (s *Service) ExportArchive(ctx context.Context, path string) (*archive.Manifest, error) {
	cfg := s.Bus.Ask(events.FSExportConfigNeeded, events.Payload{}, map[string]any{})
	if cfg == nil {
		s.Bus.Emit(events.FSExportCancelled, events.Payload{})
		return nil, fmt.Errorf("archive export cancelled")
	}
	s.Bus.Emit(events.FSExportStart, events.Payload{})
	s.Bus.Emit(events.FSHideExportOptions, events.Payload{})

	f, err := os.Create(path) // #nosec G304
	if err != nil {
		s.Bus.Emit(events.FSExportError, events.Payload{"error": err.Error()})
		return nil, fmt.Errorf("archive export: %w", err)
	}
	defer func() { _ = f.Close() }()

	manifest, err := archive.Export(ctx, s.DB, s.Files, f)
	if err != nil {
		s.Bus.Emit(events.FSExportError, events.Payload{"error": err.Error()})
		return nil, err
	}
	s.Bus.Emit(events.FSExportSuccess, events.Payload{"path": path})
	return manifest, nil
}

// ImportArchive merges a media archive, letting the UI layer pick the
// overwrite behavior when subscribed.
func (s *Service) ImportArchive(ctx context.Context, path string, opts archive.ImportOptions) (*archive.ImportResult, error) {
	answer := s.Bus.Ask(events.FSImportOptionsNeeded, events.Payload{
		"messages": []string{"how should matched files be handled?"},
	}, nil)
	if chosen, ok := answer.(archive.ImportOptions); ok {
		opts = chosen
	}

	s.Bus.Emit(events.FSImportStart, events.Payload{"fileName": filepath.Base(path)})

	f, err := os.Open(path) // #nosec G304
	if err != nil {
		s.Bus.Emit(events.FSImportError, events.Payload{"error": err.Error()})
		return nil, fmt.Errorf("archive import: %w", err)
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		s.Bus.Emit(events.FSImportError, events.Payload{"error": err.Error()})
		return nil, fmt.Errorf("archive import: %w", err)
	}

	result, err := archive.Import(ctx, s.DB, s.Files, f, st.Size(), opts)
	if err != nil {
		s.Bus.Emit(events.FSImportError, events.Payload{"error": err.Error()})
		return nil, err
	}
	s.Bus.Emit(events.FSImportSuccess, events.Payload{"result": result})
	s.Bus.Emit(events.StorageStatsRefreshNeeded, events.Payload{})
	return result, nil
}

// StatsReport couples blob-store stats with a persistent storage estimate.
type StatsReport struct {
	Blob       *blob.Stats    `json:"blob"`
	Persistent map[string]any `json:"persistent,omitempty"`
}

// RefreshStats recomputes blob-store stats and the disk estimate.
func (s *Service) RefreshStats(ctx context.Context, dataDir string) (*StatsReport, error) {
	s.Bus.Emit(events.DBStatsRefreshStart, events.Payload{})

	stats, err := s.Files.Stats(ctx)
	if err != nil {
		s.Bus.Emit(events.DBStatsRefreshError, events.Payload{"error": err.Error()})
		return nil, err
	}

	report := &StatsReport{Blob: stats}
	if usage, err := disk.Usage(dataDir); err == nil {
		report.Persistent = map[string]any{
			"quota": usage.Total,
			"usage": usage.Used,
			"free":  usage.Free,
		}
	}

	s.Bus.Emit(events.DBStatsRefreshSuccess, events.Payload{
		"result":           stats,
		"persistentResult": report.Persistent,
	})
	return report, nil
}

// RequestPersistentStorage probes the storage backing the data directory
// and reports the outcome as storage:* events. On a desktop filesystem the
// grant is a disk-capacity check rather than a browser permission.
func (s *Service) RequestPersistentStorage(dataDir string) {
	usage, err := disk.Usage(dataDir)
	if err != nil {
		s.Bus.Emit(events.StoragePersistentUnsupported, events.Payload{
			"message": fmt.Sprintf("storage estimate unavailable: %v", err),
		})
		return
	}
	estimate := map[string]any{"quota": usage.Total, "usage": usage.Used}
	if usage.Free == 0 {
		s.Bus.Emit(events.StoragePersistentDenied, events.Payload{
			"granted":  false,
			"estimate": estimate,
		})
		return
	}
	s.Bus.Emit(events.StoragePersistentGranted, events.Payload{
		"granted":  true,
		"estimate": estimate,
	})
}
