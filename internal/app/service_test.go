// ABOUTME: Tests for the application service event and backup flows
// ABOUTME: Exercises export/import to disk against an in-memory database
package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/junelab/palmchat/internal/archive"
	"github.com/junelab/palmchat/internal/blob"
	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/events"
	"github.com/junelab/palmchat/internal/snapshot"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db := database.InMemory()
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db, blob.NewStore(db), events.NewBus())
}

func TestExportToFileEmitsLifecycle(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.DB.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "Lin"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var fired []string
	for _, name := range []string{events.DBExportStart, events.DBExportSuccess, events.DBDownloadFile} {
		n := name
		svc.Bus.On(n, func(events.Payload) { fired = append(fired, n) })
	}

	path := filepath.Join(t.TempDir(), "backup.json")
	if err := svc.ExportToFile(ctx, path, snapshot.ExportOptions{}, false); err != nil {
		t.Fatalf("ExportToFile() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if len(fired) != 3 {
		t.Errorf("events fired = %v, want start, success, download", fired)
	}
}

func TestImportFromFileRoundTrip(t *testing.T) {
	src := testService(t)
	ctx := context.Background()

	if _, err := src.DB.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "Lin"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := src.ExportToFile(ctx, path, snapshot.ExportOptions{}, false); err != nil {
		t.Fatalf("ExportToFile() error = %v", err)
	}

	dst := testService(t)
	succeeded := false
	dst.Bus.On(events.DBImportSuccess, func(events.Payload) { succeeded = true })

	result, err := dst.ImportFromFile(ctx, path, snapshot.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportFromFile() error = %v", err)
	}
	if !result.Success {
		t.Errorf("import results = %v", result.Results)
	}
	if !succeeded {
		t.Error("importSuccess event not emitted")
	}

	doc, _ := dst.DB.Get(ctx, "contacts", "c1")
	if doc == nil || doc["name"] != "Lin" {
		t.Errorf("imported contact = %v", doc)
	}
}

func TestImportFromFileRespectsDenial(t *testing.T) {
	svc := testService(t)

	svc.Bus.On(events.DBImportConfirmationNeeded, func(p events.Payload) {
		if resolve, ok := p["resolve"].(func(any)); ok {
			resolve(false)
		}
	})

	_, err := svc.ImportFromFile(context.Background(), "/nonexistent.json", snapshot.ImportOptions{})
	if err == nil {
		t.Error("ImportFromFile() should fail when the confirmation is denied")
	}
}

func TestImportFromFileBadPayload(t *testing.T) {
	svc := testService(t)

	var gotError bool
	svc.Bus.On(events.DBImportError, func(events.Payload) { gotError = true })

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := svc.ImportFromFile(context.Background(), path, snapshot.ImportOptions{}); err == nil {
		t.Error("ImportFromFile() should fail on malformed payload")
	}
	if !gotError {
		t.Error("importError event not emitted")
	}
}

func TestArchiveRoundTripThroughService(t *testing.T) {
	src := testService(t)
	ctx := context.Background()

	if _, err := src.DB.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "contact c1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	stored, err := src.Files.StoreFile(ctx, []byte("avatar"), "image/png", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if _, err := src.Files.CreateFileReference(ctx, stored.FileID, blob.CategoryAvatarContact, "c1",
		map[string]any{"id": "c1", "name": "contact c1"}); err != nil {
		t.Fatalf("CreateFileReference() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "media.zip")
	manifest, err := src.ExportArchive(ctx, path)
	if err != nil {
		t.Fatalf("ExportArchive() error = %v", err)
	}
	if len(manifest.Categories) != 1 {
		t.Errorf("Categories = %v", manifest.Categories)
	}

	dst := testService(t)
	if _, err := dst.DB.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "contact c1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	result, err := dst.ImportArchive(ctx, path, archive.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportArchive() error = %v", err)
	}
	if result.Matched != 1 {
		t.Errorf("result = %+v, want one matched", result)
	}
}

func TestRefreshStats(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.Files.StoreFile(ctx, []byte("12345"), "image/png", nil); err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}

	report, err := svc.RefreshStats(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("RefreshStats() error = %v", err)
	}
	if report.Blob.TotalFiles != 1 || report.Blob.TotalSize != 5 {
		t.Errorf("blob stats = %+v", report.Blob)
	}
}
