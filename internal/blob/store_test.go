// ABOUTME: Tests for blob storage, data-URL handling, and URL memoization
// ABOUTME: Verifies store/get/delete round trips and stats aggregation
package blob

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/junelab/palmchat/internal/database"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := database.InMemory()
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestStoreFileRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	result, err := s.StoreFile(ctx, payload, "image/png", map[string]any{"origin": "test"})
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if !strings.HasPrefix(result.FileID, "file_") {
		t.Errorf("FileID = %q, want file_ prefix", result.FileID)
	}
	if result.Size != len(payload) {
		t.Errorf("Size = %d, want %d", result.Size, len(payload))
	}

	rec, err := s.GetFile(ctx, result.FileID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if !bytes.Equal(rec.Data, payload) {
		t.Errorf("stored payload mismatch: %v", rec.Data)
	}
	if rec.Type != "image/png" {
		t.Errorf("Type = %q, want image/png", rec.Type)
	}
}

func TestStoreFileRejectsEmpty(t *testing.T) {
	s := testStore(t)
	if _, err := s.StoreFile(context.Background(), nil, "image/png", nil); err == nil {
		t.Error("StoreFile() with empty payload should fail")
	}
}

func TestGetFileNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetFile(context.Background(), "file_0_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFile() error = %v, want ErrNotFound", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	payload := []byte("hello")
	url := EncodeDataURL("text/plain", payload)

	mime, data, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL() error = %v", err)
	}
	if mime != "text/plain" {
		t.Errorf("mime = %q, want text/plain", mime)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("payload = %v, want %v", data, payload)
	}
}

func TestDecodeDataURLRejectsMalformed(t *testing.T) {
	tests := []string{
		"http://example.com/a.png",
		"data:image/png;base64",
		"data:image/png;base64,not-!-base64",
	}
	for _, in := range tests {
		if _, _, err := DecodeDataURL(in); err == nil {
			t.Errorf("DecodeDataURL(%q) should fail", in)
		}
	}
}

func TestCreateFileURLMemoized(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result, err := s.StoreFile(ctx, []byte("abc"), "text/plain", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}

	first := s.CreateFileURL(ctx, result.FileID)
	if first == "" {
		t.Fatal("CreateFileURL() returned empty for existing file")
	}
	second := s.CreateFileURL(ctx, result.FileID)
	if first != second {
		t.Error("memoized URL changed between calls")
	}

	// Missing files degrade to an empty URL rather than an error.
	if url := s.CreateFileURL(ctx, "file_0_gone"); url != "" {
		t.Errorf("CreateFileURL() for missing file = %q, want empty", url)
	}

	s.RevokeFileURL(result.FileID)
	if url := s.CreateFileURL(ctx, result.FileID); url != first {
		t.Error("URL should be rebuildable after revoke")
	}
}

func TestDeleteFile(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result, err := s.StoreFile(ctx, []byte("abc"), "text/plain", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if err := s.DeleteFile(ctx, result.FileID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := s.GetFile(ctx, result.FileID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFile() after delete error = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.StoreFile(ctx, []byte("1234"), "image/png", nil); err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if _, err := s.StoreFile(ctx, []byte("12345678"), "image/png", nil); err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if _, err := s.StoreFile(ctx, []byte("12"), "audio/mpeg", nil); err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", stats.TotalFiles)
	}
	if stats.TotalSize != 14 {
		t.Errorf("TotalSize = %d, want 14", stats.TotalSize)
	}
	png := stats.TypeBreakdown["image/png"]
	if png.Count != 2 || png.Size != 12 {
		t.Errorf("image/png breakdown = %+v, want count 2 size 12", png)
	}
}
