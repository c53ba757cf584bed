// ABOUTME: Tests for the file reference index and orphan collection
// ABOUTME: Verifies link/unlink semantics and that cleanup spares referenced files
package blob

import (
	"context"
	"errors"
	"testing"
)

func TestReferenceLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stored, err := s.StoreFile(ctx, []byte("avatar bytes"), "image/png", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}

	ref, err := s.CreateFileReference(ctx, stored.FileID, CategoryAvatarContact, "c1", map[string]any{"name": "Lin"})
	if err != nil {
		t.Fatalf("CreateFileReference() error = %v", err)
	}
	if ref.ReferenceID != "avatar_contact_c1" {
		t.Errorf("ReferenceID = %q, want avatar_contact_c1", ref.ReferenceID)
	}

	got, err := s.GetFileReference(ctx, CategoryAvatarContact, "c1")
	if err != nil {
		t.Fatalf("GetFileReference() error = %v", err)
	}
	if got == nil || got.FileID != stored.FileID {
		t.Fatalf("GetFileReference() = %+v, want fileID %s", got, stored.FileID)
	}

	// Re-linking the same slot replaces the target.
	second, err := s.StoreFile(ctx, []byte("new avatar"), "image/png", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if _, err := s.CreateFileReference(ctx, second.FileID, CategoryAvatarContact, "c1", nil); err != nil {
		t.Fatalf("CreateFileReference() replace error = %v", err)
	}
	got, _ = s.GetFileReference(ctx, CategoryAvatarContact, "c1")
	if got.FileID != second.FileID {
		t.Errorf("reference still points at %s after replace", got.FileID)
	}

	if err := s.DeleteFileReference(ctx, CategoryAvatarContact, "c1"); err != nil {
		t.Fatalf("DeleteFileReference() error = %v", err)
	}
	got, err = s.GetFileReference(ctx, CategoryAvatarContact, "c1")
	if err != nil {
		t.Fatalf("GetFileReference() after delete error = %v", err)
	}
	if got != nil {
		t.Errorf("GetFileReference() after delete = %+v, want nil", got)
	}
}

func TestReferencedURL(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if url := s.ReferencedURL(ctx, CategoryBackground, "c1"); url != "" {
		t.Errorf("ReferencedURL() for unset slot = %q, want empty", url)
	}

	stored, err := s.StoreFile(ctx, []byte("bg"), "image/jpeg", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if _, err := s.CreateFileReference(ctx, stored.FileID, CategoryBackground, "c1", nil); err != nil {
		t.Fatalf("CreateFileReference() error = %v", err)
	}
	if url := s.ReferencedURL(ctx, CategoryBackground, "c1"); url == "" {
		t.Error("ReferencedURL() for linked slot should not be empty")
	}
}

func TestCleanupUnusedFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	kept, err := s.StoreFile(ctx, []byte("kept"), "image/png", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	orphan, err := s.StoreFile(ctx, []byte("orphan"), "image/png", nil)
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if _, err := s.CreateFileReference(ctx, kept.FileID, CategoryEmoji, "smile", nil); err != nil {
		t.Fatalf("CreateFileReference() error = %v", err)
	}

	result, err := s.CleanupUnusedFiles(ctx)
	if err != nil {
		t.Fatalf("CleanupUnusedFiles() error = %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, want 1", result.DeletedCount)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	if _, err := s.GetFile(ctx, kept.FileID); err != nil {
		t.Errorf("referenced file was collected: %v", err)
	}
	if _, err := s.GetFile(ctx, orphan.FileID); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphan survived cleanup: %v", err)
	}

	// A second pass finds nothing to do.
	result, err = s.CleanupUnusedFiles(ctx)
	if err != nil {
		t.Fatalf("second CleanupUnusedFiles() error = %v", err)
	}
	if result.DeletedCount != 0 {
		t.Errorf("second pass DeletedCount = %d, want 0", result.DeletedCount)
	}
}

func TestMomentImageKey(t *testing.T) {
	if got := MomentImageKey("m7", 2); got != "m7_2" {
		t.Errorf("MomentImageKey() = %q, want m7_2", got)
	}
}
