// ABOUTME: Reference index mapping (category, referenceKey) pairs to file ids
// ABOUTME: Includes orphan collection over unreferenced blobs
package blob

import (
	"context"
	"fmt"
	"log"

	"github.com/junelab/palmchat/internal/models"
)

// ReferenceID joins a category and reference key into the index key. The
// join is a pure string; the pair is stored alongside it anyway.
func ReferenceID(category, referenceKey string) string {
	return category + "_" + referenceKey
}

// MomentImageKey builds the reference key for the nth image of a moment.
func MomentImageKey(momentID string, index int) string {
	return fmt.Sprintf("%s_%d", momentID, index)
}

// CreateFileReference links a file to a logical slot. Idempotent: writing
// the same (category, referenceKey) pair again replaces the link.
func (s *Store) CreateFileReference(ctx context.Context, fileID, category, referenceKey string, metadata map[string]any) (*models.FileReference, error) {
	ref := models.FileReference{
		ReferenceID:  ReferenceID(category, referenceKey),
		FileID:       fileID,
		Category:     category,
		ReferenceKey: referenceKey,
		Metadata:     metadata,
		CreatedAt:    models.Now(),
	}
	if _, err := s.db.PutValue(ctx, "fileReferences", ref); err != nil {
		return nil, fmt.Errorf("create reference %s: %w", ref.ReferenceID, err)
	}
	return &ref, nil
}

// GetFileReference returns the reference for a slot, or nil when unset.
func (s *Store) GetFileReference(ctx context.Context, category, referenceKey string) (*models.FileReference, error) {
	var ref models.FileReference
	ok, err := s.db.GetInto(ctx, "fileReferences", ReferenceID(category, referenceKey), &ref)
	if err != nil {
		return nil, fmt.Errorf("get reference %s: %w", ReferenceID(category, referenceKey), err)
	}
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

// DeleteFileReference unlinks a slot. Missing references are not an error.
func (s *Store) DeleteFileReference(ctx context.Context, category, referenceKey string) error {
	if err := s.db.Delete(ctx, "fileReferences", ReferenceID(category, referenceKey)); err != nil {
		return fmt.Errorf("delete reference %s: %w", ReferenceID(category, referenceKey), err)
	}
	return nil
}

// ReferencedURL resolves a slot straight to a URL, degrading to "" when the
// slot is unset or the file is missing.
func (s *Store) ReferencedURL(ctx context.Context, category, referenceKey string) string {
	ref, err := s.GetFileReference(ctx, category, referenceKey)
	if err != nil || ref == nil {
		return ""
	}
	return s.CreateFileURL(ctx, ref.FileID)
}

// CleanupResult reports what orphan collection did.
type CleanupResult struct {
	DeletedCount int      `json:"deletedCount"`
	Errors       []string `json:"errors,omitempty"`
}

// CleanupUnusedFiles deletes every blob no reference points at. A file is
// orphan-collectable iff no fileReferences entry carries its id.
func (s *Store) CleanupUnusedFiles(ctx context.Context) (*CleanupResult, error) {
	refs, err := s.db.GetAll(ctx, "fileReferences")
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	referenced := make(map[string]bool, len(refs))
	for _, doc := range refs {
		if id, ok := doc["fileId"].(string); ok {
			referenced[id] = true
		}
	}

	fileIDs, err := s.db.Keys(ctx, "fileStorage")
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}

	result := &CleanupResult{}
	for _, id := range fileIDs {
		if referenced[id] {
			continue
		}
		if err := s.DeleteFile(ctx, id); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.DeletedCount++
	}
	if result.DeletedCount > 0 {
		log.Printf("[FileStorage] cleanup removed %d unused files", result.DeletedCount)
	}
	return result, nil
}
