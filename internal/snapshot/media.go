// ABOUTME: Runtime migration of legacy inline base64 media into the blob store
// ABOUTME: Runs after importing a snapshot flagged needsFileStorageMigration
package snapshot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/junelab/palmchat/internal/blob"
	"github.com/junelab/palmchat/internal/database"
)

// MediaMigrationResult reports how many inline payloads were lifted.
type MediaMigrationResult struct {
	Migrated int      `json:"migrated"`
	Errors   []string `json:"errors,omitempty"`
}

// MigrateInlineMedia walks avatar and background fields, lifts any inline
// data-URL payloads into the blob store, rewires them through the reference
// index, and blanks the inline copy. Safe to re-run: migrated fields hold
// no data URLs.
func MigrateInlineMedia(ctx context.Context, db *database.Manager, files *blob.Store) (*MediaMigrationResult, error) {
	result := &MediaMigrationResult{}

	// User avatar.
	profiles, err := db.GetAll(ctx, "userProfile")
	if err != nil {
		return nil, fmt.Errorf("media migration: %w", err)
	}
	for _, doc := range profiles {
		if migrateField(ctx, files, doc, "avatar", blob.CategoryAvatarUser, asString(doc["id"]), result) {
			if _, err := db.Put(ctx, "userProfile", doc); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	// Contact avatars.
	contacts, err := db.GetAll(ctx, "contacts")
	if err != nil {
		return nil, fmt.Errorf("media migration: %w", err)
	}
	for _, doc := range contacts {
		if migrateField(ctx, files, doc, "avatar", blob.CategoryAvatarContact, asString(doc["id"]), result) {
			if _, err := db.Put(ctx, "contacts", doc); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	// Per-contact backgrounds live in a singleton map document.
	bgs, err := db.GetAll(ctx, "backgrounds")
	if err != nil {
		return nil, fmt.Errorf("media migration: %w", err)
	}
	for _, doc := range bgs {
		changed := false
		for field, v := range doc {
			val, ok := v.(string)
			if !ok || field == "id" || !strings.HasPrefix(val, "data:") {
				continue
			}
			res, err := files.StoreDataURL(ctx, val, map[string]any{"source": "media_migration"})
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if _, err := files.CreateFileReference(ctx, res.FileID, blob.CategoryBackground, field, nil); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			doc[field] = ""
			result.Migrated++
			changed = true
		}
		if changed {
			if _, err := db.Put(ctx, "backgrounds", doc); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	if result.Migrated > 0 {
		log.Printf("[Database] media migration lifted %d inline payloads", result.Migrated)
	}
	return result, nil
}

func migrateField(ctx context.Context, files *blob.Store, doc map[string]any, field, category, key string, result *MediaMigrationResult) bool {
	val, ok := doc[field].(string)
	if !ok || key == "" || !strings.HasPrefix(val, "data:") {
		return false
	}
	res, err := files.StoreDataURL(ctx, val, map[string]any{"source": "media_migration"})
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return false
	}
	if _, err := files.CreateFileReference(ctx, res.FileID, category, key, nil); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return false
	}
	doc[field] = ""
	result.Migrated++
	return true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
