// ABOUTME: Snapshot import with upsert semantics and forward migration
// ABOUTME: Collects per-store results and never fails the whole run on one record
package snapshot

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/schema"
)

// ImportOptions controls import behavior.
type ImportOptions struct {
	// Overwrite clears each target store before inserting.
	Overwrite bool
	// ValidateVersion rejects snapshots whose version differs from the
	// runtime schema version (after migration, if enabled).
	ValidateVersion bool
	// EnableMigration runs the forward migration chain on older snapshots.
	EnableMigration bool
	// Stores restricts the import to a subset of the snapshot's sections.
	Stores []string
}

// StoreResult is the per-store import outcome. Inserts use put (upsert), so
// an existing key is replaced rather than counted as a constraint skip;
// Skipped counts records whose primary key could not be derived.
type StoreResult struct {
	Total   int      `json:"total"`
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportResult is the aggregate outcome.
type ImportResult struct {
	Success         bool                   `json:"success"`
	SessionID       string                 `json:"sessionId"`
	ImportedStores  []string               `json:"importedStores"`
	Results         map[string]StoreResult `json:"results"`
	Migrated        bool                   `json:"migrated"`
	OriginalVersion int                    `json:"originalVersion,omitempty"`
}

// ImportDatabase loads a snapshot into the database. Older snapshots are
// migrated forward when EnableMigration is set; the input snapshot is not
// mutated.
func ImportDatabase(ctx context.Context, db *database.Manager, snap *Snapshot, opts ImportOptions) (*ImportResult, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	migrated := false
	originalVersion := snap.Metadata.Version

	if snap.Metadata.Version > schema.CurrentVersion {
		return nil, fmt.Errorf("%w: snapshot version %d is newer than schema version %d",
			ErrMigration, snap.Metadata.Version, schema.CurrentVersion)
	}
	if snap.Metadata.Version < schema.CurrentVersion {
		if !opts.EnableMigration {
			if opts.ValidateVersion {
				return nil, fmt.Errorf("%w: snapshot version %d does not match schema version %d",
					ErrValidation, snap.Metadata.Version, schema.CurrentVersion)
			}
		} else {
			var err error
			snap, err = Migrate(snap, schema.CurrentVersion)
			if err != nil {
				return nil, err
			}
			migrated = true
		}
	}

	result := &ImportResult{
		Success:         true,
		SessionID:       uuid.NewString(),
		Results:         make(map[string]StoreResult),
		Migrated:        migrated,
		OriginalVersion: originalVersion,
	}

	targets := importTargets(snap, opts.Stores)
	for _, name := range targets {
		docs := snap.Stores[name]
		res := StoreResult{Total: len(docs)}

		if opts.Overwrite {
			if err := db.Clear(ctx, name); err != nil {
				return nil, fmt.Errorf("import: failed to clear %s: %w", name, err)
			}
		}

		added, skipped, err := db.BulkPut(ctx, name, docs)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			result.Success = false
		}
		res.Added = added
		res.Skipped = skipped
		result.Results[name] = res
		result.ImportedStores = append(result.ImportedStores, name)
	}

	log.Printf("[Database] import session %s: %d stores, migrated=%v",
		result.SessionID, len(result.ImportedStores), migrated)
	return result, nil
}

// importTargets intersects the snapshot's sections with the declared schema
// and the caller's requested subset. Unknown sections are silently dropped;
// the migration chain already removed stores dead at the current version.
func importTargets(snap *Snapshot, requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}
	var targets []string
	for _, name := range schema.Names() {
		if !snap.Has(name) {
			continue
		}
		if len(requested) > 0 && !want[name] {
			continue
		}
		targets = append(targets, name)
	}
	return targets
}
