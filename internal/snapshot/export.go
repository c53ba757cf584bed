// ABOUTME: Database export into the snapshot format
// ABOUTME: Walks declared stores and prepends a _metadata record
package snapshot

import (
	"context"
	"fmt"

	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/schema"
)

// ExportOptions controls what an export includes.
type ExportOptions struct {
	// Stores restricts the export to a subset; empty means all declared
	// stores minus the bulk media stores (unless Full is set).
	Stores []string
	// Full includes the bulk media stores in the walk.
	Full bool
	// BlankAvatars clears avatar payloads to reduce size.
	BlankAvatars bool
}

// ExportDatabase collects the requested stores into a snapshot. Secrets in
// apiSettings are always redacted before emitting.
func ExportDatabase(ctx context.Context, db *database.Manager, opts ExportOptions) (*Snapshot, error) {
	info, err := db.DBInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	names := opts.Stores
	if len(names) == 0 {
		names = exportSet(opts.Full)
	}

	snap := New(info.Version)
	snap.Metadata = Metadata{
		Name:       info.Name,
		Version:    info.Version,
		Stores:     names,
		ExportTime: info.ExportTime,
	}

	for _, name := range names {
		if _, ok := schema.Lookup(name); !ok {
			return nil, fmt.Errorf("export: %w: %s", database.ErrStoreNotFound, name)
		}
		docs, err := db.GetAll(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		if docs == nil {
			docs = []map[string]any{}
		}
		snap.Stores[name] = docs
	}

	snap.RedactSecrets()
	if opts.BlankAvatars {
		snap.BlankAvatars()
	}
	return snap, nil
}

// exportSet returns the declared store names, dropping the bulk media
// stores unless a full export was requested.
func exportSet(full bool) []string {
	if full {
		return schema.Names()
	}
	bulk := make(map[string]bool, len(BulkStores))
	for _, b := range BulkStores {
		bulk[b] = true
	}
	var names []string
	for _, name := range schema.Names() {
		if !bulk[name] {
			names = append(names, name)
		}
	}
	return names
}
