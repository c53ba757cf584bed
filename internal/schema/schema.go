// ABOUTME: Declarative schema for the palmchat document database
// ABOUTME: Store declarations, version history, and DDL generation
package schema

import "fmt"

// DatabaseName identifies the logical database in snapshot metadata and
// readiness broadcasts.
const DatabaseName = "palmchatDB"

// CurrentVersion is the schema version the runtime opens the database at.
// Bumps occur only when the store set changes.
const CurrentVersion = 13

// StoreSpec declares a named object store.
//
// KeyPath names the document attribute holding the primary key. Stores with
// AutoIncrement set have no caller-provided key; the database assigns an
// integer key and injects it into the document under "id".
type StoreSpec struct {
	Name          string
	KeyPath       string
	AutoIncrement bool
	AddedIn       int // schema version that introduced the store
	RemovedIn     int // schema version that dropped it, 0 while live
}

// Live reports whether the store exists at the given schema version.
func (s StoreSpec) Live(version int) bool {
	if version < s.AddedIn {
		return false
	}
	return s.RemovedIn == 0 || version < s.RemovedIn
}

// All lists every store the schema has ever declared, including stores
// later dropped. Order is stable and matches export order.
var All = []StoreSpec{
	{Name: "songs", AutoIncrement: true, AddedIn: 1},
	{Name: "contacts", KeyPath: "id", AddedIn: 1},
	{Name: "apiSettings", KeyPath: "id", AddedIn: 1},
	{Name: "emojis", KeyPath: "id", AddedIn: 1},
	{Name: "backgrounds", KeyPath: "id", AddedIn: 1},
	{Name: "userProfile", KeyPath: "id", AddedIn: 1},
	{Name: "moments", KeyPath: "id", AddedIn: 1},
	{Name: "weiboPosts", AutoIncrement: true, AddedIn: 1},
	{Name: "hashtagCache", KeyPath: "id", AddedIn: 1},
	{Name: "emojiImages", KeyPath: "tag", AddedIn: 5},
	{Name: "characterMemories", KeyPath: "contactId", AddedIn: 5},
	{Name: "conversationCounters", KeyPath: "id", AddedIn: 5},
	{Name: "globalMemory", KeyPath: "id", AddedIn: 5},
	{Name: "memoryProcessedIndex", KeyPath: "contactId", AddedIn: 5},
	{Name: "fileStorage", KeyPath: "fileId", AddedIn: 8},
	{Name: "fileReferences", KeyPath: "referenceId", AddedIn: 8},
	{Name: "themeConfig", KeyPath: "type", AddedIn: 10},
	{Name: "bubbleDesignerStickers", KeyPath: "id", AddedIn: 11, RemovedIn: 12},
}

// Current lists the stores live at CurrentVersion.
func Current() []StoreSpec {
	return At(CurrentVersion)
}

// At lists the stores live at the given schema version.
func At(version int) []StoreSpec {
	var out []StoreSpec
	for _, s := range All {
		if s.Live(version) {
			out = append(out, s)
		}
	}
	return out
}

// Names returns the names of the stores live at CurrentVersion.
func Names() []string {
	stores := Current()
	names := make([]string, len(stores))
	for i, s := range stores {
		names[i] = s.Name
	}
	return names
}

// Lookup finds a live store declaration by name.
func Lookup(name string) (StoreSpec, bool) {
	for _, s := range All {
		if s.Name == name && s.Live(CurrentVersion) {
			return s, true
		}
	}
	return StoreSpec{}, false
}

// TableFor maps a store name onto its backing sqlite table.
func TableFor(name string) string {
	return "store_" + name
}

// DDL returns the CREATE TABLE statement for a store. Documents are stored
// as JSON text; the primary key is mirrored into its own column so lookups
// and range scans stay indexed.
func DDL(s StoreSpec) string {
	if s.AutoIncrement {
		return fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (k INTEGER PRIMARY KEY AUTOINCREMENT, doc TEXT NOT NULL)`,
			TableFor(s.Name))
	}
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, doc TEXT NOT NULL)`,
		TableFor(s.Name))
}

// DropDDL returns the DROP TABLE statement for a store.
func DropDDL(s StoreSpec) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s`, TableFor(s.Name))
}
