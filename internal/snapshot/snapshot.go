// ABOUTME: Self-describing snapshot format for database export/import
// ABOUTME: Root object keys are store names plus a _metadata record
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/junelab/palmchat/internal/schema"
	"gopkg.in/yaml.v3"
)

// Error kinds for the import path.
var (
	ErrValidation = errors.New("invalid snapshot")
	ErrMigration  = errors.New("snapshot migration failed")
)

// MetadataKey is the reserved root key carrying snapshot metadata.
const MetadataKey = "_metadata"

// BulkStores are omitted from manual backups by default; a full export
// includes them.
var BulkStores = []string{"emojiImages", "fileStorage", "fileReferences"}

// SecretFields are stripped from apiSettings documents on export.
var SecretFields = []string{"key", "apiKey", "elevenLabsApiKey", "geminiKey", "password"}

// Metadata is the self-describing header of a snapshot.
type Metadata struct {
	Name                      string   `json:"name"`
	Version                   int      `json:"version"`
	Stores                    []string `json:"stores"`
	ExportTime                string   `json:"exportTime"`
	MigrationTime             string   `json:"migrationTime,omitempty"`
	OriginalVersion           int      `json:"originalVersion,omitempty"`
	NeedsFileStorageMigration bool     `json:"needsFileStorageMigration,omitempty"`
}

// Snapshot is the in-memory form of an exported database.
type Snapshot struct {
	Metadata Metadata
	Stores   map[string][]map[string]any
}

// New returns an empty snapshot at the given version.
func New(version int) *Snapshot {
	return &Snapshot{
		Metadata: Metadata{Name: schema.DatabaseName, Version: version},
		Stores:   make(map[string][]map[string]any),
	}
}

// Has reports whether the snapshot carries a section for the store, even an
// empty one.
func (s *Snapshot) Has(store string) bool {
	_, ok := s.Stores[store]
	return ok
}

// Ensure adds an empty section for the store if none exists.
func (s *Snapshot) Ensure(store string) {
	if !s.Has(store) {
		s.Stores[store] = []map[string]any{}
	}
}

// StoreNames lists the snapshot's store sections in stable order.
func (s *Snapshot) StoreNames() []string {
	names := make([]string, 0, len(s.Stores))
	for name := range s.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON renders the documented file format: one root object whose
// keys are store names plus _metadata.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	root := make(map[string]any, len(s.Stores)+1)
	root[MetadataKey] = s.Metadata
	for name, docs := range s.Stores {
		if docs == nil {
			docs = []map[string]any{}
		}
		root[name] = docs
	}
	return json.Marshal(root)
}

// UnmarshalJSON parses the file format back into a Snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	s.Stores = make(map[string][]map[string]any)
	for name, raw := range root {
		if name == MetadataKey {
			if err := json.Unmarshal(raw, &s.Metadata); err != nil {
				return fmt.Errorf("%w: malformed metadata: %v", ErrValidation, err)
			}
			continue
		}
		var docs []map[string]any
		if err := json.Unmarshal(raw, &docs); err != nil {
			return fmt.Errorf("%w: store %s is not a record list: %v", ErrValidation, name, err)
		}
		if docs == nil {
			docs = []map[string]any{}
		}
		s.Stores[name] = docs
	}
	return nil
}

// Parse decodes snapshot JSON.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeJSON renders the snapshot as indented JSON.
func (s *Snapshot) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// EncodeYAML renders the snapshot as YAML for human inspection.
func (s *Snapshot) EncodeYAML() ([]byte, error) {
	root := make(map[string]any, len(s.Stores)+1)
	root[MetadataKey] = s.Metadata
	for name, docs := range s.Stores {
		root[name] = docs
	}
	return yaml.Marshal(root)
}

// Clone deep-copies the snapshot through JSON, for migrations that must not
// mutate their input.
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate applies the file validity gate: a snapshot that has neither
// contacts nor userProfile is not a backup of this application.
func (s *Snapshot) Validate() error {
	if !s.Has("contacts") && !s.Has("userProfile") {
		return fmt.Errorf("%w: snapshot has neither contacts nor userProfile", ErrValidation)
	}
	if s.Metadata.Version <= 0 {
		return fmt.Errorf("%w: missing schema version", ErrValidation)
	}
	return nil
}

// RedactSecrets strips secret attributes from apiSettings records in place.
func (s *Snapshot) RedactSecrets() {
	docs, ok := s.Stores["apiSettings"]
	if !ok {
		return
	}
	for _, doc := range docs {
		for _, field := range SecretFields {
			delete(doc, field)
		}
	}
}

// BlankAvatars clears avatar payloads in userProfile and contacts to shrink
// manual backups.
func (s *Snapshot) BlankAvatars() {
	for _, store := range []string{"userProfile", "contacts"} {
		for _, doc := range s.Stores[store] {
			if _, ok := doc["avatar"]; ok {
				doc["avatar"] = ""
			}
		}
	}
}
