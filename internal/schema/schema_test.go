// ABOUTME: Tests for the declarative store schema and version history
// ABOUTME: Verifies store liveness across versions and DDL generation
package schema

import (
	"strings"
	"testing"
)

func TestCurrentStoreSet(t *testing.T) {
	names := Names()
	if len(names) != 17 {
		t.Fatalf("Names() returned %d stores, want 17", len(names))
	}

	want := []string{
		"songs", "contacts", "apiSettings", "emojis", "backgrounds",
		"userProfile", "moments", "weiboPosts", "hashtagCache",
		"emojiImages", "characterMemories", "conversationCounters",
		"globalMemory", "memoryProcessedIndex", "fileStorage",
		"fileReferences", "themeConfig",
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, n := range want {
		if !have[n] {
			t.Errorf("store %s missing from current schema", n)
		}
	}
	if have["bubbleDesignerStickers"] {
		t.Error("bubbleDesignerStickers should not be live at the current version")
	}
}

func TestStoreLiveness(t *testing.T) {
	tests := []struct {
		store   string
		version int
		want    bool
	}{
		{"contacts", 1, true},
		{"emojiImages", 4, false},
		{"emojiImages", 5, true},
		{"fileStorage", 7, false},
		{"fileStorage", 8, true},
		{"themeConfig", 9, false},
		{"themeConfig", 10, true},
		{"bubbleDesignerStickers", 10, false},
		{"bubbleDesignerStickers", 11, true},
		{"bubbleDesignerStickers", 12, false},
		{"bubbleDesignerStickers", 13, false},
	}

	for _, tt := range tests {
		var spec StoreSpec
		found := false
		for _, s := range All {
			if s.Name == tt.store {
				spec = s
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("store %s not declared", tt.store)
		}
		if got := spec.Live(tt.version); got != tt.want {
			t.Errorf("%s.Live(%d) = %v, want %v", tt.store, tt.version, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	spec, ok := Lookup("fileStorage")
	if !ok {
		t.Fatal("Lookup(fileStorage) not found")
	}
	if spec.KeyPath != "fileId" {
		t.Errorf("fileStorage KeyPath = %q, want fileId", spec.KeyPath)
	}

	if _, ok := Lookup("bubbleDesignerStickers"); ok {
		t.Error("Lookup should not return dropped stores")
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(nope) should not be found")
	}
}

func TestAutoIncrementStores(t *testing.T) {
	for _, name := range []string{"songs", "weiboPosts"} {
		spec, ok := Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%s) not found", name)
		}
		if !spec.AutoIncrement {
			t.Errorf("%s should be auto-increment", name)
		}
		if !strings.Contains(DDL(spec), "AUTOINCREMENT") {
			t.Errorf("DDL(%s) should declare AUTOINCREMENT", name)
		}
	}

	contacts, _ := Lookup("contacts")
	if strings.Contains(DDL(contacts), "AUTOINCREMENT") {
		t.Error("DDL(contacts) should use a text primary key")
	}
}

func TestTableFor(t *testing.T) {
	if got := TableFor("contacts"); got != "store_contacts" {
		t.Errorf("TableFor(contacts) = %q, want store_contacts", got)
	}
}
