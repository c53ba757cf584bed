// ABOUTME: Deterministic forward migration chain for exported snapshots
// ABOUTME: Each numbered step is a pure function on the in-memory snapshot
package snapshot

import (
	"fmt"
	"regexp"
	"time"

	"github.com/junelab/palmchat/internal/schema"
)

// OldestMigratable is the earliest snapshot version the chain can lift.
const OldestMigratable = 4

// steps maps a version N to the N→N+1 migration.
var steps = map[int]func(*Snapshot) error{
	4:  migrate4to5,
	5:  migrateNoop, // reserved slot, intentionally empty
	6:  migrateNoop, // reserved slot, intentionally empty
	7:  migrate7to8,
	8:  migrate8to9,
	9:  migrate9to10,
	10: migrate10to11,
	11: migrate11to12,
	12: migrate12to13,
}

// Migrate lifts a snapshot to the target version by applying each numbered
// step in sequence. The input snapshot is left untouched.
func Migrate(snap *Snapshot, target int) (*Snapshot, error) {
	from := snap.Metadata.Version
	if from > target {
		return nil, fmt.Errorf("%w: cannot migrate backwards from %d to %d", ErrMigration, from, target)
	}
	if from == target {
		return snap, nil
	}
	if from < OldestMigratable {
		return nil, fmt.Errorf("%w: no migration path from version %d", ErrMigration, from)
	}

	out, err := snap.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigration, err)
	}

	for v := from; v < target; v++ {
		step, ok := steps[v]
		if !ok {
			return nil, fmt.Errorf("%w: missing step %d→%d", ErrMigration, v, v+1)
		}
		if err := step(out); err != nil {
			return nil, fmt.Errorf("%w: step %d→%d: %v", ErrMigration, v, v+1, err)
		}
		out.Metadata.Version = v + 1
	}

	if out.Metadata.OriginalVersion == 0 {
		out.Metadata.OriginalVersion = from
	}
	out.Metadata.MigrationTime = time.Now().Format(time.RFC3339)
	out.Metadata.Stores = schema.Names()
	return out, nil
}

func migrateNoop(*Snapshot) error { return nil }

// inlineImageRe matches base64 image data URLs embedded in message content.
var inlineImageRe = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

// migrate4to5 adds the memory-era stores and lifts inline emoji image data
// out of message content into emojiImages, leaving a [emoji:<meaning>]
// token behind. Idempotent: migrated content has no data URLs left.
func migrate4to5(s *Snapshot) error {
	for _, store := range []string{"emojiImages", "characterMemories", "conversationCounters", "globalMemory", "memoryProcessedIndex"} {
		s.Ensure(store)
	}

	// Known emoji pixel data, keyed by its data URL.
	meaningByURL := make(map[string]string)
	for _, doc := range s.Stores["emojis"] {
		url, _ := doc["url"].(string)
		meaning, _ := doc["meaning"].(string)
		if url != "" && meaning != "" {
			meaningByURL[url] = meaning
		}
	}

	lifted := make(map[string]bool)
	for _, img := range s.Stores["emojiImages"] {
		if tag, ok := img["tag"].(string); ok {
			lifted[tag] = true
		}
	}

	for _, contact := range s.Stores["contacts"] {
		messages, ok := contact["messages"].([]any)
		if !ok {
			continue
		}
		for _, m := range messages {
			msg, ok := m.(map[string]any)
			if !ok {
				continue
			}
			content, ok := msg["content"].(string)
			if !ok || content == "" {
				continue
			}
			msg["content"] = inlineImageRe.ReplaceAllStringFunc(content, func(url string) string {
				meaning, known := meaningByURL[url]
				if !known {
					return url
				}
				if !lifted[meaning] {
					s.Stores["emojiImages"] = append(s.Stores["emojiImages"],
						map[string]any{"tag": meaning, "data": url})
					lifted[meaning] = true
				}
				return "[emoji:" + meaning + "]"
			})
		}
	}
	return nil
}

// migrate7to8 adds the blob store and its reference index.
func migrate7to8(s *Snapshot) error {
	s.Ensure("fileStorage")
	s.Ensure("fileReferences")
	return nil
}

// migrate8to9 only flags the snapshot: the runtime migrates legacy base64
// blobs into the blob store after import, when it can generate file ids.
func migrate8to9(s *Snapshot) error {
	s.Metadata.NeedsFileStorageMigration = true
	return nil
}

func migrate9to10(s *Snapshot) error {
	s.Ensure("themeConfig")
	return nil
}

func migrate10to11(s *Snapshot) error {
	s.Ensure("bubbleDesignerStickers")
	return nil
}

func migrate11to12(s *Snapshot) error {
	delete(s.Stores, "bubbleDesignerStickers")
	return nil
}

// migrate12to13 drops sections for stores the schema no longer declares and
// normalizes empty sections.
func migrate12to13(s *Snapshot) error {
	declared := make(map[string]bool)
	for _, name := range schema.Names() {
		declared[name] = true
	}
	for name := range s.Stores {
		if !declared[name] {
			delete(s.Stores, name)
		}
	}
	for name, docs := range s.Stores {
		if docs == nil {
			s.Stores[name] = []map[string]any{}
		}
	}
	return nil
}
