// ABOUTME: ZIP archive packager for bulk media backup
// ABOUTME: Bundles the blob store and reference index with a metadata.json manifest
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/junelab/palmchat/internal/blob"
	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/models"
)

// Format identifies the archive manifest.
const Format = "file_storage_zip_export"

// ManifestReference mirrors the fileReferences record for one archived file.
type ManifestReference struct {
	Category     string         `json:"category"`
	ReferenceKey string         `json:"referenceKey"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ManifestFile is one entry in a category listing.
type ManifestFile struct {
	OriginalPath string            `json:"originalPath"`
	Reference    ManifestReference `json:"reference"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// CategoryListing groups the files of one category.
type CategoryListing struct {
	Files []ManifestFile `json:"files"`
}

// Manifest is the metadata.json document at the archive root.
type Manifest struct {
	Format     string                     `json:"format"`
	ExportID   string                     `json:"exportId"`
	ExportTime string                     `json:"exportTime"`
	Categories map[string]CategoryListing `json:"categories"`
}

// Export packages every referenced blob into a ZIP archive written to w.
func Export(ctx context.Context, db *database.Manager, files *blob.Store, w io.Writer) (*Manifest, error) {
	refs, err := db.GetAll(ctx, "fileReferences")
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}

	manifest := &Manifest{
		Format:     Format,
		ExportID:   uuid.NewString(),
		ExportTime: time.Now().Format(time.RFC3339),
		Categories: make(map[string]CategoryListing),
	}

	zw := zip.NewWriter(w)
	for _, doc := range refs {
		var ref models.FileReference
		raw, _ := json.Marshal(doc)
		if err := json.Unmarshal(raw, &ref); err != nil || ref.FileID == "" {
			continue
		}
		rec, err := files.GetFile(ctx, ref.FileID)
		if err != nil {
			// Dangling reference: tolerated, logged, not exported.
			log.Printf("[FileStorage] archive export skipping %s: %v", ref.ReferenceID, err)
			continue
		}

		originalPath := path.Join("files", ref.Category, rec.FileID+extensionFor(rec.Type))
		fw, err := zw.Create(originalPath)
		if err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
		if _, err := fw.Write(rec.Data); err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}

		listing := manifest.Categories[ref.Category]
		listing.Files = append(listing.Files, ManifestFile{
			OriginalPath: originalPath,
			Reference: ManifestReference{
				Category:     ref.Category,
				ReferenceKey: ref.ReferenceKey,
				Metadata:     ref.Metadata,
			},
			Metadata: map[string]any{"type": rec.Type, "size": rec.Size},
		})
		manifest.Categories[ref.Category] = listing
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	mw, err := zw.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	if _, err := mw.Write(manifestData); err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	return manifest, nil
}

func extensionFor(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}

// ImportOptions controls archive import behavior.
type ImportOptions struct {
	// Overwrite replaces an existing reference at a matched slot.
	Overwrite bool
	// CreateMissing imports unmatched files even for rules without AutoCreate.
	CreateMissing bool
}

// MatchDetail records one matching decision for the result report.
type MatchDetail struct {
	OriginalPath string  `json:"originalPath"`
	Category     string  `json:"category"`
	ReferenceKey string  `json:"referenceKey"`
	MatchedKey   string  `json:"matchedKey,omitempty"`
	Score        float64 `json:"score"`
	Action       string  `json:"action"`
}

// ImportResult aggregates archive import counts.
type ImportResult struct {
	Processed       int           `json:"processed"`
	Matched         int           `json:"matched"`
	Created         int           `json:"created"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	Errors          []string      `json:"errors,omitempty"`
	MatchingDetails []MatchDetail `json:"matchingDetails"`
}

// Actions recorded per incoming file.
const (
	ActionMatchCreate = "match_create"
	ActionReplace     = "replace"
	ActionSkip        = "skip"
	ActionCreate      = "create"
	ActionSkipNoMatch = "skip_no_match"
	ActionError       = "error"
)

// Import reads an archive and merges its files into the blob store, mapping
// each file onto an existing logical entity where the best-match engine
// finds one.
func Import(ctx context.Context, db *database.Manager, files *blob.Store, r io.ReaderAt, size int64, opts ImportOptions) (*ImportResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("archive import: %w", err)
	}

	manifest, err := readManifest(zr)
	if err != nil {
		return nil, err
	}

	contents := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		contents[f.Name] = f
	}

	candidates, err := loadCandidates(ctx, db)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for category, listing := range manifest.Categories {
		for _, entry := range listing.Files {
			result.Processed++
			detail := MatchDetail{
				OriginalPath: entry.OriginalPath,
				Category:     category,
				ReferenceKey: entry.Reference.ReferenceKey,
			}

			data, mimeType, err := readEntry(contents, entry)
			if err != nil {
				detail.Action = ActionError
				result.Failed++
				result.Errors = append(result.Errors, err.Error())
				result.MatchingDetails = append(result.MatchingDetails, detail)
				continue
			}

			targetKey, action, score := resolveTarget(ctx, files, category, entry, candidates, opts)
			detail.Action = action
			detail.Score = score
			if action == ActionMatchCreate || action == ActionReplace {
				detail.MatchedKey = targetKey
			}

			switch action {
			case ActionSkip, ActionSkipNoMatch:
				result.Skipped++
			case ActionMatchCreate, ActionReplace, ActionCreate:
				if err := importFile(ctx, files, data, mimeType, category, targetKey, entry); err != nil {
					detail.Action = ActionError
					result.Failed++
					result.Errors = append(result.Errors, err.Error())
					break
				}
				if action == ActionCreate {
					result.Created++
				} else {
					result.Matched++
				}
			}
			result.MatchingDetails = append(result.MatchingDetails, detail)
		}
	}
	return result, nil
}

func readManifest(zr *zip.Reader) (*Manifest, error) {
	for _, f := range zr.File {
		if f.Name != "metadata.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("archive import: %w", err)
		}
		defer func() { _ = rc.Close() }()
		var manifest Manifest
		if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
			return nil, fmt.Errorf("archive import: malformed metadata.json: %w", err)
		}
		if manifest.Format != Format {
			return nil, fmt.Errorf("archive import: unexpected format %q", manifest.Format)
		}
		return &manifest, nil
	}
	return nil, fmt.Errorf("archive import: metadata.json not found")
}

func readEntry(contents map[string]*zip.File, entry ManifestFile) ([]byte, string, error) {
	f, ok := contents[entry.OriginalPath]
	if !ok {
		return nil, "", fmt.Errorf("archived file missing: %s", entry.OriginalPath)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", entry.OriginalPath, err)
	}
	defer func() { _ = rc.Close() }()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", entry.OriginalPath, err)
	}
	mimeType, _ := entry.Metadata["type"].(string)
	return buf.Bytes(), mimeType, nil
}

// resolveTarget runs the best-match engine and decides the action and the
// reference key the file lands on.
func resolveTarget(ctx context.Context, files *blob.Store, category string, entry ManifestFile, candidates map[string][]Candidate, opts ImportOptions) (key, action string, score float64) {
	group := ruleGroupFor(category)
	rule, hasRule := Rules[group]
	key = entry.Reference.ReferenceKey

	if !hasRule {
		return key, ActionCreate, 0
	}

	match, score := BestMatch(rule, entry.Reference.ReferenceKey, entry.Reference.Metadata, candidates[group])
	if match == nil {
		if rule.AutoCreate || opts.CreateMissing {
			return key, ActionCreate, score
		}
		return key, ActionSkipNoMatch, score
	}

	key = match.Key
	existing, err := files.GetFileReference(ctx, category, key)
	if err == nil && existing != nil {
		if opts.Overwrite {
			return key, ActionReplace, score
		}
		return key, ActionSkip, score
	}
	return key, ActionMatchCreate, score
}

// importFile stores the blob and rewires the reference slot, dropping any
// blob the slot previously pointed at.
func importFile(ctx context.Context, files *blob.Store, data []byte, mimeType, category, key string, entry ManifestFile) error {
	prior, err := files.GetFileReference(ctx, category, key)
	if err != nil {
		return err
	}
	res, err := files.StoreFile(ctx, data, mimeType, entry.Reference.Metadata)
	if err != nil {
		return err
	}
	if _, err := files.CreateFileReference(ctx, res.FileID, category, key, entry.Reference.Metadata); err != nil {
		return err
	}
	if prior != nil && prior.FileID != res.FileID {
		if err := files.DeleteFile(ctx, prior.FileID); err != nil {
			log.Printf("[FileStorage] archive import: stale blob %s not removed: %v", prior.FileID, err)
		}
	}
	return nil
}

// loadCandidates builds the candidate sets the match rules compare against.
func loadCandidates(ctx context.Context, db *database.Manager) (map[string][]Candidate, error) {
	out := make(map[string][]Candidate)

	contacts, err := db.GetAll(ctx, "contacts")
	if err != nil {
		return nil, fmt.Errorf("archive import: %w", err)
	}
	for _, doc := range contacts {
		id := asString(doc["id"])
		if id == "" {
			continue
		}
		out["avatars"] = append(out["avatars"], Candidate{
			Key:    id,
			Fields: map[string]string{"id": id, "name": asString(doc["name"]), "contactId": id},
		})
		out["backgrounds"] = append(out["backgrounds"], Candidate{
			Key:    id,
			Fields: map[string]string{"contactId": id, "id": id},
		})
	}

	emojis, err := db.GetAll(ctx, "emojis")
	if err != nil {
		return nil, fmt.Errorf("archive import: %w", err)
	}
	for _, doc := range emojis {
		tag := asString(doc["tag"])
		if tag == "" {
			continue
		}
		out["emojis"] = append(out["emojis"], Candidate{
			Key:    tag,
			Fields: map[string]string{"tag": tag, "meaning": asString(doc["meaning"])},
		})
	}

	moments, err := db.GetAll(ctx, "moments")
	if err != nil {
		return nil, fmt.Errorf("archive import: %w", err)
	}
	for _, doc := range moments {
		id := asString(doc["id"])
		if id == "" {
			continue
		}
		out["moments"] = append(out["moments"], Candidate{
			Key: id,
			Fields: map[string]string{
				"momentId":  id,
				"id":        id,
				"timestamp": asString(doc["timestamp"]),
			},
		})
	}
	return out, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%v", s)
	default:
		return ""
	}
}
