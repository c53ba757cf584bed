// ABOUTME: Content-addressed blob store over the fileStorage object store
// ABOUTME: Stores binary files under generated ids with a process-local URL cache
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/models"
)

// ErrNotFound is returned when a file id has no record.
var ErrNotFound = errors.New("file not found")

// Reference categories. External interfaces depend on these strings.
const (
	CategoryAvatarUser    = "avatar_user"
	CategoryAvatarContact = "avatar_contact"
	CategoryBackground    = "background"
	CategoryEmoji         = "emoji"
	CategoryMomentImage   = "moment_image"
	CategoryBanner        = "banner"
	CategoryVoice         = "voice"
)

// Store brokers binary blobs and their logical references.
type Store struct {
	db *database.Manager

	mu   sync.Mutex
	urls map[string]string // fileId → materialized data URL
}

// NewStore wraps the database manager with blob semantics.
func NewStore(db *database.Manager) *Store {
	return &Store{db: db, urls: make(map[string]string)}
}

// StoreResult is what StoreFile returns about the stored blob.
type StoreResult struct {
	FileID string `json:"fileId"`
	Type   string `json:"type"`
	Size   int    `json:"size"`
}

// NewFileID generates an opaque file identifier of the documented form
// file_<epochMillis>_<random-base36>.
func NewFileID() string {
	return fmt.Sprintf("file_%d_%s", time.Now().UnixMilli(),
		strconv.FormatUint(rand.Uint64()%(1<<47), 36))
}

// StoreFile writes a blob and returns its generated id. Input is either raw
// bytes with an explicit MIME type, or a data-URL string (DecodeDataURL).
func (s *Store) StoreFile(ctx context.Context, data []byte, mimeType string, metadata map[string]any) (*StoreResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("store file: empty payload")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	rec := models.FileRecord{
		FileID:    NewFileID(),
		Data:      data,
		Type:      mimeType,
		Size:      len(data),
		CreatedAt: models.Now(),
		Metadata:  metadata,
	}
	if _, err := s.db.PutValue(ctx, "fileStorage", rec); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	return &StoreResult{FileID: rec.FileID, Type: rec.Type, Size: rec.Size}, nil
}

// StoreDataURL decodes a data-URL string and stores its payload.
func (s *Store) StoreDataURL(ctx context.Context, dataURL string, metadata map[string]any) (*StoreResult, error) {
	mime, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	return s.StoreFile(ctx, data, mime, metadata)
}

// DecodeDataURL extracts the MIME type and decoded payload from a
// data:<mime>;base64,<payload> string.
func DecodeDataURL(dataURL string) (mime string, data []byte, err error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	comma := strings.Index(dataURL, ",")
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	header := dataURL[len("data:"):comma]
	payload := dataURL[comma+1:]
	mime = header
	if semi := strings.Index(header, ";"); semi >= 0 {
		mime = header[:semi]
		if !strings.Contains(header[semi:], "base64") {
			return "", nil, fmt.Errorf("unsupported data URL encoding")
		}
	}
	if mime == "" {
		mime = "text/plain"
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mime, data, nil
}

// EncodeDataURL renders a blob back into data-URL form.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// GetFile loads a blob record or fails with ErrNotFound.
func (s *Store) GetFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	var rec models.FileRecord
	ok, err := s.db.GetInto(ctx, "fileStorage", fileID, &rec)
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return &rec, nil
}

// CreateFileURL returns a process-local URL for the blob, memoized per file
// id. Degrades to an empty string on any failure so UI read paths never
// break on a dangling reference.
func (s *Store) CreateFileURL(ctx context.Context, fileID string) string {
	if fileID == "" {
		return ""
	}
	s.mu.Lock()
	if url, ok := s.urls[fileID]; ok {
		s.mu.Unlock()
		return url
	}
	s.mu.Unlock()

	rec, err := s.GetFile(ctx, fileID)
	if err != nil {
		log.Printf("[FileStorage] createFileURL %s: %v", fileID, err)
		return ""
	}
	url := EncodeDataURL(rec.Type, rec.Data)

	s.mu.Lock()
	s.urls[fileID] = url
	s.mu.Unlock()
	return url
}

// RevokeFileURL drops the memoized URL for a file id.
func (s *Store) RevokeFileURL(fileID string) {
	s.mu.Lock()
	delete(s.urls, fileID)
	s.mu.Unlock()
}

// RevokeAll drops every memoized URL.
func (s *Store) RevokeAll() {
	s.mu.Lock()
	s.urls = make(map[string]string)
	s.mu.Unlock()
}

// DeleteFile removes a blob unconditionally. The caller is responsible for
// also deleting any references to it.
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	s.RevokeFileURL(fileID)
	if err := s.db.Delete(ctx, "fileStorage", fileID); err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	return nil
}

// TypeStat is the per-MIME slice of Stats.
type TypeStat struct {
	Count int `json:"count"`
	Size  int `json:"size"`
}

// Stats summarizes the blob store.
type Stats struct {
	TotalFiles    int                 `json:"totalFiles"`
	TotalSize     int                 `json:"totalSize"`
	TypeBreakdown map[string]TypeStat `json:"typeBreakdown"`
}

// Stats walks fileStorage and aggregates counts and sizes per MIME type.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	docs, err := s.db.GetAll(ctx, "fileStorage")
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	out := &Stats{TypeBreakdown: make(map[string]TypeStat)}
	for _, doc := range docs {
		mime, _ := doc["type"].(string)
		if mime == "" {
			mime = "application/octet-stream"
		}
		size := 0
		if f, ok := doc["size"].(float64); ok {
			size = int(f)
		}
		out.TotalFiles++
		out.TotalSize += size
		ts := out.TypeBreakdown[mime]
		ts.Count++
		ts.Size += size
		out.TypeBreakdown[mime] = ts
	}
	return out, nil
}
