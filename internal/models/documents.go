// ABOUTME: Document types for the palmchat object stores
// ABOUTME: Typed views over the JSON documents held by the database layer
package models

import "time"

// Message roles and types as they appear in a contact's message log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	TypeText      = "text"
	TypeEmoji     = "emoji"
	TypeRedPacket = "red_packet"
	TypeVoice     = "voice"
)

// Message is one entry in a contact's append-only message log.
type Message struct {
	Role     string `json:"role"`
	Type     string `json:"type,omitempty"`
	Content  string `json:"content"`
	SenderID string `json:"senderId,omitempty"`
	Time     int64  `json:"time,omitempty"`
}

// IsUserText reports whether the message counts toward the memory trigger:
// a user-authored message that is not an emoji or red-packet.
func (m Message) IsUserText() bool {
	if m.Role != RoleUser {
		return false
	}
	return m.Type != TypeEmoji && m.Type != TypeRedPacket
}

// Contact is a private contact or a group chat, message log inline.
type Contact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Persona     string    `json:"persona,omitempty"`
	UserPersona string    `json:"userPersona,omitempty"`
	IsGroup     bool      `json:"isGroup,omitempty"`
	Members     []string  `json:"members,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Messages    []Message `json:"messages"`
}

// APISettings is the singleton model-endpoint record (id = "settings").
type APISettings struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	Key              string `json:"key,omitempty"`
	Model            string `json:"model"`
	SecondaryModel   string `json:"secondaryModel,omitempty"`
	SecondarySynced  bool   `json:"secondarySynced,omitempty"`
	TimeoutSeconds   int    `json:"timeoutSeconds,omitempty"`
	ElevenLabsAPIKey string `json:"elevenLabsApiKey,omitempty"`
	GeminiKey        string `json:"geminiKey,omitempty"`
	Password         string `json:"password,omitempty"`
}

// GateModel returns the model used for the gate call, falling back to the
// primary model when the secondary is synced with it or unset.
func (s APISettings) GateModel() string {
	if s.SecondarySynced || s.SecondaryModel == "" {
		return s.Model
	}
	return s.SecondaryModel
}

// Emoji is emoji metadata; pixel data lives in emojiImages or the blob store.
type Emoji struct {
	ID      string `json:"id"`
	Tag     string `json:"tag"`
	Meaning string `json:"meaning"`
	URL     string `json:"url,omitempty"`
}

// EmojiImage is a legacy emoji pixel-data record keyed by tag.
type EmojiImage struct {
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// UserProfile is the singleton profile record (id = "profile").
type UserProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	Personality string `json:"personality,omitempty"`
}

// CharacterMemory is the per-contact memory document.
type CharacterMemory struct {
	ContactID   string `json:"contactId"`
	Memory      string `json:"memory"`
	UpdateCount int    `json:"updateCount"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// GlobalMemory is the singleton global memory document (id = "memory").
type GlobalMemory struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ProcessedIndex is the per-contact memory pipeline checkpoint.
type ProcessedIndex struct {
	ContactID string `json:"contactId"`
	LastIndex int    `json:"lastIndex"`
}

// FileRecord is an opaque binary blob in fileStorage.
type FileRecord struct {
	FileID    string         `json:"fileId"`
	Data      []byte         `json:"data"`
	Type      string         `json:"type"`
	Size      int            `json:"size"`
	CreatedAt string         `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FileReference links a file to a logical slot. ReferenceID is always
// Category + "_" + ReferenceKey.
type FileReference struct {
	ReferenceID  string         `json:"referenceId"`
	FileID       string         `json:"fileId"`
	Category     string         `json:"category"`
	ReferenceKey string         `json:"referenceKey"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"createdAt,omitempty"`
}

// Moment is a social post; images are referenced through the blob store.
type Moment struct {
	ID        string   `json:"id"`
	AuthorID  string   `json:"authorId,omitempty"`
	Content   string   `json:"content"`
	Images    []string `json:"images,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// ThemeConfig is a UI theme record keyed by type.
type ThemeConfig struct {
	Type    string         `json:"type"`
	Palette map[string]any `json:"palette,omitempty"`
}

// Now returns the canonical timestamp string used across documents.
func Now() string {
	return time.Now().Format(time.RFC3339)
}
