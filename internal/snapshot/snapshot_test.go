// ABOUTME: Tests for the snapshot file format and in-place transforms
// ABOUTME: Verifies parse/encode round trips, validation, and secret redaction
package snapshot

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	snap := New(13)
	snap.Metadata.Stores = []string{"contacts"}
	snap.Stores["contacts"] = []map[string]any{{"id": "c1", "name": "Lin"}}
	snap.Stores["userProfile"] = []map[string]any{}

	data, err := snap.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}

	// Store sections sit at the root next to _metadata.
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		t.Fatalf("encoded snapshot is not a JSON object: %v", err)
	}
	if _, ok := root[MetadataKey]; !ok {
		t.Error("encoded snapshot missing _metadata")
	}
	if _, ok := root["contacts"]; !ok {
		t.Error("encoded snapshot missing contacts section")
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Metadata.Version != 13 {
		t.Errorf("Version = %d, want 13", parsed.Metadata.Version)
	}
	if len(parsed.Stores["contacts"]) != 1 {
		t.Errorf("contacts section has %d docs, want 1", len(parsed.Stores["contacts"]))
	}
	if !parsed.Has("userProfile") {
		t.Error("empty userProfile section lost in round trip")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse([]byte(`[]`)); !errors.Is(err, ErrValidation) {
		t.Errorf("Parse(list) error = %v, want ErrValidation", err)
	}
	if _, err := Parse([]byte(`{"contacts": {"not": "a list"}}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("Parse(bad section) error = %v, want ErrValidation", err)
	}
}

func TestValidate(t *testing.T) {
	snap := New(13)
	if err := snap.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() on empty snapshot error = %v, want ErrValidation", err)
	}

	snap.Ensure("contacts")
	if err := snap.Validate(); err != nil {
		t.Errorf("Validate() with contacts error = %v", err)
	}

	snap.Metadata.Version = 0
	if err := snap.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() without version error = %v, want ErrValidation", err)
	}
}

func TestRedactSecrets(t *testing.T) {
	snap := New(13)
	snap.Stores["apiSettings"] = []map[string]any{{
		"id":               "settings",
		"url":              "https://api.example.com/v1",
		"key":              "sk-secret",
		"apiKey":           "another",
		"elevenLabsApiKey": "el",
		"geminiKey":        "gm",
		"password":         "pw",
		"model":            "gpt-x",
	}}

	snap.RedactSecrets()

	doc := snap.Stores["apiSettings"][0]
	for _, field := range SecretFields {
		if _, ok := doc[field]; ok {
			t.Errorf("secret field %q survived redaction", field)
		}
	}
	if doc["url"] != "https://api.example.com/v1" || doc["model"] != "gpt-x" {
		t.Error("non-secret fields were disturbed")
	}
}

func TestBlankAvatars(t *testing.T) {
	snap := New(13)
	snap.Stores["contacts"] = []map[string]any{
		{"id": "c1", "avatar": "data:image/png;base64,AAAA"},
		{"id": "c2"},
	}
	snap.Stores["userProfile"] = []map[string]any{
		{"id": "profile", "avatar": "data:image/png;base64,BBBB"},
	}

	snap.BlankAvatars()

	if snap.Stores["contacts"][0]["avatar"] != "" {
		t.Error("contact avatar not blanked")
	}
	if _, ok := snap.Stores["contacts"][1]["avatar"]; ok {
		t.Error("avatar attribute invented on contact without one")
	}
	if snap.Stores["userProfile"][0]["avatar"] != "" {
		t.Error("profile avatar not blanked")
	}
}

func TestCloneIsDeep(t *testing.T) {
	snap := New(13)
	snap.Stores["contacts"] = []map[string]any{{"id": "c1", "name": "old"}}

	clone, err := snap.Clone()
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	clone.Stores["contacts"][0]["name"] = "new"

	if snap.Stores["contacts"][0]["name"] != "old" {
		t.Error("Clone() shares document maps with the original")
	}
}
