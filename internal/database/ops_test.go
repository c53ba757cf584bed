// ABOUTME: Tests for generic document store operations
// ABOUTME: Verifies CRUD, key normalization, auto-increment, and bulk writes
package database

import (
	"context"
	"errors"
	"testing"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := InMemory()
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPutAndGet(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	key, err := m.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "Lin"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if key != "c1" {
		t.Errorf("Put() key = %v, want c1", key)
	}

	doc, err := m.Get(ctx, "contacts", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc == nil {
		t.Fatal("Get() returned nil for existing key")
	}
	if doc["name"] != "Lin" {
		t.Errorf("doc name = %v, want Lin", doc["name"])
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	m := testManager(t)

	doc, err := m.Get(context.Background(), "contacts", "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc != nil {
		t.Errorf("Get() for missing key = %v, want nil", doc)
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if _, err := m.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "old"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := m.Put(ctx, "contacts", map[string]any{"id": "c1", "name": "new"}); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}

	doc, err := m.Get(ctx, "contacts", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc["name"] != "new" {
		t.Errorf("doc name after overwrite = %v, want new", doc["name"])
	}
	n, err := m.Count(ctx, "contacts")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestPutMissingKeyAttribute(t *testing.T) {
	m := testManager(t)

	if _, err := m.Put(context.Background(), "contacts", map[string]any{"name": "orphan"}); err == nil {
		t.Error("Put() without key attribute should fail")
	}
}

func TestAutoIncrementAssignsKey(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	doc := map[string]any{"title": "song one"}
	key, err := m.Put(ctx, "songs", doc)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	id, ok := key.(int64)
	if !ok || id < 1 {
		t.Fatalf("Put() key = %v (%T), want positive int64", key, key)
	}
	if doc["id"] != id {
		t.Errorf("assigned key not injected into doc: %v", doc["id"])
	}

	second, err := m.Put(ctx, "songs", map[string]any{"title": "song two"})
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if second.(int64) <= id {
		t.Errorf("keys should increase: first %d, second %v", id, second)
	}

	got, err := m.Get(ctx, "songs", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["title"] != "song one" {
		t.Errorf("doc title = %v, want song one", got["title"])
	}
}

func TestAutoIncrementKeepsExplicitKey(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	// Imported documents arrive with their keys already assigned.
	key, err := m.Put(ctx, "songs", map[string]any{"id": float64(42), "title": "kept"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if key.(int64) != 42 {
		t.Errorf("Put() key = %v, want 42", key)
	}

	doc, err := m.Get(ctx, "songs", 42)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc["title"] != "kept" {
		t.Errorf("doc title = %v, want kept", doc["title"])
	}
}

func TestGetInto(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if _, err := m.Put(ctx, "characterMemories", map[string]any{
		"contactId": "c1", "memory": "likes tea", "updateCount": 2,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var mem struct {
		ContactID   string `json:"contactId"`
		Memory      string `json:"memory"`
		UpdateCount int    `json:"updateCount"`
	}
	found, err := m.GetInto(ctx, "characterMemories", "c1", &mem)
	if err != nil {
		t.Fatalf("GetInto() error = %v", err)
	}
	if !found {
		t.Fatal("GetInto() found = false for existing key")
	}
	if mem.Memory != "likes tea" || mem.UpdateCount != 2 {
		t.Errorf("GetInto() = %+v", mem)
	}

	found, err = m.GetInto(ctx, "characterMemories", "missing", &mem)
	if err != nil {
		t.Fatalf("GetInto() missing key error = %v", err)
	}
	if found {
		t.Error("GetInto() found = true for missing key")
	}
}

func TestDeleteAndClear(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := m.Put(ctx, "emojis", map[string]any{"id": id, "meaning": id}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	if err := m.Delete(ctx, "emojis", "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Deleting an absent key is not an error.
	if err := m.Delete(ctx, "emojis", "b"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}

	n, err := m.Count(ctx, "emojis")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() after delete = %d, want 2", n)
	}

	if err := m.Clear(ctx, "emojis"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	n, _ = m.Count(ctx, "emojis")
	if n != 0 {
		t.Errorf("Count() after clear = %d, want 0", n)
	}
}

func TestGetAllOrdered(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if _, err := m.Put(ctx, "contacts", map[string]any{"id": id}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	docs, err := m.GetAll(ctx, "contacts")
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("GetAll() returned %d docs, want 3", len(docs))
	}
	want := []string{"a", "b", "c"}
	for i, doc := range docs {
		if doc["id"] != want[i] {
			t.Errorf("docs[%d] id = %v, want %v", i, doc["id"], want[i])
		}
	}
}

func TestBulkPut(t *testing.T) {
	m := testManager(t)

	docs := []map[string]any{
		{"id": "c1", "name": "one"},
		{"name": "missing key"},
		{"id": "c2", "name": "two"},
	}
	added, skipped, err := m.BulkPut(context.Background(), "contacts", docs)
	if err != nil {
		t.Fatalf("BulkPut() error = %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestUnknownStore(t *testing.T) {
	m := testManager(t)

	_, err := m.Get(context.Background(), "noSuchStore", "k")
	if !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("Get() on unknown store error = %v, want ErrStoreNotFound", err)
	}
}
