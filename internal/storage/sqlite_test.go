package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kanit/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.KBDocument{
		ID:       "web_abcd1234",
		Content:  "Content",
		Metadata: map[string]string{"url": "https://a", "category": "web_scraped"},
	}
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "web_abcd1234")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "Content" || got.Metadata["url"] != "https://a" {
		t.Errorf("got %+v", got)
	}

	doc.Content = "Updated"
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetDocument(ctx, "web_abcd1234")
	if got.Content != "Updated" {
		t.Errorf("expected Updated, got %s", got.Content)
	}

	if err := store.SaveDocument(ctx, &models.KBDocument{ID: "doc2", Content: "second"}); err != nil {
		t.Fatal(err)
	}
	n, err := store.CountDocuments(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountDocuments = %d, %v", n, err)
	}
	list, err := store.ListDocuments(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "web_abcd1234" {
		t.Errorf("ListDocuments = %d docs", len(list))
	}
	page, _ := store.ListDocuments(ctx, 1, 10)
	if len(page) != 1 || page[0].ID != "doc2" {
		t.Errorf("paged ListDocuments = %+v", page)
	}

	if err := store.DeleteDocument(ctx, "web_abcd1234"); err != nil {
		t.Fatal(err)
	}
	_, err = store.GetDocument(ctx, "web_abcd1234")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument after delete: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_ChatHistory(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		rec := models.ChatRecord{
			Role:      role,
			Content:   fmt.Sprintf("m%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if i == 1 {
			rec.Metadata = map[string]any{"confidence": 0.9}
		}
		if err := store.SaveMessage(ctx, "u", "s", rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SaveMessage(ctx, "u", "other", models.ChatRecord{Role: models.RoleUser, Content: "x"}); err != nil {
		t.Fatal(err)
	}

	all, err := store.History(ctx, "u", "s", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 || all[0].Content != "m0" || all[4].Content != "m4" {
		t.Fatalf("History = %+v", all)
	}
	if all[1].Role != models.RoleAssistant || all[1].Metadata["confidence"] != 0.9 {
		t.Errorf("record 1 = %+v", all[1])
	}

	last, _ := store.History(ctx, "u", "s", 2)
	if len(last) != 2 || last[0].Content != "m3" || last[1].Content != "m4" {
		t.Errorf("History(limit 2) = %+v", last)
	}

	data, err := store.ExportHistory(ctx, "u", "s")
	if err != nil {
		t.Fatal(err)
	}
	var exported []models.ChatRecord
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(exported) != 5 {
		t.Errorf("exported %d records", len(exported))
	}

	if err := store.ClearSession(ctx, "u", "s"); err != nil {
		t.Fatal(err)
	}
	empty, _ := store.History(ctx, "u", "s", 10)
	if len(empty) != 0 || empty == nil {
		t.Errorf("History after clear = %v", empty)
	}
	other, _ := store.History(ctx, "u", "other", 10)
	if len(other) != 1 {
		t.Error("ClearSession removed another session")
	}
}

func TestSQLiteStorage_SizeBytes(t *testing.T) {
	store := newTestStorage(t)
	if err := store.SaveDocument(context.Background(), &models.KBDocument{ID: "a", Content: "b"}); err != nil {
		t.Fatal(err)
	}
	n, err := store.SizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if n <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", n)
	}
}
