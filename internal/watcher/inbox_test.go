package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kanit/internal/extract"
	"github.com/hyperjump/kanit/internal/kb"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
)

func newInbox(t *testing.T) (*Inbox, *kb.Store, *metrics.Stats) {
	t.Helper()
	store, err := kb.NewStore(kb.NewHashEmbedder(64))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	stats := metrics.NewStats()
	at := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
	in := NewInbox(store, extract.NewExtractor(), WithInboxStats(stats), WithInboxClock(func() time.Time { return at }))
	return in, store, stats
}

var longText = strings.Repeat("Kanıt tabanlı yanıtlar için belge. ", 3)

func TestInbox_Ingest(t *testing.T) {
	in, store, stats := newInbox(t)
	path := filepath.Join(t.TempDir(), "rapor.txt")
	writeFile(t, path, longText)

	if err := in.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	doc, ok := store.Get(kb.FileDocID(path))
	if !ok {
		t.Fatal("document not stored")
	}
	if doc.Content != strings.TrimSpace(longText) {
		t.Errorf("content = %q", doc.Content)
	}
	want := map[string]string{
		"source":      "user_upload",
		"source_type": string(models.SourceUserUploaded),
		"filename":    "rapor.txt",
		"category":    "user_content",
		"uploaded_at": "2026-10-16T08:30:00Z",
	}
	for k, v := range want {
		if doc.Metadata[k] != v {
			t.Errorf("metadata[%s] = %q, want %q", k, doc.Metadata[k], v)
		}
	}
	if stats.Get(metrics.TotalDocuments) != 1 {
		t.Errorf("total_documents = %d, want 1", stats.Get(metrics.TotalDocuments))
	}

	if err := in.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if stats.Get(metrics.TotalDocuments) != 1 {
		t.Error("unchanged file must not be re-added")
	}
}

func TestInbox_IngestReplacesChangedFile(t *testing.T) {
	in, store, _ := newInbox(t)
	path := filepath.Join(t.TempDir(), "not.md")
	writeFile(t, path, longText)
	if err := in.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	changed := longText + " Güncellendi."
	writeFile(t, path, changed)
	if err := in.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	doc, _ := store.Get(kb.FileDocID(path))
	if doc.Content != strings.TrimSpace(changed) {
		t.Errorf("content = %q, want updated text", doc.Content)
	}
	if store.Count() != 1 {
		t.Errorf("Count = %d, want 1", store.Count())
	}
}

func TestInbox_SkipsShortFiles(t *testing.T) {
	in, store, _ := newInbox(t)
	path := filepath.Join(t.TempDir(), "kisa.txt")
	writeFile(t, path, strings.Repeat("ş", MinDocumentChars-1))
	if err := in.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if store.Count() != 0 {
		t.Error("short file must be skipped")
	}
}

func TestInbox_ExtractError(t *testing.T) {
	in, _, _ := newInbox(t)
	path := filepath.Join(t.TempDir(), "veri.unknown")
	writeFile(t, path, longText)
	err := in.Ingest(context.Background(), path)
	if !errors.Is(err, extract.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestInbox_Remove(t *testing.T) {
	in, store, _ := newInbox(t)
	path := filepath.Join(t.TempDir(), "sil.txt")
	writeFile(t, path, longText)
	if err := in.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := in.Remove(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if store.Count() != 0 {
		t.Error("document should be removed")
	}
	if err := in.Remove(context.Background(), path); err != nil {
		t.Errorf("removing twice: %v", err)
	}
}

func TestInbox_WithWatcher(t *testing.T) {
	in, store, _ := newInbox(t)
	dir := t.TempDir()
	startWatcher(t, []string{dir}, in)

	path := filepath.Join(dir, "yeni.txt")
	writeFile(t, path, longText)
	waitFor(t, func() bool { return store.Count() == 1 })

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return store.Count() == 0 })
}
