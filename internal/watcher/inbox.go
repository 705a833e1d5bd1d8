package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/kb"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

// MinDocumentChars is the shortest document accepted into the knowledge base.
const MinDocumentChars = 50

// KnowledgeBase is the part of the knowledge base the inbox writes to.
type KnowledgeBase interface {
	Add(ctx context.Context, id, content string, metadata map[string]string) (bool, error)
	Remove(ctx context.Context, id string) error
	Get(id string) (models.KBDocument, bool)
}

// Extractor turns a file into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Inbox ingests files as user-uploaded knowledge base documents.
type Inbox struct {
	kb        KnowledgeBase
	extractor Extractor
	stats     *metrics.Stats
	logger    *zap.Logger
	now       func() time.Time
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxStats counts inserted documents.
func WithInboxStats(s *metrics.Stats) InboxOption {
	return func(in *Inbox) { in.stats = s }
}

// WithInboxLogger sets the logger.
func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(in *Inbox) { in.logger = utils.OrNop(l) }
}

// WithInboxClock sets the time source for upload timestamps.
func WithInboxClock(now func() time.Time) InboxOption {
	return func(in *Inbox) { in.now = now }
}

// NewInbox creates an inbox handler.
func NewInbox(base KnowledgeBase, extractor Extractor, opts ...InboxOption) *Inbox {
	in := &Inbox{
		kb:        base,
		extractor: extractor,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest extracts path and stores it under its file document ID. Files
// shorter than MinDocumentChars are skipped. A changed file replaces its
// previous version; an unchanged one is left alone.
func (in *Inbox) Ingest(ctx context.Context, path string) error {
	text, err := in.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinDocumentChars {
		in.logger.Debug("inbox file too short", zap.String("path", path))
		return nil
	}

	id := kb.FileDocID(path)
	if prev, ok := in.kb.Get(id); ok {
		if prev.Content == text {
			return nil
		}
		if err := in.kb.Remove(ctx, id); err != nil {
			return fmt.Errorf("replace %s: %w", path, err)
		}
	}

	added, err := in.kb.Add(ctx, id, text, map[string]string{
		"source":      "user_upload",
		"source_type": string(models.SourceUserUploaded),
		"filename":    filepath.Base(path),
		"path":        path,
		"uploaded_at": in.now().UTC().Format(time.RFC3339),
		"category":    "user_content",
	})
	if err != nil {
		return err
	}
	if added {
		in.stats.Inc(metrics.TotalDocuments)
		in.logger.Info("inbox file ingested", zap.String("path", path), zap.String("id", id))
	}
	return nil
}

// Remove drops the document stored for path.
func (in *Inbox) Remove(ctx context.Context, path string) error {
	id := kb.FileDocID(path)
	if _, ok := in.kb.Get(id); !ok {
		return nil
	}
	if err := in.kb.Remove(ctx, id); err != nil {
		return err
	}
	in.logger.Info("inbox file removed", zap.String("path", path), zap.String("id", id))
	return nil
}
