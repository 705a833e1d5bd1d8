package kb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/internal/storage"
	"github.com/hyperjump/kanit/pkg/utils"
)

// Relevance blend weights.
const (
	semanticWeight = 0.7
	keywordWeight  = 0.3

	minKeywordCandidates = 50
	restorePageSize      = 500
)

// Store is the knowledge base. Documents are kept in memory, indexed for
// vector and keyword search, and written through to a DocumentStore when one
// is configured.
type Store struct {
	embedder Embedder
	vectors  *vectorIndex
	keywords *keywordIndex
	storage  storage.DocumentStore
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	docs map[string]*models.KBDocument
}

// Option configures a Store.
type Option func(*Store)

// WithStorage persists documents to ds.
func WithStorage(ds storage.DocumentStore) Option {
	return func(s *Store) { s.storage = ds }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = utils.OrNop(l) }
}

// WithClock sets the time source for document creation times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty knowledge base using embedder.
func NewStore(embedder Embedder, opts ...Option) (*Store, error) {
	vectors, err := newVectorIndex(embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	keywords, err := newKeywordIndex()
	if err != nil {
		return nil, err
	}
	s := &Store{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		logger:   zap.NewNop(),
		now:      time.Now,
		docs:     make(map[string]*models.KBDocument),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add embeds and indexes a document. It returns false without error when id
// is already present.
func (s *Store) Add(ctx context.Context, id, content string, metadata map[string]string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(content) == "" {
		return false, fmt.Errorf("document %s has no content", id)
	}
	if s.Has(id) {
		return false, nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return false, fmt.Errorf("embed %s: %w", id, err)
	}
	doc := &models.KBDocument{ID: id, Content: content, Metadata: copyMetadata(metadata), CreatedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return false, nil
	}
	if err := s.index(doc, vec); err != nil {
		return false, err
	}
	if s.storage != nil {
		if err := s.storage.SaveDocument(ctx, doc); err != nil {
			s.unindex(id)
			return false, fmt.Errorf("persist %s: %w", id, err)
		}
	}
	s.logger.Debug("document added", zap.String("id", id), zap.Int("chars", len(content)))
	return true, nil
}

// index adds doc to both indexes and the document map. Caller holds s.mu.
func (s *Store) index(doc *models.KBDocument, vec []float32) error {
	if err := s.vectors.Add(doc.ID, vec); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	if err := s.keywords.Index(doc.ID, doc.Content); err != nil {
		s.vectors.Remove(doc.ID)
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	s.docs[doc.ID] = doc
	return nil
}

// unindex drops id from memory. Caller holds s.mu.
func (s *Store) unindex(id string) {
	s.vectors.Remove(id)
	if err := s.keywords.Delete(id); err != nil {
		s.logger.Warn("keyword delete failed", zap.String("id", id), zap.Error(err))
	}
	delete(s.docs, id)
}

// Remove deletes a document. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unindex(id)
	if s.storage != nil {
		if err := s.storage.DeleteDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}

// Has reports whether id is present.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok
}

// Get returns a copy of the document with id.
func (s *Store) Get(id string) (models.KBDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return models.KBDocument{}, false
	}
	cp := *doc
	cp.Metadata = copyMetadata(doc.Metadata)
	return cp, true
}

// Count returns the number of documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Restore loads every persisted document into memory and returns how many
// were indexed. Documents already in memory are skipped.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.storage == nil {
		return 0, nil
	}
	restored := 0
	for offset := 0; ; offset += restorePageSize {
		page, err := s.storage.ListDocuments(ctx, offset, restorePageSize)
		if err != nil {
			return restored, fmt.Errorf("list documents: %w", err)
		}
		for _, doc := range page {
			if s.Has(doc.ID) {
				continue
			}
			vec, err := s.embedder.Embed(ctx, doc.Content)
			if err != nil {
				s.logger.Warn("restore embed failed", zap.String("id", doc.ID), zap.Error(err))
				continue
			}
			s.mu.Lock()
			err = s.index(doc, vec)
			s.mu.Unlock()
			if err != nil {
				s.logger.Warn("restore index failed", zap.String("id", doc.ID), zap.Error(err))
				continue
			}
			restored++
		}
		if len(page) < restorePageSize {
			break
		}
	}
	s.logger.Info("knowledge base restored", zap.Int("documents", restored))
	return restored, nil
}

// Search returns up to k documents whose relevance is at least minRelevance.
// Relevance is 100 * (0.7 * cosine + 0.3 * normalized keyword score),
// rounded to one decimal.
func (s *Store) Search(ctx context.Context, query string, k int, minRelevance float64) ([]models.KBHit, error) {
	if k <= 0 || strings.TrimSpace(query) == "" || s.Count() == 0 {
		return []models.KBHit{}, nil
	}
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	semantic, err := s.vectors.Search(qv, 0)
	if err != nil {
		return nil, err
	}
	keyword, err := s.keywords.Search(query, max(k*4, minKeywordCandidates))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	hits := make([]models.KBHit, 0, k)
	for _, sh := range semantic {
		doc, ok := s.docs[sh.ID]
		if !ok {
			continue
		}
		rel := utils.Round(100*(semanticWeight*sh.Score+keywordWeight*keyword[sh.ID]), 1)
		if rel < minRelevance {
			continue
		}
		hits = append(hits, models.KBHit{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  copyMetadata(doc.Metadata),
			Relevance: rel,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Relevance > hits[j].Relevance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close releases the keyword index.
func (s *Store) Close() error {
	return s.keywords.Close()
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
