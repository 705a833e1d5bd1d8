// Package assistant answers chat messages from knowledge base and web
// evidence, keeping per-session conversation memory.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/kb"
	"github.com/hyperjump/kanit/internal/llm"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/internal/storage"
	"github.com/hyperjump/kanit/internal/websearch"
	"github.com/hyperjump/kanit/pkg/utils"
)

var (
	// ErrRateLimited is returned when the client exceeded its request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrGeneration is returned when the model failed to answer.
	ErrGeneration = errors.New("answer generation failed")
)

// Trust thresholds for classifying scraped pages.
const (
	officialTrust  = 0.9
	reputableTrust = 0.8
	webConfidence  = 0.8
	knowledgeUsed  = 3
)

// RateLimiter admits or rejects a client request.
type RateLimiter interface {
	Allow(clientID string) bool
}

// Memory is the per-session conversation window.
type Memory interface {
	Append(user, sessionID string, role models.Role, content string)
	Context(user, sessionID string, maxMessages int) string
	UserMessages(user, sessionID string) []string
}

// KnowledgeBase is searched for stored evidence and receives scraped pages.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, k int, minRelevance float64) ([]models.KBHit, error)
	Add(ctx context.Context, id, content string, metadata map[string]string) (bool, error)
}

// WebSearcher finds candidate pages for a query.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int, language string) []models.WebResult
}

// Assessor scores scraped page quality.
type Assessor interface {
	Assess(content, title, url string) models.QualityAssessment
}

// Evaluator ranks evidence by confidence.
type Evaluator interface {
	Evaluate(web, db []models.InformationSnippet, query string) models.EvaluationResult
}

// Settings tunes retrieval and prompting.
type Settings struct {
	Modes              map[string]string
	StreamModes        map[string]string
	Language           string
	KBResults          int
	KBMinRelevance     float64
	ScrapeMinChars     int
	ScrapeQualityFloor float64
	ScrapeConcurrency  int
	ContextMessages    int
	// FollowUpHistory is how many recent user messages, including the
	// current one, feed follow-up query augmentation.
	FollowUpHistory int
}

// DefaultSettings returns the default retrieval settings.
func DefaultSettings() Settings {
	return Settings{
		Modes:              map[string]string{"normal": ""},
		StreamModes:        map[string]string{"normal": ""},
		Language:           "tr",
		KBResults:          3,
		KBMinRelevance:     60,
		ScrapeMinChars:     100,
		ScrapeQualityFloor: 0.4,
		ScrapeConcurrency:  5,
		ContextMessages:    12,
		FollowUpHistory:    8,
	}
}

// Deps are the collaborators of a Service. Web, Fetcher and Chats may be nil.
type Deps struct {
	Limiter   RateLimiter
	Memory    Memory
	KB        KnowledgeBase
	Web       WebSearcher
	Fetcher   websearch.PageFetcher
	Assessor  Assessor
	Evaluator Evaluator
	Generator llm.Generator
	Chats     storage.ChatStore
}

// Service orchestrates one chat turn.
type Service struct {
	deps     Deps
	settings Settings
	stats    *metrics.Stats
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSettings replaces the default settings.
func WithSettings(st Settings) Option {
	return func(s *Service) { s.settings = st }
}

// WithStats records pipeline counters.
func WithStats(st *metrics.Stats) Option {
	return func(s *Service) { s.stats = st }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.OrNop(l) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat service.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:     deps,
		settings: DefaultSettings(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat answers req for clientID. Denied requests return ErrRateLimited and
// leave no trace in memory.
func (s *Service) Chat(ctx context.Context, clientID string, req models.ChatRequest) (*models.ChatResponse, error) {
	req.ApplyDefaults()
	if !s.deps.Limiter.Allow(clientID) {
		return nil, ErrRateLimited
	}

	history := s.deps.Memory.Context(req.UserID, req.SessionID, s.settings.ContextMessages)
	previous := s.previousQuestions(req.UserID, req.SessionID)
	s.deps.Memory.Append(req.UserID, req.SessionID, models.RoleUser, req.Message)
	s.stats.Inc(metrics.TotalQueries)
	s.logger.Info("chat",
		zap.String("mode", req.Mode),
		zap.String("user", req.UserID),
		zap.String("query", utils.Truncate(req.Message, 80)))

	dbSnippets := s.searchKB(ctx, req.Message)

	var webSnippets []models.InformationSnippet
	sources := []models.Source{}
	usedWeb := false
	if req.WebSearchEnabled() && s.deps.Web != nil {
		s.stats.Inc(metrics.TotalWebSearches)
		webSnippets, sources, usedWeb = s.searchWeb(ctx, req, previous)
	}

	result := s.deps.Evaluator.Evaluate(webSnippets, dbSnippets, req.Message)

	answer, err := s.deps.Generator.Generate(ctx, llm.Request{
		Prompt:      BuildPrompt(req.Message, history, result.Snippets),
		System:      SystemPrompt(s.settings.Modes, req.Mode),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	s.deps.Memory.Append(req.UserID, req.SessionID, models.RoleAssistant, answer)
	s.persist(ctx, req, answer, map[string]any{
		"mode":             req.Mode,
		"confidence_score": result.HighestConfidence,
		"used_db":          len(dbSnippets) > 0,
		"used_web":         usedWeb,
	})
	s.stats.RecordConfidence(result.HighestConfidence)

	top := result.Top(knowledgeUsed)
	used := make([]models.SourceType, len(top))
	for i, sn := range top {
		used[i] = sn.SourceType
	}
	s.logger.Info("chat answered",
		zap.Bool("used_db", len(dbSnippets) > 0),
		zap.Bool("used_web", usedWeb),
		zap.Float64("confidence", result.HighestConfidence))

	return &models.ChatResponse{
		Response:          answer,
		Sources:           sources,
		UsedDB:            len(dbSnippets) > 0,
		UsedWeb:           usedWeb,
		DBCount:           len(dbSnippets),
		WebCount:          len(sources),
		Mode:              req.Mode,
		ConfidenceScore:   result.HighestConfidence,
		HasConflicts:      result.HasConflicts,
		Conflicts:         result.Conflicts,
		KnowledgeUsed:     used,
		CrossVerification: result.CrossVerification,
	}, nil
}

// ChatStream answers req without retrieval, delivering tokens to onToken.
// The full answer is stored once the stream completes.
func (s *Service) ChatStream(ctx context.Context, clientID string, req models.ChatRequest, onToken func(string) error) error {
	req.ApplyDefaults()
	if !s.deps.Limiter.Allow(clientID) {
		return ErrRateLimited
	}
	history := s.deps.Memory.Context(req.UserID, req.SessionID, s.settings.ContextMessages)
	s.deps.Memory.Append(req.UserID, req.SessionID, models.RoleUser, req.Message)
	s.stats.Inc(metrics.TotalQueries)

	full, err := s.deps.Generator.Stream(ctx, llm.Request{
		Prompt:      BuildStreamPrompt(req.Message, history),
		System:      SystemPrompt(s.settings.StreamModes, req.Mode),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, onToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	s.deps.Memory.Append(req.UserID, req.SessionID, models.RoleAssistant, full)
	s.persist(ctx, req, full, map[string]any{"mode": req.Mode, "stream": true})
	return nil
}

// previousQuestions returns the user's recent questions before the current one.
func (s *Service) previousQuestions(user, sessionID string) []string {
	msgs := s.deps.Memory.UserMessages(user, sessionID)
	n := s.settings.FollowUpHistory - 1
	if n <= 0 {
		return nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// searchKB converts knowledge base hits to snippets. Failures degrade to no
// stored evidence.
func (s *Service) searchKB(ctx context.Context, query string) []models.InformationSnippet {
	hits, err := s.deps.KB.Search(ctx, query, s.settings.KBResults, s.settings.KBMinRelevance)
	if err != nil {
		s.logger.Warn("knowledge base search failed", zap.Error(err))
		return nil
	}
	now := s.now()
	out := make([]models.InformationSnippet, 0, len(hits))
	for _, h := range hits {
		ts := now
		if raw := h.Metadata["scraped_at"]; raw != "" {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				ts = parsed
			}
		}
		st := models.SourceInternalKB
		if t := models.SourceType(h.Metadata["source_type"]); t == models.SourceUserUploaded {
			st = t
		}
		sn := models.NewSnippet(h.Content, st, h.Metadata["url"], ts)
		sn.Confidence = h.Relevance / 100
		sn.Category = h.Metadata["category"]
		if sn.Category == "" {
			sn.Category = "general"
		}
		out = append(out, sn)
	}
	return out
}

// searchWeb searches, scrapes and assesses pages. Accepted pages are stored
// in the knowledge base and returned as snippets with their sources.
func (s *Service) searchWeb(ctx context.Context, req models.ChatRequest, previous []string) ([]models.InformationSnippet, []models.Source, bool) {
	query := AugmentQuery(req.Message, previous)
	if query != req.Message {
		s.logger.Debug("follow-up query augmented", zap.String("query", query))
	}
	results := s.deps.Web.Search(ctx, query, req.MaxSources, s.settings.Language)
	sources := []models.Source{}
	if len(results) == 0 || s.deps.Fetcher == nil {
		return nil, sources, len(results) > 0
	}

	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	pages := websearch.FetchAll(ctx, s.deps.Fetcher, urls, s.settings.ScrapeConcurrency)

	now := s.now()
	var snippets []models.InformationSnippet
	for i, r := range results {
		page := pages[i]
		if utf8.RuneCountInString(page) <= s.settings.ScrapeMinChars {
			continue
		}
		qa := s.deps.Assessor.Assess(page, r.Title, r.URL)
		if qa.QualityScore < s.settings.ScrapeQualityFloor {
			s.stats.Inc(metrics.QualityRejected)
			continue
		}
		added, err := s.deps.KB.Add(ctx, kb.WebDocID(r.URL), page, map[string]string{
			"source":        "web",
			"url":           r.URL,
			"title":         r.Title,
			"query":         req.Message,
			"category":      "web_scraped",
			"scraped_at":    now.UTC().Format(time.RFC3339),
			"quality_score": strconv.FormatFloat(qa.QualityScore, 'f', -1, 64),
			"domain_trust":  strconv.FormatFloat(qa.DomainTrust, 'f', -1, 64),
		})
		if err != nil {
			s.logger.Warn("store scraped page failed", zap.String("url", r.URL), zap.Error(err))
		} else if added {
			s.stats.Inc(metrics.TotalScraped)
		}

		sn := models.NewSnippet(r.Title+": "+page, SourceTypeForTrust(qa.DomainTrust), r.URL, now)
		sn.Confidence = qa.DomainTrust * webConfidence
		sn.Category = "web_content"
		sn.QualityScore = qa.QualityScore
		sn.DomainTrust = qa.DomainTrust
		snippets = append(snippets, sn)
		sources = append(sources, models.Source{
			Title:        r.Title,
			URL:          r.URL,
			QualityScore: utils.Round(qa.QualityScore, 2),
			DomainTrust:  utils.Round(qa.DomainTrust, 2),
		})
	}
	return snippets, sources, true
}

// SourceTypeForTrust classifies a page by its domain trust.
func SourceTypeForTrust(trust float64) models.SourceType {
	switch {
	case trust > officialTrust:
		return models.SourceOfficialSite
	case trust > reputableTrust:
		return models.SourceReputableNews
	}
	return models.SourceGeneralWeb
}

// persist writes both sides of a turn to the chat store, if any. Failures
// are logged.
func (s *Service) persist(ctx context.Context, req models.ChatRequest, answer string, meta map[string]any) {
	if s.deps.Chats == nil {
		return
	}
	now := s.now()
	records := []models.ChatRecord{
		{Role: models.RoleUser, Content: req.Message, Timestamp: now},
		{Role: models.RoleAssistant, Content: answer, Timestamp: now, Metadata: meta},
	}
	for _, rec := range records {
		if err := s.deps.Chats.SaveMessage(ctx, req.UserID, req.SessionID, rec); err != nil {
			s.logger.Warn("persist chat message failed", zap.String("role", string(rec.Role)), zap.Error(err))
			return
		}
	}
}
