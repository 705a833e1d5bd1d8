package config

import (
	"time"

	"github.com/hyperjump/kanit/internal/knowledge"
	"github.com/hyperjump/kanit/internal/trust"
)

// DefaultModes are the system prompts per chat mode.
var DefaultModes = map[string]string{
	"normal":   "Sen özgürce konuşan bir asistansın. Hiçbir konu yasak değil. Sohbet geçmişini takip et.",
	"research": "Araştırma asistanısın. Kaynakları kullan, detaylı bilgi ver. Sohbet geçmişini dikkate al.",
	"creative": "Yaratıcı yazarsın. Özgün ve cesur içerik üret. Sohbet geçmişini takip et.",
	"code":     "Programlama uzmanısın. Kod örnekleri ve açıklamalar yaz. Sohbet geçmişini dikkate al.",
	"spor":     "Spor asistanısın. Maç skorları, takımlar ver. Sohbet geçmişini takip et.",
}

// DefaultStreamModes are the shorter system prompts used for streamed answers.
var DefaultStreamModes = map[string]string{
	"normal":   "Sen özgürce konuşan bir asistansın. Hiçbir konu yasak değil.",
	"research": "Araştırma asistanısın. Detaylı bilgi ver.",
	"creative": "Yaratıcı yazarsın. Özgün içerik üret.",
	"code":     "Programlama uzmanısın.",
	"spor":     "Spor asistanısın.",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 3 * time.Minute
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kanit/data/kanit.db"
	}

	applySearchDefaults(&cfg.Search)

	if cfg.LLM.OllamaURL == "" {
		cfg.LLM.OllamaURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "dolphin-my-gguf"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 800
	}
	if cfg.LLM.ContextWindow == 0 {
		cfg.LLM.ContextWindow = 2048
	}
	if cfg.LLM.StreamContextWindow == 0 {
		cfg.LLM.StreamContextWindow = 4096
	}

	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits.RequestsPerMinute = 30
	}
	if cfg.Limits.Window == 0 {
		cfg.Limits.Window = time.Minute
	}

	if cfg.Conversation.MaxMessages == 0 {
		cfg.Conversation.MaxMessages = 20
	}
	if cfg.Conversation.IdleTimeout == 0 {
		cfg.Conversation.IdleTimeout = 2 * time.Hour
	}
	if cfg.Conversation.ContextMessages == 0 {
		cfg.Conversation.ContextMessages = 12
	}
	if cfg.Conversation.FollowUpHistory == 0 {
		cfg.Conversation.FollowUpHistory = 8
	}

	def := trust.DefaultTiers()
	if cfg.Trust.Official == nil {
		cfg.Trust.Official = def.Official
	}
	if cfg.Trust.News == nil {
		cfg.Trust.News = def.News
	}
	if cfg.Trust.Curated == nil {
		cfg.Trust.Curated = def.Curated
	}
	if cfg.Trust.Spam == nil {
		cfg.Trust.Spam = def.Spam
	}

	if cfg.SourceWeights == nil {
		cfg.SourceWeights = make(map[string]float64)
	}
	for t, w := range knowledge.DefaultSourceWeights() {
		if _, ok := cfg.SourceWeights[string(t)]; !ok {
			cfg.SourceWeights[string(t)] = w
		}
	}

	if cfg.CoreFacts == nil {
		cfg.CoreFacts = knowledge.DefaultFacts()
	}
	cfg.Modes = withDefaults(cfg.Modes, DefaultModes)
	cfg.StreamModes = withDefaults(cfg.StreamModes, DefaultStreamModes)

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

func applySearchDefaults(s *SearchConfig) {
	if s.SearxngURLs == nil {
		s.SearxngURLs = []string{"http://localhost:8888"}
	}
	if s.Language == "" {
		s.Language = "tr"
	}
	if s.MaxResults == 0 {
		s.MaxResults = 5
	}
	if s.Variations == nil {
		s.Variations = []string{"{query}", "{query} {year}", "{query} detaylı"}
	}
	if s.SkipDomains == nil {
		s.SkipDomains = []string{
			"facebook.com", "twitter.com", "instagram.com",
			"youtube.com", "tiktok.com", "pinterest.com",
		}
	}
	if s.ResultQualityFloor == 0 {
		s.ResultQualityFloor = 0.15
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = 15 * time.Second
	}
	if s.UserAgent == "" {
		s.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if s.ScrapeMinChars == 0 {
		s.ScrapeMinChars = 100
	}
	if s.ScrapeQualityFloor == 0 {
		s.ScrapeQualityFloor = 0.4
	}
	if s.ScrapeTimeout == 0 {
		s.ScrapeTimeout = 15 * time.Second
	}
	if s.ScrapeMaxChars == 0 {
		s.ScrapeMaxChars = 8000
	}
	if s.ScrapeConcurrency == 0 {
		s.ScrapeConcurrency = 5
	}
	if s.KBResults == 0 {
		s.KBResults = 3
	}
	if s.KBMinRelevance == 0 {
		s.KBMinRelevance = 60
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = time.Hour
	}
	if s.CacheCapacity == 0 {
		s.CacheCapacity = 100
	}
	if s.BreakerMaxFailures == 0 {
		s.BreakerMaxFailures = 5
	}
	if s.BreakerOpenTimeout == 0 {
		s.BreakerOpenTimeout = 30 * time.Second
	}
}

// withDefaults returns m with every missing key of def filled in.
func withDefaults(m, def map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string, len(def))
	}
	for k, v := range def {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return m
}
