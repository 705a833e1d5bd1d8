package models

import "time"

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRecord is a persisted chat transcript entry.
type ChatRecord struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// ChatRequest is an incoming chat turn.
type ChatRequest struct {
	Message      string  `json:"message" validate:"required,max=8000"`
	Mode         string  `json:"mode,omitempty"`
	UseWebSearch *bool   `json:"use_web_search,omitempty"`
	MaxSources   int     `json:"max_sources,omitempty" validate:"gte=0,lte=20"`
	Temperature  float64 `json:"temperature,omitempty" validate:"gte=0,lte=2"`
	MaxTokens    int     `json:"max_tokens,omitempty" validate:"gte=0,lte=8192"`
	UserID       string  `json:"user_id,omitempty" validate:"max=100"`
	SessionID    string  `json:"session_id,omitempty" validate:"max=100"`
}

// ApplyDefaults fills unset fields with the request defaults.
func (r *ChatRequest) ApplyDefaults() {
	if r.Mode == "" {
		r.Mode = "normal"
	}
	if r.UseWebSearch == nil {
		t := true
		r.UseWebSearch = &t
	}
	if r.MaxSources <= 0 {
		r.MaxSources = 5
	}
	if r.Temperature == 0 {
		r.Temperature = 0.3
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = 800
	}
	if r.UserID == "" {
		r.UserID = "default"
	}
	if r.SessionID == "" {
		r.SessionID = "default"
	}
}

// WebSearchEnabled reports whether the request asks for web search.
func (r *ChatRequest) WebSearchEnabled() bool {
	return r.UseWebSearch == nil || *r.UseWebSearch
}

// Source is a web page that contributed evidence to an answer.
type Source struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	QualityScore float64 `json:"quality_score"`
	DomainTrust  float64 `json:"domain_trust"`
}

// ChatResponse is the answer plus the evidence summary behind it.
type ChatResponse struct {
	Response          string                  `json:"response"`
	Sources           []Source                `json:"sources"`
	UsedDB            bool                    `json:"used_db"`
	UsedWeb           bool                    `json:"used_web"`
	DBCount           int                     `json:"db_count"`
	WebCount          int                     `json:"web_count"`
	Mode              string                  `json:"mode"`
	ConfidenceScore   float64                 `json:"confidence_score"`
	HasConflicts      bool                    `json:"has_conflicts"`
	Conflicts         []Conflict              `json:"conflicts"`
	KnowledgeUsed     []SourceType            `json:"knowledge_used"`
	CrossVerification CrossVerificationResult `json:"cross_verification"`
}

// DocumentUpload is a user-provided knowledge base document.
type DocumentUpload struct {
	Content  string `json:"content" validate:"required,min=50"`
	Filename string `json:"filename" validate:"required,max=255"`
}
