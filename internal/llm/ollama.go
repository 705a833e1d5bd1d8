// Package llm generates answers with a local Ollama model.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/hyperjump/kanit/pkg/utils"
)

// EmptyAnswer replaces a generation that is empty after cleanup.
const EmptyAnswer = "Cevap üretilemedi."

// Defaults for the Ollama generator.
const (
	DefaultModel               = "dolphin-my-gguf"
	DefaultTimeout             = 120 * time.Second
	DefaultContextWindow       = 2048
	DefaultStreamContextWindow = 4096
)

var thinkingBlocks = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<think>.*?</think>`),
	regexp.MustCompile(`(?s)<reasoning>.*?</reasoning>`),
}

// Request is one generation request.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// Generator produces model answers.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Stream delivers tokens to onToken as they arrive and returns the
	// concatenated answer. A non-nil error from onToken stops the stream.
	Stream(ctx context.Context, req Request, onToken func(string) error) (string, error)
}

// Ollama is a Generator backed by the Ollama HTTP API.
type Ollama struct {
	client       *api.Client
	model        string
	numCtx       int
	streamNumCtx int
	logger       *zap.Logger
}

// Option configures an Ollama generator.
type Option func(*Ollama)

// WithContextWindow sets num_ctx for non-streaming and streaming generation.
func WithContextWindow(generate, stream int) Option {
	return func(o *Ollama) {
		if generate > 0 {
			o.numCtx = generate
		}
		if stream > 0 {
			o.streamNumCtx = stream
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Ollama) { o.logger = utils.OrNop(l) }
}

// NewOllama creates a generator for model served at baseURL. hc may be nil,
// in which case a client with DefaultTimeout is used.
func NewOllama(baseURL, model string, hc *http.Client, opts ...Option) (*Ollama, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if model == "" {
		model = DefaultModel
	}
	o := &Ollama{
		client:       api.NewClient(u, hc),
		model:        model,
		numCtx:       DefaultContextWindow,
		streamNumCtx: DefaultStreamContextWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Model returns the model name.
func (o *Ollama) Model() string {
	return o.model
}

// Generate returns the cleaned, non-streamed answer to req.
func (o *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	stream := false
	var sb strings.Builder
	start := time.Now()
	err := o.client.Generate(ctx, o.request(req, &stream, o.numCtx), func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	o.logger.Debug("generated", zap.String("model", o.model), zap.Duration("took", time.Since(start)))
	return Clean(sb.String()), nil
}

// Stream generates req token by token. The returned answer is the raw
// concatenation of every token.
func (o *Ollama) Stream(ctx context.Context, req Request, onToken func(string) error) (string, error) {
	stream := true
	var sb strings.Builder
	err := o.client.Generate(ctx, o.request(req, &stream, o.streamNumCtx), func(resp api.GenerateResponse) error {
		if resp.Response == "" {
			return nil
		}
		sb.WriteString(resp.Response)
		return onToken(resp.Response)
	})
	if err != nil {
		return sb.String(), fmt.Errorf("ollama stream: %w", err)
	}
	return sb.String(), nil
}

func (o *Ollama) request(req Request, stream *bool, numCtx int) *api.GenerateRequest {
	return &api.GenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
			"num_ctx":     numCtx,
		},
	}
}

// Clean strips <think> and <reasoning> blocks and surrounding whitespace.
// An empty result becomes EmptyAnswer.
func Clean(answer string) string {
	for _, re := range thinkingBlocks {
		answer = re.ReplaceAllString(answer, "")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return EmptyAnswer
	}
	return answer
}

// Ping reports whether the Ollama server is reachable.
func (o *Ollama) Ping(ctx context.Context) error {
	return o.client.Heartbeat(ctx)
}
