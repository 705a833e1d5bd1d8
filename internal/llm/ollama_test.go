package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generateCall struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system"`
	Stream  *bool          `json:"stream"`
	Options map[string]any `json:"options"`
}

type fakeOllama struct {
	mu     sync.Mutex
	calls  []generateCall
	lines  []string
	status int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/generate" {
		http.NotFound(w, r)
		return
	}
	var call generateCall
	_ = json.NewDecoder(r.Body).Decode(&call)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, `{"error":"model not found"}`)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, l := range f.lines {
		fmt.Fprintln(w, l)
	}
}

func newGenerator(t *testing.T, f *fakeOllama, opts ...Option) *Ollama {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	g, err := NewOllama(srv.URL, "test-model", nil, opts...)
	require.NoError(t, err)
	return g
}

func TestOllama_Generate(t *testing.T) {
	f := &fakeOllama{lines: []string{
		`{"model":"test-model","response":"<think>plan\nsteps</think>  İstanbul'un nüfusu yaklaşık 15 milyondur. ","done":true}`,
	}}
	g := newGenerator(t, f, WithContextWindow(1024, 0))

	got, err := g.Generate(t.Context(), Request{Prompt: "SORU: nüfus", System: "sys", Temperature: 0.3, MaxTokens: 800})
	require.NoError(t, err)
	assert.Equal(t, "İstanbul'un nüfusu yaklaşık 15 milyondur.", got)

	require.Len(t, f.calls, 1)
	call := f.calls[0]
	assert.Equal(t, "test-model", call.Model)
	assert.Equal(t, "SORU: nüfus", call.Prompt)
	assert.Equal(t, "sys", call.System)
	require.NotNil(t, call.Stream)
	assert.False(t, *call.Stream)
	assert.InDelta(t, 0.3, call.Options["temperature"], 1e-9)
	assert.EqualValues(t, 800, call.Options["num_predict"])
	assert.EqualValues(t, 1024, call.Options["num_ctx"])
}

func TestOllama_GenerateEmpty(t *testing.T) {
	f := &fakeOllama{lines: []string{`{"response":"<reasoning>only thoughts</reasoning>","done":true}`}}
	g := newGenerator(t, f)

	got, err := g.Generate(t.Context(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, EmptyAnswer, got)
}

func TestOllama_GenerateError(t *testing.T) {
	f := &fakeOllama{status: http.StatusNotFound}
	g := newGenerator(t, f)

	_, err := g.Generate(t.Context(), Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestOllama_Stream(t *testing.T) {
	f := &fakeOllama{lines: []string{
		`{"response":"Mer","done":false}`,
		`{"response":"","done":false}`,
		`{"response":"haba","done":false}`,
		`{"response":"!","done":true}`,
	}}
	g := newGenerator(t, f)

	var tokens []string
	full, err := g.Stream(t.Context(), Request{Prompt: "p", MaxTokens: 10}, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mer", "haba", "!"}, tokens)
	assert.Equal(t, "Merhaba!", full)

	require.Len(t, f.calls, 1)
	assert.True(t, *f.calls[0].Stream)
	assert.EqualValues(t, DefaultStreamContextWindow, f.calls[0].Options["num_ctx"])
}

func TestOllama_StreamStopsOnCallbackError(t *testing.T) {
	f := &fakeOllama{lines: []string{`{"response":"a"}`, `{"response":"b"}`, `{"response":"c","done":true}`}}
	g := newGenerator(t, f)
	stop := errors.New("client gone")

	var n int
	full, err := g.Stream(t.Context(), Request{Prompt: "p"}, func(string) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
	assert.Equal(t, "a", full)
}

func TestOllama_CanceledContext(t *testing.T) {
	g := newGenerator(t, &fakeOllama{lines: []string{`{"response":"x","done":true}`}})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := g.Generate(ctx, Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  cevap  ", "cevap"},
		{"<think>a</think>b<think>c</think>", "b"},
		{"<reasoning>\nx\n</reasoning>\n\nSonuç", "Sonuç"},
		{"", EmptyAnswer},
		{"<think>unterminated", "<think>unterminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), "Clean(%q)", tt.in)
	}
}

func TestNewOllama_Defaults(t *testing.T) {
	g, err := NewOllama("http://localhost:11434", "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, g.Model())

	_, err = NewOllama("://bad", "m", nil)
	assert.Error(t, err)
}

func TestOllama_Ping(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	g, err := NewOllama(up.URL, "m", up.Client())
	require.NoError(t, err)
	assert.NoError(t, g.Ping(t.Context()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	g, err = NewOllama(down.URL, "m", down.Client())
	require.NoError(t, err)
	assert.Error(t, g.Ping(t.Context()))
}
