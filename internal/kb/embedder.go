// Package kb is the knowledge base: embedded documents searchable by a blend
// of vector similarity and keyword relevance.
package kb

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/ollama/ollama/api"

	"github.com/hyperjump/kanit/internal/cache"
	"github.com/hyperjump/kanit/pkg/utils"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder embeds text by feature hashing its lower-cased words and word
// bigrams into a fixed number of signed buckets. It needs no model and the
// same text always yields the same unit vector.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder with the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed embedding of text. Text without words embeds to
// the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	words := Tokenize(text)
	for i, w := range words {
		e.add(vec, w, 1)
		if i > 0 {
			e.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Tokenize splits text into lower-cased runs of letters and digits. The
// dotted capital İ folds to a plain i.
func Tokenize(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "İ", "I"))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// OllamaEmbedder requests embeddings from an Ollama server.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder creates an embedder for model served at baseURL.
func NewOllamaEmbedder(baseURL, model string, dimensions int, hc *http.Client) (*OllamaEmbedder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &OllamaEmbedder{client: api.NewClient(u, hc), model: model, dimensions: dimensions}, nil
}

// Embed returns the model's embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: no embeddings returned")
	}
	vec := resp.Embeddings[0]
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("ollama embed: got %d dimensions, expected %d", len(vec), e.dimensions)
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// CachedEmbedder memoizes another embedder's results by text.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.LRU[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache.NewLRU[string, []float32](capacity, 0)}
}

// Embed returns the cached embedding of text, computing it on a miss.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Put(text, v)
	return v, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Len returns the number of cached embeddings.
func (e *CachedEmbedder) Len() int {
	return e.cache.Len()
}
