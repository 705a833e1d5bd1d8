// Package extract turns uploaded and watched files into plain text for the
// knowledge base.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types the extractor cannot read.
var ErrUnsupported = errors.New("unsupported file type")

// DefaultMaxBytes bounds the size of a file the extractor will read.
const DefaultMaxBytes = 32 << 20

type extractFunc func([]byte) (string, error)

var extractors = map[string]extractFunc{
	".txt":  extractPlain,
	".md":   extractPlain,
	".rst":  extractPlain,
	".csv":  extractPlain,
	".json": extractPlain,
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".xlsx": extractExcel,
}

// Extractor extracts plain text from document files.
type Extractor struct {
	maxBytes int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes sets the largest file Extract will read.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether the extension of path has an extractor.
func (e *Extractor) Supports(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads the file at path and returns its normalized text.
func (e *Extractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxBytes {
		return "", fmt.Errorf("file %s is %d bytes, limit %d", filepath.Base(path), info.Size(), e.maxBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on ext, which includes the
// leading dot (e.g. ".pdf"). An empty extension is read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = ".txt"
	}
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", err
	}
	return normalize(text), nil
}

// normalize trims trailing spaces on every line and collapses runs of blank
// lines into one.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
