package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/hyperjump/kanit/pkg/utils"
)

// Defaults for page scraping.
const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultMaxChars     = 8000

	minFragmentRunes = 21
	maxPageBytes     = 2 << 20
)

// droppedTags are removed with their whole subtree before text extraction.
var droppedTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "aside": true, "iframe": true, "noscript": true,
}

// blockTags end a text fragment.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "main": true, "table": true, "tr": true,
	"td": true, "th": true, "blockquote": true, "pre": true, "dd": true, "dt": true,
}

// Fetcher downloads pages and reduces them to their main text.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxChars  int
	logger    *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchClient sets the HTTP client. It must follow redirects.
func WithFetchClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithFetchTimeout sets the per-page timeout.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFetchUserAgent sets the User-Agent header.
func WithFetchUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxChars caps the extracted text length in runes.
func WithMaxChars(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxChars = n
		}
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = utils.OrNop(l) }
}

// NewFetcher creates a page fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{},
		timeout:   DefaultFetchTimeout,
		userAgent: DefaultUserAgent,
		maxChars:  DefaultMaxChars,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the main text of the page at pageURL, or "" on any failure.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) string {
	text, err := f.fetch(ctx, pageURL)
	if err != nil {
		f.logger.Debug("scrape failed", zap.String("url", utils.Truncate(pageURL, 60)), zap.Error(err))
		return ""
	}
	return text
}

func (f *Fetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	doc, err := html.Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return ExtractText(doc, f.maxChars), nil
}

// ExtractText returns the readable text of doc: boilerplate elements are
// dropped, the first main, article, div.content or body element is used as
// the root, fragments of 20 runes or fewer are discarded and the rest are
// joined by single spaces and capped at maxChars runes.
func ExtractText(doc *html.Node, maxChars int) string {
	prune(doc)
	root := findRoot(doc)

	var fragments []string
	var cur strings.Builder
	flush := func() {
		s := utils.CollapseSpace(cur.String())
		cur.Reset()
		if utf8.RuneCountInString(s) >= minFragmentRunes {
			fragments = append(fragments, s)
		}
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
			return
		case html.ElementNode:
			if blockTags[n.Data] {
				flush()
				defer flush()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	flush()

	text := strings.Join(fragments, " ")
	if maxChars > 0 {
		text = utils.Prefix(text, maxChars)
	}
	return text
}

// prune detaches every dropped element from the tree.
func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && droppedTags[c.Data] {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}

func findRoot(doc *html.Node) *html.Node {
	for _, match := range []func(*html.Node) bool{
		isElement("main"),
		isElement("article"),
		func(n *html.Node) bool { return isElement("div")(n) && hasClass(n, "content") },
		isElement("body"),
	} {
		if n := find(doc, match); n != nil {
			return n
		}
	}
	return doc
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == tag }
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// find returns the first node in document order that satisfies match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}
