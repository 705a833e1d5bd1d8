package websearch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// PageFetcher returns the text of a page, or "" when it cannot be fetched.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) string
}

// FetchAll fetches urls with at most limit requests in flight. The result
// has one slot per URL in input order; failed fetches leave "".
func FetchAll(ctx context.Context, f PageFetcher, urls []string, limit int) []string {
	out := make([]string, len(urls))
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out[i] = f.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
