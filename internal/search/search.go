// Package search runs web searches, fetches result pages, and turns them
// into a numbered extraction prompt and a cited answer.
package search

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vthunder/toolbot/internal/logging"
)

// Status of one query
type Status string

const (
	StatusSuccess     Status = "success"
	StatusNoResults   Status = "no_results"
	StatusFetchFailed Status = "fetch_failed"
	StatusError       Status = "error"
)

const (
	// DefaultMaxResults is used when a query does not say how many pages to read
	DefaultMaxResults = 3
	maxResultsLimit   = 10
	// MaxContentChars caps fetched page text
	MaxContentChars = 10000
	// MaxExcerptChars caps each source in the extraction prompt
	MaxExcerptChars = 2000
)

// Query is one requested search
type Query struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Hit is a search engine result
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Webpage is a hit with its fetched text
type Webpage struct {
	Hit
	Content string `json:"content"`
}

// Result is the outcome of one query
type Result struct {
	Query    string    `json:"query"`
	Status   Status    `json:"status"`
	Webpages []Webpage `json:"webpages,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Searcher finds pages for a query
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// Fetcher returns the readable text of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Orchestrator runs queries and page fetches in parallel
type Orchestrator struct {
	searcher      Searcher
	fetcher       Fetcher
	searchTimeout time.Duration
	concurrency   int
}

// NewOrchestrator wires a searcher and a fetcher
func NewOrchestrator(searcher Searcher, fetcher Fetcher, searchTimeout time.Duration) *Orchestrator {
	if searchTimeout == 0 {
		searchTimeout = 30 * time.Second
	}
	return &Orchestrator{
		searcher:      searcher,
		fetcher:       fetcher,
		searchTimeout: searchTimeout,
		concurrency:   8,
	}
}

// Execute runs every query. The returned slice is in query order and each
// result's webpages keep search-engine order.
func (o *Orchestrator) Execute(ctx context.Context, queries []Query) []Result {
	results := make([]Result, len(queries))

	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			results[i] = o.run(ctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) run(ctx context.Context, q Query) Result {
	res := Result{Query: q.Query}

	n := q.MaxResults
	if n <= 0 {
		n = DefaultMaxResults
	}
	if n > maxResultsLimit {
		n = maxResultsLimit
	}

	searchCtx, cancel := context.WithTimeout(ctx, o.searchTimeout)
	hits, err := o.searcher.Search(searchCtx, q.Query, n)
	cancel()
	if err != nil {
		logging.Warn("search", "search %q failed: %v", q.Query, err)
		res.Status = StatusError
		res.Message = err.Error()
		return res
	}
	if len(hits) == 0 {
		res.Status = StatusNoResults
		return res
	}
	if len(hits) > n {
		hits = hits[:n]
	}

	pages := make([]*Webpage, len(hits))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, hit := range hits {
		g.Go(func() error {
			text, err := o.fetcher.Fetch(ctx, hit.URL)
			if err != nil {
				logging.Debug("search", "fetch %s: %v", hit.URL, err)
				return nil
			}
			pages[i] = &Webpage{Hit: hit, Content: truncateRunes(text, MaxContentChars)}
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range pages {
		if p != nil {
			res.Webpages = append(res.Webpages, *p)
		}
	}
	if len(res.Webpages) == 0 {
		res.Status = StatusFetchFailed
		return res
	}
	res.Status = StatusSuccess
	logging.Debug("search", "%q: %d/%d pages fetched", q.Query, len(res.Webpages), len(hits))
	return res
}

// AnySucceeded reports whether at least one query produced pages
func AnySucceeded(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusSuccess {
			return true
		}
	}
	return false
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
