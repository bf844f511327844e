package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrUnsupportedContent is returned for non-text responses
var ErrUnsupportedContent = errors.New("unsupported content type")

var (
	skipElements = map[string]bool{
		"script": true, "style": true, "noscript": true, "iframe": true,
		"svg": true, "nav": true, "footer": true, "header": true, "form": true,
	}
	blockElements = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
		"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// HTTPFetcher downloads pages and reduces HTML to text
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPFetcher creates a fetcher with a per-page timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		maxBody: 2 << 20,
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	body := io.LimitReader(resp.Body, f.maxBody)
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		doc, err := html.Parse(body)
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		return cleanText(extractText(doc)), nil
	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		return cleanText(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, mediaType)
	}
}

func extractText(doc *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				b.WriteString(s)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return b.String()
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = manySpaces.ReplaceAllString(s, " ")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
