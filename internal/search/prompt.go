package search

import (
	"fmt"
	"sort"
	"strings"
)

// Source identifies a numbered page in the extraction prompt
type Source struct {
	Title string
	URL   string
}

// ExtractionSystemPrompt is the system prompt for the synthesis call
const ExtractionSystemPrompt = "You are a helpful assistant that extracts and synthesizes information from web search results. " +
	"Provide clear, concise answers based on the provided content. Always cite your sources by mentioning the source number."

// BuildExtractionPrompt numbers every fetched page across all successful
// queries (1-based, in order) and returns the prompt with its source map.
func BuildExtractionPrompt(results []Result) (string, map[int]Source) {
	sources := make(map[int]Source)
	var b strings.Builder

	var queries []string
	for _, r := range results {
		if r.Status == StatusSuccess {
			queries = append(queries, r.Query)
		}
	}
	b.WriteString("Answer the user's question using the web search results below.\n")
	fmt.Fprintf(&b, "Search queries: %s\n\n", strings.Join(queries, "; "))

	n := 0
	for _, r := range results {
		if r.Status != StatusSuccess {
			continue
		}
		for _, page := range r.Webpages {
			n++
			sources[n] = Source{Title: page.Title, URL: page.URL}
			fmt.Fprintf(&b, "[Source %d] %s\nURL: %s\n", n, page.Title, page.URL)
			if page.Snippet != "" {
				fmt.Fprintf(&b, "Snippet: %s\n", page.Snippet)
			}
			fmt.Fprintf(&b, "Content:\n%s\n\n", excerpt(page.Content, MaxExcerptChars))
		}
	}

	b.WriteString("Using the sources above, write a concise answer. Cite sources by their number, e.g. [1] or [2][3].")
	return b.String(), sources
}

// FormatResults appends the numbered source list to the model's answer
func FormatResults(text string, sources map[int]Source) string {
	nums := make([]int, 0, len(sources))
	for n := range sources {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	if len(nums) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, n := range nums {
			s := sources[n]
			fmt.Fprintf(&b, "%d. [%s](%s)\n", n, s.Title, s.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
