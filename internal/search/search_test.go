package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher map[string][]Hit

func (f fakeSearcher) Search(ctx context.Context, query string, n int) ([]Hit, error) {
	if query == "explode" {
		return nil, errors.New("search API error (503)")
	}
	return f[query], nil
}

type fakeFetcher struct {
	pages map[string]string
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls.Add(1)
	// Finish out of order to exercise deterministic reassembly
	if strings.HasSuffix(url, "/1") {
		time.Sleep(20 * time.Millisecond)
	}
	text, ok := f.pages[url]
	if !ok {
		return "", ErrUnsupportedContent
	}
	return text, nil
}

func hits(prefix string, n int) []Hit {
	var out []Hit
	for i := 1; i <= n; i++ {
		out = append(out, Hit{Title: fmt.Sprintf("%s %d", prefix, i), URL: fmt.Sprintf("https://%s.example/%d", prefix, i)})
	}
	return out
}

func TestExecuteStatusesAndOrder(t *testing.T) {
	searcher := fakeSearcher{
		"eiffel": hits("eiffel", 3),
		"broken": hits("broken", 2),
	}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://eiffel.example/1": "Tower is 330 m tall.",
		"https://eiffel.example/2": strings.Repeat("x", MaxContentChars+500),
		"https://eiffel.example/3": "Built in 1889.",
	}}
	o := NewOrchestrator(searcher, fetcher, time.Second)

	results := o.Execute(context.Background(), []Query{
		{Query: "eiffel", MaxResults: 5},
		{Query: "nothing"},
		{Query: "broken"},
		{Query: "explode"},
	})
	require.Len(t, results, 4)

	assert.Equal(t, StatusSuccess, results[0].Status)
	require.Len(t, results[0].Webpages, 3)
	assert.Equal(t, "eiffel 1", results[0].Webpages[0].Title)
	assert.Equal(t, "eiffel 3", results[0].Webpages[2].Title)
	assert.Len(t, results[0].Webpages[1].Content, MaxContentChars)

	assert.Equal(t, StatusNoResults, results[1].Status)
	assert.Equal(t, StatusFetchFailed, results[2].Status)
	assert.Equal(t, StatusError, results[3].Status)
	assert.Contains(t, results[3].Message, "503")

	assert.True(t, AnySucceeded(results))
	assert.False(t, AnySucceeded(results[1:]))
}

func TestExecuteDefaultMaxResults(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	o := NewOrchestrator(fakeSearcher{"q": hits("q", 8)}, fetcher, time.Second)

	o.Execute(context.Background(), []Query{{Query: "q"}})
	assert.EqualValues(t, DefaultMaxResults, fetcher.calls.Load())
}

func TestBuildExtractionPromptNumbering(t *testing.T) {
	results := []Result{
		{Query: "a", Status: StatusSuccess, Webpages: []Webpage{
			{Hit: Hit{Title: "A1", URL: "https://a/1"}, Content: "alpha"},
			{Hit: Hit{Title: "A2", URL: "https://a/2"}, Content: "beta"},
		}},
		{Query: "skip", Status: StatusNoResults},
		{Query: "b", Status: StatusSuccess, Webpages: []Webpage{
			{Hit: Hit{Title: "B1", URL: "https://b/1", Snippet: "snip"}, Content: "gamma"},
		}},
	}

	prompt, sources := BuildExtractionPrompt(results)
	assert.Equal(t, map[int]Source{
		1: {Title: "A1", URL: "https://a/1"},
		2: {Title: "A2", URL: "https://a/2"},
		3: {Title: "B1", URL: "https://b/1"},
	}, sources)
	assert.Contains(t, prompt, "[Source 1] A1")
	assert.Contains(t, prompt, "[Source 3] B1")
	assert.Contains(t, prompt, "Snippet: snip")
	assert.Contains(t, prompt, "Cite sources by their number")
	assert.Less(t, strings.Index(prompt, "alpha"), strings.Index(prompt, "gamma"))
	assert.NotContains(t, prompt, "skip;")
}

func TestBuildExtractionPromptCapsExcerpts(t *testing.T) {
	long := strings.Repeat("The tower is tall. ", 400)
	prompt, _ := BuildExtractionPrompt([]Result{{Query: "q", Status: StatusSuccess, Webpages: []Webpage{
		{Hit: Hit{Title: "T", URL: "https://t"}, Content: long},
	}}})
	assert.Less(t, len(prompt), MaxExcerptChars+1000)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 100))

	got := excerpt(strings.Repeat("a", 50), 10)
	assert.Equal(t, strings.Repeat("a", 10)+"...", got)

	got = excerpt("First sentence here. Second sentence is much longer than the first one.", 30)
	assert.True(t, strings.HasPrefix(got, "First sentence here."), got)
	assert.LessOrEqual(t, len([]rune(got)), 30+4)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults("The tower is 330 m tall [1].\n", map[int]Source{
		2: {Title: "Wiki", URL: "https://w"},
		1: {Title: "Official", URL: "https://o"},
	})
	assert.Equal(t, "The tower is 330 m tall [1].\n\nSources:\n1. [Official](https://o)\n2. [Wiki](https://w)", out)

	assert.Equal(t, "answer", FormatResults("answer", nil))
}

const ddgFixture = `<html><body>
<div class="results">
  <div class="result results_links results_links_deep web-result">
    <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fen.wikipedia.org%2Fwiki%2FEiffel_Tower&amp;rut=abc">Eiffel <b>Tower</b> - Wikipedia</a></h2>
    <a class="result__snippet" href="#">The tower is <b>330</b> metres tall.</a>
  </div>
  <div class="result result--ad results_links"><a class="result__a" href="https://ads.example">Ad</a></div>
  <div class="result results_links web-result">
    <h2><a class="result__a" href="https://www.toureiffel.paris/en">Official site</a></h2>
  </div>
</div></body></html>`

func TestDuckDuckGoSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(ddgFixture))
	}))
	defer srv.Close()

	hits, err := NewDuckDuckGo(srv.URL).Search(context.Background(), "eiffel tower height", 5)
	require.NoError(t, err)
	assert.Equal(t, "eiffel tower height", gotQuery)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Eiffel_Tower", hits[0].URL)
	assert.Equal(t, "Eiffel Tower - Wikipedia", hits[0].Title)
	assert.Equal(t, "The tower is 330 metres tall.", hits[0].Snippet)
	assert.Equal(t, "https://www.toureiffel.paris/en", hits[1].URL)

	hits, err = NewDuckDuckGo(srv.URL).Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestHTTPFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><style>p{}</style><script>var x=1;</script></head>
<body><nav>Menu</nav><h1>Title</h1><p>First   paragraph.</p><p>Second.</p><footer>foot</footer></body></html>`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text"))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	ctx := context.Background()

	text, err := f.Fetch(ctx, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Title\nFirst paragraph.\nSecond.", text)

	text, err = f.Fetch(ctx, srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "plain text", text)

	_, err = f.Fetch(ctx, srv.URL+"/image")
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	_, err = f.Fetch(ctx, srv.URL+"/gone")
	assert.Error(t, err)
}
