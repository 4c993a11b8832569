// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- Request construction ---

func TestSemanticSearchRequestParams(t *testing.T) {
	var capturedReq *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedReq = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total":0,"data":[]}`)
	}))
	defer ts.Close()

	old := semanticSearchURL
	semanticSearchURL = ts.URL
	defer func() { semanticSearchURL = old }()

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	ids, err := c.Search(context.Background(), "vitamin d deficiency")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("len(ids) = %d, want 0", len(ids))
	}

	q := capturedReq.URL.Query()
	if got := q.Get("query"); got != "vitamin d deficiency" {
		t.Errorf("query param = %q, want %q", got, "vitamin d deficiency")
	}
	if got := q.Get("limit"); got != "100" {
		t.Errorf("limit param = %q, want %q", got, "100")
	}
	if q.Has("fields") {
		t.Errorf("search request should not carry a fields param, got %q", q.Get("fields"))
	}
	if got := capturedReq.Header.Get("User-Agent"); got != "article-engine-test" {
		t.Errorf("User-Agent = %q, want %q", got, "article-engine-test")
	}
}

func TestSemanticSearchAPIKeyHeader(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantKey string
	}{
		{"with API key", "test-key-123", "test-key-123"},
		{"without API key", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedReq *http.Request
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedReq = r
				fmt.Fprint(w, `{"total":0,"data":[]}`)
			}))
			defer ts.Close()

			old := semanticSearchURL
			semanticSearchURL = ts.URL
			defer func() { semanticSearchURL = old }()

			cfg := testSearchCfg()
			cfg.SemanticScholarAPIKey = tt.apiKey

			c := NewSemanticClient(cfg, testFetchCfg(), nil, nil, nil)
			if _, err := c.Search(context.Background(), "test"); err != nil {
				t.Fatalf("Search: %v", err)
			}

			if got := capturedReq.Header.Get("x-api-key"); got != tt.wantKey {
				t.Errorf("x-api-key header = %q, want %q", got, tt.wantKey)
			}
		})
	}
}

func TestSemanticBatchRequestShape(t *testing.T) {
	var capturedReq *http.Request
	var capturedBody struct {
		IDs []string `json:"ids"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedReq = r
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Errorf("decoding batch body: %v", err)
		}
		fmt.Fprint(w, `[]`)
	}))
	defer ts.Close()

	old := semanticBatchURL
	semanticBatchURL = ts.URL
	defer func() { semanticBatchURL = old }()

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	papers, err := c.BatchDetail(context.Background(), []string{"id1", "id2"})
	if err != nil {
		t.Fatalf("BatchDetail: %v", err)
	}
	if len(papers) != 0 {
		t.Errorf("len(papers) = %d, want 0", len(papers))
	}

	if capturedReq.Method != http.MethodPost {
		t.Errorf("method = %q, want POST", capturedReq.Method)
	}
	if got := capturedReq.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := capturedReq.URL.Query().Get("fields"); got != semanticBatchFields {
		t.Errorf("fields param = %q, want %q", got, semanticBatchFields)
	}
	if len(capturedBody.IDs) != 2 || capturedBody.IDs[0] != "id1" || capturedBody.IDs[1] != "id2" {
		t.Errorf("body ids = %v, want [id1 id2]", capturedBody.IDs)
	}
}

// --- Response handling ---

func TestSemanticBatchNullEntriesSkipped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[
			{"paperId":"a","title":"First","abstract":"text","authors":[{"name":"Smith Jane"}]},
			null,
			{"paperId":"b","title":"Second","abstract":"text","authors":[]}
		]`)
	}))
	defer ts.Close()

	old := semanticBatchURL
	semanticBatchURL = ts.URL
	defer func() { semanticBatchURL = old }()

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	papers, err := c.BatchDetail(context.Background(), []string{"a", "x", "b"})
	if err != nil {
		t.Fatalf("BatchDetail: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("len(papers) = %d, want 2 (null entry skipped)", len(papers))
	}
	if papers[0].Title != "First" || papers[1].Title != "Second" {
		t.Errorf("titles = %q, %q, want First, Second", papers[0].Title, papers[1].Title)
	}
}

func TestSemanticBatchVenueNormalization(t *testing.T) {
	tests := []struct {
		name      string
		paper     string
		wantVenue string
		wantISSN  string
		wantPDF   string
	}{
		{
			"publication venue preferred",
			`{"paperId":"a","title":"P","venue":"arXiv.org",
			  "publicationVenue":{"name":"Nature Medicine","issn":"1078-8956"},
			  "openAccessPdf":{"url":"https://example.org/p.pdf"}}`,
			"Nature Medicine",
			"10788956",
			"https://example.org/p.pdf",
		},
		{
			"bare venue fallback",
			`{"paperId":"b","title":"P","venue":"Workshop Proceedings","publicationVenue":null}`,
			"Workshop Proceedings",
			"",
			"",
		},
		{
			"empty publication venue name",
			`{"paperId":"c","title":"P","venue":"Fallback Venue",
			  "publicationVenue":{"name":"","issn":"0042-9686"}}`,
			"Fallback Venue",
			"00429686",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, `[%s]`, tt.paper)
			}))
			defer ts.Close()

			old := semanticBatchURL
			semanticBatchURL = ts.URL
			defer func() { semanticBatchURL = old }()

			c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
			papers, err := c.BatchDetail(context.Background(), []string{"x"})
			if err != nil {
				t.Fatalf("BatchDetail: %v", err)
			}
			if len(papers) != 1 {
				t.Fatalf("len(papers) = %d, want 1", len(papers))
			}
			if papers[0].Venue != tt.wantVenue {
				t.Errorf("Venue = %q, want %q", papers[0].Venue, tt.wantVenue)
			}
			if papers[0].ISSN != tt.wantISSN {
				t.Errorf("ISSN = %q, want %q", papers[0].ISSN, tt.wantISSN)
			}
			if papers[0].OpenAccessPDF != tt.wantPDF {
				t.Errorf("OpenAccessPDF = %q, want %q", papers[0].OpenAccessPDF, tt.wantPDF)
			}
		})
	}
}

// --- Fetch orchestration ---

func newSemanticTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	oldSearch, oldBatch := semanticSearchURL, semanticBatchURL
	semanticSearchURL = ts.URL + "/search"
	semanticBatchURL = ts.URL + "/batch"
	t.Cleanup(func() { semanticSearchURL, semanticBatchURL = oldSearch, oldBatch })

	return ts
}

func TestSemanticFetchStampsResults(t *testing.T) {
	newSemanticTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			fmt.Fprint(w, `{"total":2,"data":[{"paperId":"a"},{"paperId":"b"}]}`)
		case "/batch":
			fmt.Fprint(w, `[
				{"paperId":"a","title":"First","abstract":"text","citationCount":10},
				{"paperId":"b","title":"Second","abstract":"text","citationCount":20}
			]`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	papers, err := c.Fetch(context.Background(), []Query{{Section: "Symptoms", Text: "iron deficiency"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("len(papers) = %d, want 2", len(papers))
	}
	for _, p := range papers {
		if p.Section != "Symptoms" {
			t.Errorf("Section = %q, want Symptoms", p.Section)
		}
		if p.Query != "iron deficiency" {
			t.Errorf("Query = %q, want iron deficiency", p.Query)
		}
		if p.Source != "semantic_scholar" {
			t.Errorf("Source = %q, want semantic_scholar", p.Source)
		}
	}
}

func TestSemanticFetchSkipsFailedQueries(t *testing.T) {
	newSemanticTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("query") == "bad" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, `{"total":1,"data":[{"paperId":"a"}]}`)
		case "/batch":
			fmt.Fprint(w, `[{"paperId":"a","title":"Survivor","abstract":"text"}]`)
		}
	})

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	queries := []Query{
		{Section: "Overview", Text: "bad"},
		{Section: "Overview", Text: "good"},
	}
	papers, err := c.Fetch(context.Background(), queries)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(papers) != 1 || papers[0].Title != "Survivor" {
		t.Errorf("papers = %+v, want only the good query's paper", papers)
	}
}

func TestSemanticFetchEmptySearchSkipsBatch(t *testing.T) {
	batchCalls := 0
	newSemanticTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			fmt.Fprint(w, `{"total":0,"data":[]}`)
		case "/batch":
			batchCalls++
			fmt.Fprint(w, `[]`)
		}
	})

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	papers, err := c.Fetch(context.Background(), []Query{{Text: "nothing"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(papers) != 0 {
		t.Errorf("len(papers) = %d, want 0", len(papers))
	}
	if batchCalls != 0 {
		t.Errorf("batch called %d times for empty search, want 0", batchCalls)
	}
}

func TestSemanticFetchAppliesFilter(t *testing.T) {
	newSemanticTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			fmt.Fprint(w, `{"total":2,"data":[{"paperId":"a"},{"paperId":"b"}]}`)
		case "/batch":
			fmt.Fprint(w, `[
				{"paperId":"a","title":"Obscure","abstract":"text","citationCount":10},
				{"paperId":"b","title":"Landmark","abstract":"text","citationCount":500}
			]`)
		}
	})

	filter := NewFilter(1.0, 50, nil)
	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, filter, nil)
	papers, err := c.Fetch(context.Background(), []Query{{Text: "q"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(papers) != 1 || papers[0].Title != "Landmark" {
		t.Errorf("papers = %+v, want only the highly cited paper", papers)
	}
}

// --- Error cases ---

func TestSemanticSearchRetriesRateLimit(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"total":1,"data":[{"paperId":"a"}]}`)
	}))
	defer ts.Close()

	old := semanticSearchURL
	semanticSearchURL = ts.URL
	defer func() { semanticSearchURL = old }()

	fetchCfg := testFetchCfg()
	fetchCfg.MaxRetries = 3

	c := NewSemanticClient(testSearchCfg(), fetchCfg, nil, nil, nil)
	ids, err := c.Search(context.Background(), "test")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("ids = %v, want [a]", ids)
	}
}

func TestSemanticBatchMalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer ts.Close()

	old := semanticBatchURL
	semanticBatchURL = ts.URL
	defer func() { semanticBatchURL = old }()

	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	_, err := c.BatchDetail(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if !strings.Contains(err.Error(), "decoding") {
		t.Errorf("error = %q, want substring 'decoding'", err.Error())
	}
}

func TestSemanticClientName(t *testing.T) {
	c := NewSemanticClient(testSearchCfg(), testFetchCfg(), nil, nil, nil)
	if got := c.Name(); got != "semantic_scholar" {
		t.Errorf("Name() = %q, want semantic_scholar", got)
	}
}
