// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/article-engine/pkg/types"
)

const draftArticleJSON = `{
  "title": "Gout",
  "subtitle": "Crystal arthritis of the joints",
  "sections": [
    {"heading": "Overview", "content": "Gout causes sudden, painful joint flares [1]."},
    {"heading": "Key Facts", "content": ["It is the most common inflammatory arthritis in men"]},
    {"heading": "FAQs", "content": [{"question": "Is gout curable?", "answer": "It is controllable with urate-lowering treatment [1]."}]},
    {"heading": "References", "content": [{"reference_number": 1, "authors": "Dalbeth N, Gosling AL", "year": "2021", "title": "Gout", "journal_source": "Lancet", "url_doi": "https://doi.org/10.1016/S0140-6736(21)00569-9"}]}
  ]
}`

// newClaudeTestServer stands in for the Claude API and redirects the
// backend at it for the duration of the test. Backoff is shrunk so
// retry tests run fast.
func newClaudeTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)

	origURL := claudeAPIURL
	origBackoff := backoffBase
	claudeAPIURL = srv.URL
	backoffBase = time.Millisecond
	t.Cleanup(func() {
		claudeAPIURL = origURL
		backoffBase = origBackoff
		srv.Close()
	})
	return srv
}

// claudeReply wraps payload in a Claude Messages API response body.
func claudeReply(t *testing.T, payload string) string {
	t.Helper()
	body, err := json.Marshal(claudeResponse{
		Content: []claudeContent{{Type: "text", Text: payload}},
	})
	if err != nil {
		t.Fatalf("marshaling reply: %v", err)
	}
	return string(body)
}

func TestClaudeDraftRequestShape(t *testing.T) {
	var gotReq claudeRequest
	var gotHeaders http.Header
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		io.WriteString(w, claudeReply(t, draftArticleJSON))
	})

	backend := &ClaudeBackend{APIKey: "sk-test", Model: "claude-sonnet-4-5"}
	article, err := backend.Draft(context.Background(), "Gout")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}

	if gotHeaders.Get("x-api-key") != "sk-test" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotHeaders.Get("anthropic-version"))
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}

	if gotReq.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.MaxTokens != maxResponseTokens {
		t.Errorf("max_tokens = %d, want %d", gotReq.MaxTokens, maxResponseTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want one user message", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "Topic:\nGout") {
		t.Errorf("prompt does not name the topic:\n%s", gotReq.Messages[0].Content)
	}

	if article.Title != "Gout" {
		t.Errorf("title = %q", article.Title)
	}
	if len(article.Sections) != 4 {
		t.Errorf("parsed %d sections, want 4", len(article.Sections))
	}
	refs := article.ReferencesSection()
	if refs == nil || len(refs.References) != 1 {
		t.Fatalf("references section = %+v", refs)
	}
	if refs.References[0].JournalSource != "Lancet" {
		t.Errorf("journal = %q", refs.References[0].JournalSource)
	}
}

func TestClaudeDraftStripsCodeFences(t *testing.T) {
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, claudeReply(t, "Here is the article:\n```json\n"+draftArticleJSON+"\n```"))
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	article, err := backend.Draft(context.Background(), "Gout")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if article.Title != "Gout" {
		t.Errorf("title = %q", article.Title)
	}
}

func TestClaudeDraftRetriesMalformedResponse(t *testing.T) {
	attempts := 0
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			io.WriteString(w, claudeReply(t, "I could not produce JSON this time."))
			return
		}
		io.WriteString(w, claudeReply(t, draftArticleJSON))
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m", MaxRetries: 2}
	article, err := backend.Draft(context.Background(), "Gout")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if article.Title != "Gout" {
		t.Errorf("title = %q", article.Title)
	}
}

func TestClaudeDraftExhaustsRetries(t *testing.T) {
	attempts := 0
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		io.WriteString(w, claudeReply(t, "still not JSON"))
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m", MaxRetries: 1}
	_, err := backend.Draft(context.Background(), "Gout")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if !strings.Contains(err.Error(), "after 1 retries") {
		t.Errorf("error = %v, want retry exhaustion", err)
	}
	if !strings.Contains(err.Error(), `drafting "Gout"`) {
		t.Errorf("error = %v, want drafting context", err)
	}
}

func TestClaudeDraftSurfacesAPIError(t *testing.T) {
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m", MaxRetries: 1}
	_, err := backend.Draft(context.Background(), "Gout")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Claude API returned 503") {
		t.Errorf("error = %v, want status in message", err)
	}
}

func TestClaudeQueriesParsesArray(t *testing.T) {
	var prompt string
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		prompt = req.Messages[0].Content
		io.WriteString(w, claudeReply(t, `[
			{"section": "Overview", "query": "gout epidemiology prevalence", "rationale": "Supports the prevalence claim.", "excerpt": "most common inflammatory arthritis"}
		]`))
	})

	article, err := ParseArticle(draftArticleJSON)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	queries, err := backend.Queries(context.Background(), article)
	if err != nil {
		t.Fatalf("Queries: %v", err)
	}

	if !strings.Contains(prompt, `"title": "Gout"`) {
		t.Errorf("prompt does not embed the article:\n%s", prompt)
	}
	if len(queries) != 1 {
		t.Fatalf("got %d queries, want 1", len(queries))
	}
	if queries[0].Section != "Overview" || queries[0].Text != "gout epidemiology prevalence" {
		t.Errorf("query = %+v", queries[0])
	}
}

func TestClaudeIntegratePromptCarriesPapers(t *testing.T) {
	var prompt string
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		prompt = req.Messages[0].Content
		io.WriteString(w, claudeReply(t, draftArticleJSON))
	})

	article, err := ParseArticle(draftArticleJSON)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	papers := []types.Paper{{
		Title:    "Febuxostat versus allopurinol",
		Abstract: "A randomized trial of urate-lowering therapy.",
		Citation: `Becker MA. "Febuxostat versus allopurinol" (2005). Published in NEJM.`,
	}}

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	if _, err := backend.Integrate(context.Background(), "Gout", article, papers); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if !strings.Contains(prompt, "Topic: Gout") {
		t.Errorf("prompt does not name the topic:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Febuxostat versus allopurinol") {
		t.Errorf("prompt does not carry the paper:\n%s", prompt)
	}
	if !strings.Contains(prompt, `"title": "Gout"`) {
		t.Errorf("prompt does not embed the article:\n%s", prompt)
	}
}

func TestClaudeEditReturnsEditedArticle(t *testing.T) {
	edited := strings.Replace(draftArticleJSON,
		"Crystal arthritis of the joints", "A crystal arthritis", 1)
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, claudeReply(t, edited))
	})

	article, err := ParseArticle(draftArticleJSON)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	got, err := backend.Edit(context.Background(), "Gout", article)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.Subtitle != "A crystal arthritis" {
		t.Errorf("subtitle = %q", got.Subtitle)
	}
}

func TestClaudeNoTextContent(t *testing.T) {
	newClaudeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"content": [{"type": "tool_use", "text": ""}]}`)
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m", MaxRetries: 1}
	_, err := backend.Draft(context.Background(), "Gout")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no text content") {
		t.Errorf("error = %v", err)
	}
}
