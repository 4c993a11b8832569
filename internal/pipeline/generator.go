// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"text/template"
	"time"

	"github.com/pdiddy/article-engine/internal/fetch"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Generator abstracts the generative model behind the pipeline's
// drafting, query, integration, and editing steps so tests can supply
// a mock.
type Generator interface {
	// Draft produces the initial article for a topic.
	Draft(ctx context.Context, topic string) (*types.Article, error)

	// Queries produces literature search queries for an article's claims.
	Queries(ctx context.Context, article *types.Article) ([]fetch.Query, error)

	// Integrate folds fetched papers into the article as cited references.
	Integrate(ctx context.Context, topic string, article *types.Article, papers []types.Paper) (*types.Article, error)

	// Edit performs the final editorial pass over the article.
	Edit(ctx context.Context, topic string, article *types.Article) (*types.Article, error)
}

// draftPromptTmpl asks the model for a complete article draft in the
// closed section vocabulary. The content shape rules mirror the Section
// codec, so a response that strays from them fails the parse and is
// regenerated.
var draftPromptTmpl = template.Must(template.New("draft").Parse(`You are a medical writer producing a patient knowledgebase article. Write a complete, factual draft about the topic below.

The article is a JSON object: {"title": ..., "subtitle": ..., "sections": [{"heading": ..., "content": ...}, ...]}

Include every section below, in this order. The content shape depends on the heading:
- "Overview", "Types", "Causes", "Diagnosis", "Specialist to Visit", "Treatment", "Living With", "Complications", "Alternative Therapies": content is a string of prose.
- "Key Facts", "Symptoms", "Risk Factors", "Prevention", "Home-Care": content is an array of strings.
- "FAQs": content is an array of {"question": ..., "answer": ...} objects.
- "References": content is an array of {"reference_number": <integer>, "authors": ..., "year": ..., "title": ..., "journal_source": ..., "url_doi": ...} objects.

Support claims with inline citation markers such as [1] or [2,3] that point at entries in the References section. Every reference must carry authors, a year, and a journal or source.

Respond with the JSON object only. Do not include any text outside the JSON object, and do not wrap it in code fences.

Topic:
{{.Topic}}
`))

// queriesPromptTmpl asks the model for search queries grounded in the
// draft's claims, one object per query.
var queriesPromptTmpl = template.Must(template.New("queries").Parse(`You are a medical research assistant. Read the draft article below and produce literature search queries that would let an editor verify or strengthen its claims.

For each query, identify:
- section: the heading of the article section the query supports
- query: a concise search string suitable for PubMed or Semantic Scholar
- rationale: one sentence on why this evidence is needed
- excerpt: the passage from the article the query should support

Produce at most one query per section and skip sections that need no support. Respond with a JSON array of query objects. Do not include any text outside the JSON array.

Example response:
[{"section": "Treatment", "query": "metformin first-line efficacy type 2 diabetes meta-analysis", "rationale": "The treatment section claims first-line efficacy.", "excerpt": "Metformin is usually the first medication prescribed."}]

Article:
{{.Article}}
`))

// integratePromptTmpl asks the model to weave fetched papers into the
// article as new cited references.
var integratePromptTmpl = template.Must(template.New("integrate").Parse(`You are a medical editor. Update the article below to incorporate the fetched papers as supporting evidence.

Rules:
- Add each relevant paper to the References section with the next unused reference_number, splitting its citation string into authors, year, title, journal_source, and url_doi.
- Cite each added reference inline with a bracketed marker such as [5] in the section its query targeted.
- Keep existing sections, headings, reference items, and reference numbers unchanged except where a citation marker is added.
- Do not invent papers beyond those provided, and skip papers that do not support the article.

Respond with the complete updated article as a JSON object in the same schema. Do not include any text outside the JSON object.

Topic: {{.Topic}}

Article:
{{.Article}}

Fetched papers:
{{.Papers}}
`))

// editPromptTmpl asks the model for the final editorial pass. The
// reference list is frozen at this point, so the prompt forbids
// touching it.
var editPromptTmpl = template.Must(template.New("edit").Parse(`You are a medical editor performing the final pass over a patient knowledgebase article.

Rules:
- Fix grammar, tighten wording, and keep terminology consistent across sections.
- Keep every section and heading exactly as given.
- Do not add, remove, or renumber references, and do not change inline citation markers.

Respond with the complete edited article as a JSON object in the same schema. Do not include any text outside the JSON object.

Topic: {{.Topic}}

Article:
{{.Article}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test
// substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// backoffBase controls the base duration for exponential backoff
// between generation attempts. Tests override this to avoid real
// sleeps.
var backoffBase = time.Second

const (
	// maxResponseTokens is the response budget for one model call; a
	// full article with its reference list fits inside it.
	maxResponseTokens = 8192

	// defaultGenerateRetries bounds generation attempts when the
	// backend is built with no explicit retry budget.
	defaultGenerateRetries = 3
)

// ClaudeBackend implements Generator against the Claude Messages API.
// Model output is nondeterministic, so every operation retries the
// whole generate-and-parse round trip, not just the HTTP call.
type ClaudeBackend struct {
	APIKey     string
	Model      string
	MaxRetries int
	Client     *http.Client
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Draft generates the initial article for a topic.
func (b *ClaudeBackend) Draft(ctx context.Context, topic string) (*types.Article, error) {
	var article types.Article
	err := b.generateInto(ctx, draftPromptTmpl, struct{ Topic string }{Topic: topic}, &article)
	if err != nil {
		return nil, fmt.Errorf("drafting %q: %w", topic, err)
	}
	return &article, nil
}

// Queries generates search queries for the article's claims.
func (b *ClaudeBackend) Queries(ctx context.Context, article *types.Article) ([]fetch.Query, error) {
	doc, err := marshalArticle(article)
	if err != nil {
		return nil, err
	}
	var queries []fetch.Query
	err = b.generateInto(ctx, queriesPromptTmpl, struct{ Article string }{Article: doc}, &queries)
	if err != nil {
		return nil, fmt.Errorf("generating search queries: %w", err)
	}
	return queries, nil
}

// Integrate folds fetched papers into the article as cited references.
func (b *ClaudeBackend) Integrate(ctx context.Context, topic string, article *types.Article, papers []types.Paper) (*types.Article, error) {
	doc, err := marshalArticle(article)
	if err != nil {
		return nil, err
	}
	paperDoc, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling papers: %w", err)
	}

	var updated types.Article
	err = b.generateInto(ctx, integratePromptTmpl, struct {
		Topic   string
		Article string
		Papers  string
	}{Topic: topic, Article: doc, Papers: string(paperDoc)}, &updated)
	if err != nil {
		return nil, fmt.Errorf("integrating papers for %q: %w", topic, err)
	}
	return &updated, nil
}

// Edit performs the final editorial pass over the article.
func (b *ClaudeBackend) Edit(ctx context.Context, topic string, article *types.Article) (*types.Article, error) {
	doc, err := marshalArticle(article)
	if err != nil {
		return nil, err
	}
	var edited types.Article
	err = b.generateInto(ctx, editPromptTmpl, struct {
		Topic   string
		Article string
	}{Topic: topic, Article: doc}, &edited)
	if err != nil {
		return nil, fmt.Errorf("editing %q: %w", topic, err)
	}
	return &edited, nil
}

// generateInto renders the prompt, calls the model, and parses the
// cleaned response into out. A parse failure counts like an API
// failure and retries the whole generation with exponential backoff.
func (b *ClaudeBackend) generateInto(ctx context.Context, tmpl *template.Template, data any, out any) error {
	prompt, err := renderPrompt(tmpl, data)
	if err != nil {
		return fmt.Errorf("rendering prompt: %w", err)
	}

	maxRetries := b.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultGenerateRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := b.complete(ctx, prompt)
		if err == nil {
			// A failed parse can leave partial fields in out; reset it
			// before every attempt.
			dest := reflect.ValueOf(out).Elem()
			dest.Set(reflect.Zero(dest.Type()))
			if err = json.Unmarshal([]byte(CleanJSON(text)), out); err == nil {
				return nil
			}
			err = fmt.Errorf("parsing model response: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// complete performs a single Claude API call and returns the first text
// block of the response.
func (b *ClaudeBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := claudeRequest{
		Model:     b.Model,
		MaxTokens: maxResponseTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	if len(cResp.Content) == 0 {
		return "", fmt.Errorf("Claude API returned empty content")
	}
	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}

// renderPrompt executes a prompt template with the given data.
func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// marshalArticle renders an article as indented JSON for prompt
// embedding.
func marshalArticle(article *types.Article) (string, error) {
	doc, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling article: %w", err)
	}
	return string(doc), nil
}
