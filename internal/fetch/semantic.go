// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Semantic Scholar endpoints. Declared as vars so tests can substitute
// an httptest server.
var (
	semanticSearchURL = "https://api.semanticscholar.org/graph/v1/paper/search"
	semanticBatchURL  = "https://api.semanticscholar.org/graph/v1/paper/batch"
)

// semanticBatchFields selects the detail fields requested from the
// batch endpoint.
const semanticBatchFields = "title,abstract,authors,citationCount,referenceCount," +
	"url,venue,publicationVenue,year,openAccessPdf,externalIds"

const defaultSearchLimit = 100

// SemanticClient fetches papers from Semantic Scholar using the
// two-phase search + batch-detail protocol. Every outbound request
// acquires a slot from the shared throttle; transient failures retry
// under the configured policy.
type SemanticClient struct {
	client   *http.Client
	throttle *httputil.Throttle
	policy   httputil.Policy
	apiKey   string
	userAgent string
	limit    int
	filter   *Filter
	logger   *zap.Logger
}

// NewSemanticClient returns a client configured from cfg. The throttle
// is shared with every other source talking to rate-limited APIs; a nil
// throttle disables throttling. A nil filter disables post-filtering.
func NewSemanticClient(cfg types.SearchConfig, fetchCfg types.FetchConfig, throttle *httputil.Throttle, filter *Filter, logger *zap.Logger) *SemanticClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &SemanticClient{
		client:    &http.Client{Timeout: fetchCfg.Timeout},
		throttle:  throttle,
		policy:    retryPolicy(fetchCfg),
		apiKey:    cfg.SemanticScholarAPIKey,
		userAgent: fetchCfg.UserAgent,
		limit:     limit,
		filter:    filter,
		logger:    logger,
	}
}

// Name returns the source identifier.
func (c *SemanticClient) Name() string { return "semantic_scholar" }

// Fetch runs every query through search and batch detail, stamping the
// results with the originating section and query. A failed query logs
// and contributes nothing; only context cancellation aborts the loop.
func (c *SemanticClient) Fetch(ctx context.Context, queries []Query) ([]types.Paper, error) {
	var papers []types.Paper
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return papers, err
		}

		ids, err := c.Search(ctx, q.Text)
		if err != nil {
			c.logger.Error("search failed, skipping query",
				zap.String("query", q.Text), zap.Error(err))
			continue
		}
		if len(ids) == 0 {
			continue
		}

		batch, err := c.BatchDetail(ctx, ids)
		if err != nil {
			c.logger.Error("batch detail failed, skipping query",
				zap.String("query", q.Text), zap.Error(err))
			continue
		}
		for _, p := range batch {
			p.Section = q.Section
			p.Query = q.Text
			p.Source = c.Name()
			papers = append(papers, p)
		}
	}
	if c.filter != nil {
		papers = c.filter.Apply(papers)
	}
	return papers, nil
}

// Search issues one throttled search request and returns candidate
// paper ids for the query.
func (c *SemanticClient) Search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"query": {query},
		"limit": {strconv.Itoa(c.limit)},
	}
	reqURL := semanticSearchURL + "?" + params.Encode()

	var out semanticSearchResponse
	err := httputil.Retry(ctx, c.policy, func(ctx context.Context) error {
		if err := c.throttle.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := httputil.CheckStatus(resp); err != nil {
			return err
		}

		out = semanticSearchResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decoding search response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	ids := make([]string, 0, len(out.Data))
	for _, p := range out.Data {
		if p.PaperID != "" {
			ids = append(ids, p.PaperID)
		}
	}
	return ids, nil
}

// BatchDetail issues one throttled POST for up to the endpoint's id
// limit at once. Null entries in the response (ids the source could not
// resolve) are dropped, not treated as an error.
func (c *SemanticClient) BatchDetail(ctx context.Context, ids []string) ([]types.Paper, error) {
	payload, err := json.Marshal(struct {
		IDs []string `json:"ids"`
	}{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}
	params := url.Values{"fields": {semanticBatchFields}}
	reqURL := semanticBatchURL + "?" + params.Encode()

	var raw []*semanticPaper
	err = httputil.Retry(ctx, c.policy, func(ctx context.Context) error {
		if err := c.throttle.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := httputil.CheckStatus(resp); err != nil {
			return err
		}

		raw = nil
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("decoding batch response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %d paper details: %w", len(ids), err)
	}

	papers := make([]types.Paper, 0, len(raw))
	for _, sp := range raw {
		if sp == nil {
			continue
		}
		papers = append(papers, sp.toPaper())
	}
	return papers, nil
}

func (c *SemanticClient) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// Semantic Scholar API JSON structures.
type semanticSearchResponse struct {
	Total int `json:"total"`
	Data  []struct {
		PaperID string `json:"paperId"`
	} `json:"data"`
}

type semanticPaper struct {
	PaperID          string            `json:"paperId"`
	Title            string            `json:"title"`
	Abstract         string            `json:"abstract"`
	Year             int               `json:"year"`
	Venue            string            `json:"venue"`
	URL              string            `json:"url"`
	CitationCount    int               `json:"citationCount"`
	Authors          []semanticAuthor  `json:"authors"`
	OpenAccessPDF    *semanticPDF      `json:"openAccessPdf"`
	PublicationVenue *semanticVenue    `json:"publicationVenue"`
	ExternalIDs      semanticExternals `json:"externalIds"`
}

type semanticAuthor struct {
	Name string `json:"name"`
}

type semanticPDF struct {
	URL string `json:"url"`
}

type semanticVenue struct {
	Name string `json:"name"`
	ISSN string `json:"issn"`
	URL  string `json:"url"`
}

type semanticExternals struct {
	DOI string `json:"DOI"`
}

// toPaper normalizes the wire shape: the publication venue name wins
// over the bare venue string, the ISSN loses its hyphens, and the open
// access PDF collapses to its URL.
func (p *semanticPaper) toPaper() types.Paper {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	venue := p.Venue
	issn := ""
	if p.PublicationVenue != nil {
		if p.PublicationVenue.Name != "" {
			venue = p.PublicationVenue.Name
		}
		issn = normalizeISSN(p.PublicationVenue.ISSN)
	}

	pdf := ""
	if p.OpenAccessPDF != nil {
		pdf = p.OpenAccessPDF.URL
	}

	return types.Paper{
		PaperID:       p.PaperID,
		Title:         p.Title,
		Abstract:      p.Abstract,
		Authors:       authors,
		Year:          p.Year,
		Venue:         venue,
		URL:           p.URL,
		OpenAccessPDF: pdf,
		ExternalIDs:   types.ExternalIDs{DOI: p.ExternalIDs.DOI},
		CitationCount: p.CitationCount,
		ISSN:          issn,
	}
}

// normalizeISSN strips hyphens and whitespace so ISSNs compare equal to
// the ranking table's keys.
func normalizeISSN(issn string) string {
	return strings.TrimSpace(strings.ReplaceAll(issn, "-", ""))
}
