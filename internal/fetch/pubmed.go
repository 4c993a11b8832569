// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/pkg/types"
)

// PubMed E-utilities endpoints. Declared as vars so tests can
// substitute an httptest server.
var (
	pubmedSearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedFetchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// defaultPubMedRetMax caps esearch results per query. PubMed serves as
// a supplementary source, so the cap stays small.
const defaultPubMedRetMax = 3

// PubMedClient fetches papers from PubMed via the esearch + efetch
// protocol. PubMed reports no citation counts, so its results bypass
// the venue-quality filter.
type PubMedClient struct {
	client    *http.Client
	throttle  *httputil.Throttle
	policy    httputil.Policy
	apiKey    string
	userAgent string
	retMax    int
	logger    *zap.Logger
}

// NewPubMedClient returns a client configured from cfg. The throttle is
// shared with every other source; a nil throttle disables throttling.
func NewPubMedClient(apiKey string, fetchCfg types.FetchConfig, throttle *httputil.Throttle, logger *zap.Logger) *PubMedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubMedClient{
		client:    &http.Client{Timeout: fetchCfg.Timeout},
		throttle:  throttle,
		policy:    retryPolicy(fetchCfg),
		apiKey:    apiKey,
		userAgent: fetchCfg.UserAgent,
		retMax:    defaultPubMedRetMax,
		logger:    logger,
	}
}

// Name returns the source identifier.
func (c *PubMedClient) Name() string { return "pubmed" }

// Fetch runs every query through esearch and efetch, stamping the
// results with the originating section and query. A failed query logs
// and contributes nothing; only context cancellation aborts the loop.
func (c *PubMedClient) Fetch(ctx context.Context, queries []Query) ([]types.Paper, error) {
	var papers []types.Paper
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return papers, err
		}

		pmids, err := c.Search(ctx, q.Text)
		if err != nil {
			c.logger.Error("search failed, skipping query",
				zap.String("query", q.Text), zap.Error(err))
			continue
		}
		if len(pmids) == 0 {
			continue
		}

		details, err := c.FetchDetails(ctx, pmids)
		if err != nil {
			c.logger.Error("detail fetch failed, skipping query",
				zap.String("query", q.Text), zap.Error(err))
			continue
		}
		for _, p := range details {
			p.Section = q.Section
			p.Query = q.Text
			p.Source = c.Name()
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// Search issues one throttled esearch request and returns matching
// PubMed ids for the query.
func (c *PubMedClient) Search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(c.retMax)},
		"retmode": {"json"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	reqURL := pubmedSearchURL + "?" + params.Encode()

	var out pubmedSearchResponse
	err := httputil.Retry(ctx, c.policy, func(ctx context.Context) error {
		if err := c.throttle.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := httputil.CheckStatus(resp); err != nil {
			return err
		}

		out = pubmedSearchResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decoding esearch response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	return out.Result.IDList, nil
}

// FetchDetails issues one throttled efetch request for the given
// PubMed ids and parses the XML article set.
func (c *PubMedClient) FetchDetails(ctx context.Context, pmids []string) ([]types.Paper, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	reqURL := pubmedFetchURL + "?" + params.Encode()

	var set pubmedArticleSet
	err := httputil.Retry(ctx, c.policy, func(ctx context.Context) error {
		if err := c.throttle.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := httputil.CheckStatus(resp); err != nil {
			return err
		}

		set = pubmedArticleSet{}
		if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
			return fmt.Errorf("decoding efetch response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %d article details: %w", len(pmids), err)
	}

	papers := make([]types.Paper, 0, len(set.Articles))
	for _, a := range set.Articles {
		if a.PMID == "" {
			continue
		}
		papers = append(papers, a.toPaper())
	}
	return papers, nil
}

// PubMed wire structures.
type pubmedSearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID        string            `xml:"MedlineCitation>PMID"`
	Title       string            `xml:"MedlineCitation>Article>ArticleTitle"`
	Abstract    []string          `xml:"MedlineCitation>Article>Abstract>AbstractText"`
	Authors     []pubmedAuthor    `xml:"MedlineCitation>Article>AuthorList>Author"`
	Journal     string            `xml:"MedlineCitation>Article>Journal>Title"`
	ISSN        string            `xml:"MedlineCitation>Article>Journal>ISSN"`
	Year        string            `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate>Year"`
	MedlineDate string            `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate>MedlineDate"`
	IDs         []pubmedArticleID `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type pubmedArticleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

var medlineYearRe = regexp.MustCompile(`\d{4}`)

// toPaper normalizes the XML shape. Structured abstracts collapse to
// one string, authors keep only entries with both name parts, and the
// article URL is derived from the PMID.
func (a *pubmedArticle) toPaper() types.Paper {
	authors := make([]string, 0, len(a.Authors))
	for _, au := range a.Authors {
		if au.LastName != "" && au.ForeName != "" {
			authors = append(authors, au.LastName+" "+au.ForeName)
		}
	}

	doi := ""
	for _, id := range a.IDs {
		if id.Type == "doi" {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}

	return types.Paper{
		PaperID:     a.PMID,
		Title:       strings.TrimSpace(a.Title),
		Abstract:    strings.TrimSpace(strings.Join(a.Abstract, " ")),
		Authors:     authors,
		Year:        a.year(),
		Venue:       strings.TrimSpace(a.Journal),
		URL:         "https://pubmed.ncbi.nlm.nih.gov/" + a.PMID + "/",
		ExternalIDs: types.ExternalIDs{DOI: doi},
		ISSN:        normalizeISSN(a.ISSN),
	}
}

// year parses the Year element, falling back to the first four-digit
// run in a MedlineDate value such as "1998 Jan-Feb".
func (a *pubmedArticle) year() int {
	if y, err := strconv.Atoi(strings.TrimSpace(a.Year)); err == nil {
		return y
	}
	if m := medlineYearRe.FindString(a.MedlineDate); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}
