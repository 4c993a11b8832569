// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves candidate reference papers from bibliographic
// APIs. Sources share one request throttle so topic-level concurrency
// never exceeds the per-source rate floor; failures degrade per query
// to "no candidates" rather than aborting a pipeline run.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/pkg/types"
)

// retryPolicy derives a source's retry policy from the fetch
// configuration.
func retryPolicy(cfg types.FetchConfig) httputil.Policy {
	return httputil.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelayDuration(),
		MaxDelay:   cfg.MaxDelayDuration(),
	}
}

// Query is one search request produced for an article section.
type Query struct {
	// Section is the article section the query serves.
	Section string `json:"section"`

	// Text is the search query text.
	Text string `json:"query"`

	// Rationale explains why the query was generated (optional).
	Rationale string `json:"rationale,omitempty"`

	// Excerpt is the passage the query should support (optional).
	Excerpt string `json:"excerpt,omitempty"`
}

// Source fetches candidate papers from one bibliographic API. A failed
// query contributes no papers and is logged, never surfaced as an
// error; implementations return an error only for whole-source failures
// such as context cancellation. Papers come back stamped with the
// section and query that produced them.
type Source interface {
	Name() string
	Fetch(ctx context.Context, queries []Query) ([]types.Paper, error)
}

// Gather fans the queries out to every source concurrently and merges
// the results. A failed source keeps its partial results; the error is
// logged and returned as a summary line.
func Gather(ctx context.Context, sources []Source, queries []Query, logger *zap.Logger) ([]types.Paper, []string) {
	if logger == nil {
		logger = zap.NewNop()
	}

	type sourceResult struct {
		papers []types.Paper
		err    error
		name   string
	}

	ch := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			papers, err := src.Fetch(ctx, queries)
			ch <- sourceResult{papers: papers, err: err, name: src.Name()}
		}(src)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	var all []types.Paper
	var failures []string
	for sr := range ch {
		if sr.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sr.name, sr.err))
			logger.Warn("fetch source failed",
				zap.String("source", sr.name),
				zap.Error(sr.err))
		}
		all = append(all, sr.papers...)
	}
	return all, failures
}

// FormatResults drops papers without an abstract and fills in the
// pre-formatted citation string for the rest.
func FormatResults(papers []types.Paper, logger *zap.Logger) []types.Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]types.Paper, 0, len(papers))
	for _, p := range papers {
		if strings.TrimSpace(p.Abstract) == "" {
			logger.Debug("skipping paper without abstract", zap.String("title", p.Title))
			continue
		}
		p.Citation = p.FormatCitation()
		kept = append(kept, p)
	}
	return kept
}

// SelectTop keeps at most maxPerQuery papers for each query, preferring
// higher citation counts. Query groups keep their first-seen order.
func SelectTop(papers []types.Paper, maxPerQuery int) []types.Paper {
	if maxPerQuery <= 0 {
		return papers
	}

	byQuery := make(map[string][]types.Paper)
	var order []string
	for _, p := range papers {
		if _, ok := byQuery[p.Query]; !ok {
			order = append(order, p.Query)
		}
		byQuery[p.Query] = append(byQuery[p.Query], p)
	}

	var selected []types.Paper
	for _, q := range order {
		group := byQuery[q]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CitationCount > group[j].CitationCount
		})
		if len(group) > maxPerQuery {
			group = group[:maxPerQuery]
		}
		selected = append(selected, group...)
	}
	return selected
}

// FormatTable writes papers as a human-readable table to w.
func FormatTable(papers []types.Paper, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-56s  %-22s  %-4s  %-6s  %s\n",
		"Rank", "Title", "Authors", "Year", "Cites", "Venue")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, p := range papers {
		title := truncate(p.Title, 56)
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(w, "%-4d  %-56s  %-22s  %-4s  %-6d  %s\n",
			i+1, title, formatAuthors(p.Authors), year, p.CitationCount, p.Venue)
	}
	fmt.Fprintf(w, "\n%d papers\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.Paper, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 22)
	default:
		return truncate(authors[0], 16) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
