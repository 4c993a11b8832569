// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Filter excludes low-quality candidates after fetch. It is a pure
// predicate over the paper record: a citation-count floor always
// applies, and once a journal ranking table is loaded the paper's venue
// must rank above the configured threshold.
type Filter struct {
	logger       *zap.Logger
	sjrThreshold float64
	minCitations int
	sjr          map[string]float64
}

// NewFilter returns a filter with no ranking table loaded. Until
// LoadSJRTable succeeds only the citation-count floor applies.
func NewFilter(sjrThreshold float64, minCitations int, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		logger:       logger,
		sjrThreshold: sjrThreshold,
		minCitations: minCitations,
		sjr:          make(map[string]float64),
	}
}

// LoadSJRTable loads a journal ranking CSV keyed by ISSN. The header
// must name an SJR column and one or more Issn columns; an ISSN cell
// may hold a comma-separated list and hyphenated forms. Rows with a
// missing or unparseable score are skipped.
func (f *Filter) LoadSJRTable(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening SJR table: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading SJR table header: %w", err)
	}
	sjrCol := -1
	var issnCols []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case strings.EqualFold(name, "SJR"):
			sjrCol = i
		case strings.HasPrefix(strings.ToLower(name), "issn"):
			issnCols = append(issnCols, i)
		}
	}
	if sjrCol < 0 || len(issnCols) == 0 {
		return fmt.Errorf("SJR table %s: header lacks SJR or Issn columns", path)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading SJR table: %w", err)
		}
		if sjrCol >= len(row) {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(row[sjrCol]), 64)
		if err != nil {
			continue
		}
		for _, col := range issnCols {
			if col >= len(row) {
				continue
			}
			for _, raw := range strings.Split(row[col], ",") {
				if issn := normalizeISSN(raw); issn != "" {
					f.sjr[issn] = score
				}
			}
		}
	}
	f.logger.Info("loaded journal ranking table",
		zap.String("path", path), zap.Int("journals", len(f.sjr)))
	return nil
}

// Active reports whether a ranking table has been loaded.
func (f *Filter) Active() bool { return len(f.sjr) > 0 }

// Keep reports whether the paper passes the filter. The venue check
// excludes papers whose ISSN is absent from the table.
func (f *Filter) Keep(p types.Paper) bool {
	if p.CitationCount <= f.minCitations {
		return false
	}
	if len(f.sjr) == 0 {
		return true
	}
	score, ok := f.sjr[p.ISSN]
	if !ok {
		return false
	}
	return score > f.sjrThreshold
}

// Apply returns the papers that pass the filter, preserving order.
func (f *Filter) Apply(papers []types.Paper) []types.Paper {
	kept := make([]types.Paper, 0, len(papers))
	for _, p := range papers {
		if f.Keep(p) {
			kept = append(kept, p)
		}
	}
	if dropped := len(papers) - len(kept); dropped > 0 {
		f.logger.Debug("filtered candidate papers",
			zap.Int("dropped", dropped), zap.Int("kept", len(kept)))
	}
	return kept
}
