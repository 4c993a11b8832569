// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cite parses and rewrites bracketed citation markers in article
// text. A marker is a span like [3], [2,5], or [6-9]: integers separated
// by commas, with inclusive numeric ranges. Bracketed prose such as
// [Smith et al., 2020] is not a marker and is left alone.
package cite

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Citation regex patterns.
var (
	// markerRe matches any bracketed span without nested brackets.
	markerRe = regexp.MustCompile(`\[([^\[\]]*)\]`)

	// numericSpanRe validates a span interior as a citation token list:
	// integers, commas, and hyphens only.
	numericSpanRe = regexp.MustCompile(`^\d+([,-]\d+)*$`)

	// numericTokenRe matches a single integer token.
	numericTokenRe = regexp.MustCompile(`^\d+$`)

	// rangeTokenRe matches an inclusive range token like "23-25".
	rangeTokenRe = regexp.MustCompile(`^(\d+)-(\d+)$`)
)

// Extractor parses citation markers. Construct with NewExtractor; the
// logger surfaces malformed range tokens at warn level.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns an Extractor. A nil logger disables logging.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract returns the set of reference numbers cited in text. Only spans
// whose interior is entirely numeric count as citations; range tokens are
// expanded inclusively. Empty or citation-free text yields an empty set.
func (e *Extractor) Extract(text string) map[int]bool {
	cited := make(map[int]bool)
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		span := m[1]
		if !numericSpanRe.MatchString(span) {
			continue
		}
		for _, token := range strings.Split(span, ",") {
			for _, n := range e.expandToken(token) {
				cited[n] = true
			}
		}
	}
	return cited
}

// expandToken evaluates one comma-separated token: a plain integer or an
// inclusive a-b range. Malformed tokens (extra hyphens, reversed bounds)
// are skipped with a warning and contribute nothing.
func (e *Extractor) expandToken(token string) []int {
	if numericTokenRe.MatchString(token) {
		n, err := strconv.Atoi(token)
		if err != nil {
			e.logger.Warn("skipping unparseable citation token", zap.String("token", token))
			return nil
		}
		return []int{n}
	}

	m := rangeTokenRe.FindStringSubmatch(token)
	if m == nil {
		e.logger.Warn("skipping malformed citation range", zap.String("token", token))
		return nil
	}
	start, err1 := strconv.Atoi(m[1])
	end, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || start > end {
		e.logger.Warn("skipping malformed citation range", zap.String("token", token))
		return nil
	}

	nums := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		nums = append(nums, n)
	}
	return nums
}

// Rewrite applies a renumbering to every citation marker in text. Numeric
// tokens in drop are deleted; the rest are rewritten through remap, and
// tokens absent from remap pass through unchanged. Ranges are expanded
// first, so rewritten markers list each surviving number individually. A
// marker whose token list empties out is removed from the text entirely,
// never left as []. Non-numeric tokens are preserved verbatim and spans
// with no numeric tokens at all are untouched.
func (e *Extractor) Rewrite(text string, remap map[int]int, drop map[int]bool) string {
	return markerRe.ReplaceAllStringFunc(text, func(marker string) string {
		span := marker[1 : len(marker)-1]

		var kept []string
		numeric := false
		for _, token := range strings.Split(span, ",") {
			switch {
			case numericTokenRe.MatchString(token):
				numeric = true
				n, err := strconv.Atoi(token)
				if err != nil {
					kept = append(kept, token)
					continue
				}
				if drop[n] {
					continue
				}
				if to, ok := remap[n]; ok {
					kept = append(kept, strconv.Itoa(to))
				} else {
					kept = append(kept, token)
				}
			case rangeTokenRe.MatchString(token):
				numeric = true
				for _, n := range e.expandToken(token) {
					if drop[n] {
						continue
					}
					if to, ok := remap[n]; ok {
						kept = append(kept, strconv.Itoa(to))
					} else {
						kept = append(kept, strconv.Itoa(n))
					}
				}
			default:
				kept = append(kept, token)
			}
		}

		if !numeric {
			return marker
		}
		if len(kept) == 0 {
			return ""
		}
		return "[" + strings.Join(kept, ",") + "]"
	})
}

// Sorted returns the numbers of a citation set in ascending order.
func Sorted(set map[int]bool) []int {
	nums := make([]int, 0, len(set))
	for n := range set {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
