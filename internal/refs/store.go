// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refs maintains the article reference list: a store that
// assigns stable sequential numbers to deduplicated references, and the
// consistency pass that reconciles inline citation markers with the
// declared list.
package refs

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/pkg/types"
)

// NotFound is returned by Resolve for references the store has never seen.
const NotFound = -1

var (
	// numberingRe matches a leading "[n] " numbering token. It is
	// stripped before comparison so renumbered copies of one reference
	// collapse to a single entry.
	numberingRe = regexp.MustCompile(`^\[\d+\]\s*`)

	// leadingBracketRe matches any leading bracket token; a reference
	// that still starts with one after stripping is malformed.
	leadingBracketRe = regexp.MustCompile(`^\[[^\]]*\]`)

	yearParenRe = regexp.MustCompile(`\((\d{4})\)`)
)

// entry pairs a canonical reference string with its structured item, if
// the reference arrived with fields already separated.
type entry struct {
	raw  string
	item *types.ReferenceItem
}

// Store assigns unique sequential numbers to canonicalized reference
// strings. Numbers start at 1 and grow monotonically for the lifetime
// of the store; re-adding a known reference returns its original
// number. A Store serves one article build and is not safe for
// concurrent use.
type Store struct {
	logger  *zap.Logger
	entries map[int]entry
	numbers map[string]int
	next    int
}

// NewStore returns an empty store. A nil logger disables logging.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:  logger,
		entries: make(map[int]entry),
		numbers: make(map[string]int),
		next:    1,
	}
}

// canonical strips any leading "[n]" numbering token from a raw
// reference string and trims surrounding whitespace. Equality of
// canonical strings is strict byte equality; near-duplicate detection
// is deliberately out of scope.
func canonical(raw string) string {
	return strings.TrimSpace(numberingRe.ReplaceAllString(strings.TrimSpace(raw), ""))
}

// Add canonicalizes raw and returns its assigned number. The second
// return is false for malformed strings: a leading bracket token that
// is not plain "[n]" numbering, or nothing left once the numbering is
// stripped. Malformed strings are logged and excluded from the store.
func (s *Store) Add(raw string) (int, bool) {
	cleaned := canonical(raw)
	if cleaned == "" || leadingBracketRe.MatchString(cleaned) {
		s.logger.Warn("skipping malformed reference string", zap.String("raw", raw))
		return 0, false
	}
	return s.assign(cleaned, nil), true
}

// AddAll adds every string in raws and returns how many received new
// numbers. Duplicates and malformed strings are not counted.
func (s *Store) AddAll(raws []string) int {
	added := 0
	for _, raw := range raws {
		before := s.next
		if _, ok := s.Add(raw); ok && s.next > before {
			added++
		}
	}
	return added
}

// AddItem adds a reference that already carries structured fields. Any
// incoming reference number is ignored; the store assigns its own.
func (s *Store) AddItem(item types.ReferenceItem) int {
	stored := item
	return s.assign(canonical(formatItem(item)), &stored)
}

// AddPaper formats a fetched paper into its citation string and adds
// it, keeping the structured fields for export.
func (s *Store) AddPaper(p types.Paper) int {
	citation := p.Citation
	if citation == "" {
		citation = p.FormatCitation()
	}
	item := p.ReferenceItem(0)
	return s.assign(canonical(citation), &item)
}

func (s *Store) assign(cleaned string, item *types.ReferenceItem) int {
	if n, ok := s.numbers[cleaned]; ok {
		return n
	}
	n := s.next
	s.next++
	if item != nil {
		item.ReferenceNumber = n
	}
	s.entries[n] = entry{raw: cleaned, item: item}
	s.numbers[cleaned] = n
	s.logger.Debug("assigned reference number",
		zap.Int("number", n),
		zap.String("reference", cleaned))
	return n
}

// Resolve returns the number assigned to raw, or NotFound.
func (s *Store) Resolve(raw string) int {
	if n, ok := s.numbers[canonical(raw)]; ok {
		return n
	}
	return NotFound
}

// Len returns the number of stored references.
func (s *Store) Len() int {
	return len(s.entries)
}

// Export returns every stored reference ordered by assigned number.
// References added as plain strings have their fields recovered
// heuristically from the canonical text. Callers needing citation-order
// numbering run the article through Cleaner afterwards.
func (s *Store) Export() []types.ReferenceItem {
	numbers := make([]int, 0, len(s.entries))
	for n := range s.entries {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	items := make([]types.ReferenceItem, 0, len(numbers))
	for _, n := range numbers {
		e := s.entries[n]
		if e.item != nil {
			items = append(items, *e.item)
			continue
		}
		items = append(items, parseReference(e.raw, n))
	}
	return items
}

// formatItem renders a structured item back into canonical text so
// string and structured adds of the same reference dedup together.
func formatItem(item types.ReferenceItem) string {
	return fmt.Sprintf("%s (%s). %s. %s. %s",
		item.Authors, item.Year, item.Title, item.JournalSource, item.URLDOI)
}

// parseReference recovers structured fields from a canonical string of
// the form "Authors (Year). Title. Journal. URL". Fields that cannot be
// located stay empty so the consistency pass can judge completeness.
func parseReference(raw string, number int) types.ReferenceItem {
	item := types.ReferenceItem{ReferenceNumber: number}

	loc := yearParenRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		item.Title = strings.TrimSpace(raw)
		return item
	}
	item.Year = raw[loc[2]:loc[3]]
	item.Authors = strings.TrimSpace(raw[:loc[0]])

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw[loc[1]:]), "."))
	rest = strings.TrimSuffix(rest, ".")
	if rest == "" {
		return item
	}

	parts := strings.Split(rest, ". ")
	last := parts[len(parts)-1]
	if strings.Contains(last, "://") || strings.HasPrefix(last, "doi") {
		item.URLDOI = last
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 1 {
		item.JournalSource = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	item.Title = strings.Join(parts, ". ")
	return item
}
