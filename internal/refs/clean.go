// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/internal/cite"
	"github.com/pdiddy/article-engine/pkg/types"
)

// CleanReport summarizes one consistency pass over an article.
type CleanReport struct {
	// Orphaned numbers were cited inline but never declared.
	Orphaned []int

	// Unused numbers were declared but never cited.
	Unused []int

	// Bad numbers belong to reference items missing required fields.
	Bad []int

	// Remap records the renumbering applied to surviving references.
	Remap map[int]int

	// Duplicates lists reference numbers still duplicated after
	// renumbering. Any entry here warrants upstream investigation.
	Duplicates []int
}

// Changed reports whether the pass pruned references or renumbered any
// survivor. Marker normalization (range expansion) is not tracked.
func (r CleanReport) Changed() bool {
	if len(r.Orphaned) > 0 || len(r.Unused) > 0 || len(r.Bad) > 0 {
		return true
	}
	for old, now := range r.Remap {
		if old != now {
			return true
		}
	}
	return false
}

// Cleaner restores the reference invariants on an assembled article:
// every inline marker resolves to a declared reference, every declared
// reference is cited at least once, no reference is missing required
// fields, and the numbers run 1..k without gaps. The references section
// itself is never scanned for inline citations, so its own numbering is
// never mistaken for markers.
type Cleaner struct {
	logger    *zap.Logger
	extractor *cite.Extractor
}

// NewCleaner returns a Cleaner. A nil logger disables logging.
func NewCleaner(logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{logger: logger, extractor: cite.NewExtractor(logger)}
}

// Clean runs the consistency pass on article in place and reports what
// changed. The pass is idempotent; the pipeline runs it after every
// step that merges new content, and always before persisting.
func (c *Cleaner) Clean(article *types.Article) CleanReport {
	cited := c.collectCited(article)
	declared, bad := collectDeclared(article)

	orphaned := difference(cited, declared)
	unused := difference(declared, cited)

	surviving := make(map[int]bool, len(declared))
	for n := range declared {
		if !unused[n] && !bad[n] {
			surviving[n] = true
		}
	}
	remap := make(map[int]int, len(surviving))
	for i, n := range cite.Sorted(surviving) {
		remap[n] = i + 1
	}

	c.rewriteMarkers(article, remap, union(orphaned, bad))
	c.rebuildReferences(article, remap, unused, bad)

	report := CleanReport{
		Orphaned:   cite.Sorted(orphaned),
		Unused:     cite.Sorted(unused),
		Bad:        cite.Sorted(bad),
		Remap:      remap,
		Duplicates: duplicateNumbers(article),
	}
	if len(report.Duplicates) > 0 {
		c.logger.Warn("duplicate reference numbers after renumbering",
			zap.Ints("numbers", report.Duplicates))
	}
	if report.Changed() {
		c.logger.Debug("consistency pass pruned references",
			zap.Ints("orphaned", report.Orphaned),
			zap.Ints("unused", report.Unused),
			zap.Ints("bad", report.Bad))
	}
	return report
}

// Reconcile merges the article's declared references into the store
// and renumbers the article to the store's assignments. References the
// store has seen before keep their original numbers, so repeated
// integration steps never shuffle established citations. The exported
// list replaces the article's references section, which is created
// when missing. Returns how many references were new to the store.
func (c *Cleaner) Reconcile(article *types.Article, store *Store) int {
	sec := article.ReferencesSection()
	if sec == nil {
		article.Sections = append(article.Sections, types.Section{Heading: types.HeadingReferences})
		sec = article.ReferencesSection()
	}

	before := store.Len()
	remap := make(map[int]int, len(sec.References))
	for _, item := range sec.References {
		remap[item.ReferenceNumber] = store.AddItem(item)
	}
	c.rewriteMarkers(article, remap, nil)
	sec.References = store.Export()

	added := store.Len() - before
	if added > 0 {
		c.logger.Debug("absorbed new references", zap.Int("added", added))
	}
	return added
}

// collectCited gathers every number cited by an inline marker in any
// section other than the references section.
func (c *Cleaner) collectCited(article *types.Article) map[int]bool {
	cited := make(map[int]bool)
	merge := func(text string) {
		for n := range c.extractor.Extract(text) {
			cited[n] = true
		}
	}
	for i := range article.Sections {
		sec := &article.Sections[i]
		if kind, _ := sec.Kind(); kind == types.ContentReferences {
			continue
		}
		merge(sec.Text)
		for _, item := range sec.Items {
			merge(item)
		}
		for _, faq := range sec.FAQs {
			merge(faq.Question)
			merge(faq.Answer)
		}
	}
	return cited
}

// collectDeclared gathers declared reference numbers and the subset
// whose items fail the well-formedness predicate. Declared includes
// every number regardless of well-formedness.
func collectDeclared(article *types.Article) (declared, bad map[int]bool) {
	declared = make(map[int]bool)
	bad = make(map[int]bool)
	sec := article.ReferencesSection()
	if sec == nil {
		return declared, bad
	}
	for _, item := range sec.References {
		declared[item.ReferenceNumber] = true
		if !item.Complete() {
			bad[item.ReferenceNumber] = true
		}
	}
	return declared, bad
}

// rewriteMarkers applies the drop set and remap to every inline marker
// outside the references section.
func (c *Cleaner) rewriteMarkers(article *types.Article, remap map[int]int, drop map[int]bool) {
	rewrite := func(text string) string {
		if text == "" {
			return text
		}
		return c.extractor.Rewrite(text, remap, drop)
	}
	for i := range article.Sections {
		sec := &article.Sections[i]
		if kind, _ := sec.Kind(); kind == types.ContentReferences {
			continue
		}
		sec.Text = rewrite(sec.Text)
		for j, item := range sec.Items {
			sec.Items[j] = rewrite(item)
		}
		for j, faq := range sec.FAQs {
			sec.FAQs[j].Question = rewrite(faq.Question)
			sec.FAQs[j].Answer = rewrite(faq.Answer)
		}
	}
}

// rebuildReferences prunes unused and bad items, renumbers survivors,
// and leaves the list sorted by the new numbers.
func (c *Cleaner) rebuildReferences(article *types.Article, remap map[int]int, unused, bad map[int]bool) {
	sec := article.ReferencesSection()
	if sec == nil {
		return
	}
	kept := make([]types.ReferenceItem, 0, len(sec.References))
	for _, item := range sec.References {
		if unused[item.ReferenceNumber] || bad[item.ReferenceNumber] {
			continue
		}
		if n, ok := remap[item.ReferenceNumber]; ok {
			item.ReferenceNumber = n
		}
		kept = append(kept, item)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].ReferenceNumber < kept[j].ReferenceNumber
	})
	sec.References = kept
}

// duplicateNumbers reports numbers borne by more than one reference
// item after renumbering.
func duplicateNumbers(article *types.Article) []int {
	sec := article.ReferencesSection()
	if sec == nil {
		return nil
	}
	counts := make(map[int]int)
	for _, item := range sec.References {
		counts[item.ReferenceNumber]++
	}
	dups := make(map[int]bool)
	for n, count := range counts {
		if count > 1 {
			dups[n] = true
		}
	}
	if len(dups) == 0 {
		return nil
	}
	return cite.Sorted(dups)
}

func difference(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool)
	for n := range a {
		if !b[n] {
			out[n] = true
		}
	}
	return out
}

func union(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool, len(a)+len(b))
	for n := range a {
		out[n] = true
	}
	for n := range b {
		out[n] = true
	}
	return out
}
