package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/article-engine/pkg/types"
)

// CleanJSON strips the markdown code fences models wrap around JSON
// payloads despite instructions. Any text outside the outermost fence
// pair is discarded; input without fences passes through trimmed.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	s = s[i+3:]
	s = strings.TrimPrefix(s, "json")
	if j := strings.LastIndex(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// ParseArticle decodes a model response into an article, stripping code
// fences first. A structural failure here (malformed JSON, an unknown
// heading, a content shape that does not match its heading) is fatal
// for the topic that produced the response.
func ParseArticle(raw string) (*types.Article, error) {
	var article types.Article
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &article); err != nil {
		return nil, fmt.Errorf("parsing article JSON: %w", err)
	}
	if err := ValidateArticle(&article); err != nil {
		return nil, err
	}
	return &article, nil
}

// ValidateArticle checks the structural invariants the section codec
// cannot: a non-empty title, at least one section, no heading used
// twice, and a References section to anchor citations. Heading
// vocabulary is rechecked so hand-built articles get the same
// guarantees as parsed ones.
func ValidateArticle(article *types.Article) error {
	if strings.TrimSpace(article.Title) == "" {
		return fmt.Errorf("article has no title")
	}
	if len(article.Sections) == 0 {
		return fmt.Errorf("article %q has no sections", article.Title)
	}

	seen := make(map[string]bool, len(article.Sections))
	for _, sec := range article.Sections {
		if _, ok := types.HeadingKind(sec.Heading); !ok {
			return fmt.Errorf("article %q: unknown section heading %q", article.Title, sec.Heading)
		}
		if seen[sec.Heading] {
			return fmt.Errorf("article %q: duplicate section %q", article.Title, sec.Heading)
		}
		seen[sec.Heading] = true
	}

	if article.ReferencesSection() == nil {
		return fmt.Errorf("article %q has no references section", article.Title)
	}
	return nil
}
