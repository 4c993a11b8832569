// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/article-engine/pkg/types"
)

// nonWordRe matches characters outside word characters and whitespace;
// they are dropped from topic names before use in filenames.
var nonWordRe = regexp.MustCompile(`[^\w\s]`)

// sanitizeTopic reduces a topic to a filesystem-safe slug: punctuation
// is removed and spaces become underscores.
func sanitizeTopic(topic string) string {
	cleaned := nonWordRe.ReplaceAllString(topic, "")
	return strings.ReplaceAll(cleaned, " ", "_")
}

// articleFilename names an article snapshot {topic}_{timestamp}.json so
// repeated runs never clobber earlier output.
func articleFilename(topic string, now time.Time) string {
	return fmt.Sprintf("%s_%s.json", sanitizeTopic(topic), now.Format("20060102_150405"))
}

// SaveArticle writes the article under dir, creating the directory if
// needed. The write goes through a temp file and rename so a reader
// never observes a partial article. Returns the path written.
func SaveArticle(article *types.Article, dir, topic string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling article: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, articleFilename(topic, now))
	tmp, err := os.CreateTemp(dir, ".article-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing article: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing article: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("saving article to %s: %w", path, err)
	}
	return path, nil
}
