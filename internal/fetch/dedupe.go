package fetch

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Fingerprint returns a hex digest of content, insensitive to case and
// whitespace runs. Records with equal fingerprints are duplicates no
// matter what their metadata says.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// DedupePapers drops every paper whose abstract fingerprint was already
// seen, keeping first occurrences in input order. Reapplying to the
// output is a no-op. Returns the survivors and the number dropped.
func DedupePapers(papers []types.Paper) ([]types.Paper, int) {
	seen := make(map[string]struct{}, len(papers))
	unique := make([]types.Paper, 0, len(papers))
	for _, p := range papers {
		fp := Fingerprint(p.Abstract)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		unique = append(unique, p)
	}
	return unique, len(papers) - len(unique)
}
