package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StableKey derives a deterministic deduplication key from a result record's
// best available unique field, checked in priority order: DOI, identifier,
// URL, title, content hash. The first non-empty field wins.
func StableKey(doi, id, url, title string, content []byte) string {
	if k := normalize(doi); k != "" {
		return "doi:" + k
	}
	if k := normalize(id); k != "" {
		return "id:" + k
	}
	if k := normalize(url); k != "" {
		return "url:" + k
	}
	if k := normalizeTitle(title); k != "" {
		return "title:" + k
	}
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return "hash:" + hex.EncodeToString(sum[:8])
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalizeTitle(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
