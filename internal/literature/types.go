package literature

import (
	"context"
	"encoding/json"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/recorder"
)

// Paper is a normalized bibliographic record. Source-specific fields are
// reduced to the common shape the stream forwards.
type Paper struct {
	ID       string   `json:"id,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	URL      string   `json:"url,omitempty"`
	Year     int      `json:"year,omitempty"`
	Source   string   `json:"source"`
}

// StableKey implements recorder.Keyed for de-duplication across sources.
func (p Paper) StableKey() string {
	content, _ := json.Marshal(p)
	return recorder.StableKey(p.DOI, p.ID, p.URL, p.Title, content)
}

// Source streams papers matching a query as they become available.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int, onPaper func(Paper) error) error
}
