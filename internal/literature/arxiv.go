package literature

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/reliability"
)

// ArxivSource searches the arXiv Atom API.
type ArxivSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewArxivSource(baseURL string, rps float64) *ArxivSource {
	return &ArxivSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (s *ArxivSource) Name() string { return "arxiv" }

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
}

func (s *ArxivSource) Search(ctx context.Context, query string, limit int, onPaper func(Paper) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/api/query?search_query=all:%s&start=0&max_results=%d",
		s.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("arxiv request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return fmt.Errorf("arxiv transient status %d: %s", res.StatusCode, string(body))
		}
		return fmt.Errorf("arxiv status %d: %s", res.StatusCode, string(body))
	}

	var feed arxivFeed
	if err := xml.NewDecoder(res.Body).Decode(&feed); err != nil {
		return fmt.Errorf("decode arxiv feed: %w", err)
	}

	for _, entry := range feed.Entries {
		if err := onPaper(s.toPaper(entry)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ArxivSource) toPaper(entry arxivEntry) Paper {
	p := Paper{
		ID:       strings.TrimSpace(entry.ID),
		Title:    strings.Join(strings.Fields(entry.Title), " "),
		Abstract: strings.TrimSpace(entry.Summary),
		URL:      strings.TrimSpace(entry.ID),
		Source:   s.Name(),
	}
	for _, a := range entry.Authors {
		if a.Name != "" {
			p.Authors = append(p.Authors, a.Name)
		}
	}
	for _, l := range entry.Links {
		if l.Rel == "alternate" && l.Href != "" {
			p.URL = l.Href
		}
	}
	if len(entry.Published) >= 4 {
		if year, err := strconv.Atoi(entry.Published[:4]); err == nil {
			p.Year = year
		}
	}
	return p
}
