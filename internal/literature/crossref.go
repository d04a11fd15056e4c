package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/reliability"
)

// CrossrefSource searches the Crossref works API.
type CrossrefSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewCrossrefSource(baseURL string, rps float64) *CrossrefSource {
	return &CrossrefSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (s *CrossrefSource) Name() string { return "crossref" }

type crossrefResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	DOI      string   `json:"DOI"`
	Title    []string `json:"title"`
	URL      string   `json:"URL"`
	Abstract string   `json:"abstract"`
	Author   []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
}

func (s *CrossrefSource) Search(ctx context.Context, query string, limit int, onPaper func(Paper) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/works?query=%s&rows=%d", s.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("crossref request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return fmt.Errorf("crossref transient status %d: %s", res.StatusCode, string(body))
		}
		return fmt.Errorf("crossref status %d: %s", res.StatusCode, string(body))
	}

	var parsed crossrefResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode crossref response: %w", err)
	}

	for _, item := range parsed.Message.Items {
		if err := onPaper(s.toPaper(item)); err != nil {
			return err
		}
	}
	return nil
}

func (s *CrossrefSource) toPaper(item crossrefItem) Paper {
	p := Paper{
		DOI:      item.DOI,
		URL:      item.URL,
		Abstract: item.Abstract,
		Source:   s.Name(),
	}
	if len(item.Title) > 0 {
		p.Title = item.Title[0]
	}
	for _, a := range item.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if len(item.Issued.DateParts) > 0 && len(item.Issued.DateParts[0]) > 0 {
		p.Year = item.Issued.DateParts[0][0]
	}
	return p
}
