package extraction

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/reliability"
)

// Request describes one document extraction job.
type Request struct {
	DocumentURL string   `json:"documentUrl,omitempty"`
	Text        string   `json:"text,omitempty"`
	Kinds       []string `json:"kinds,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
}

// Result is one streamed record from the extraction service. Type is one of
// progress, tables, entities, citations, error or done; Data carries the raw
// payload for that record.
type Result struct {
	Type    string          `json:"type"`
	Stage   string          `json:"stage,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ResultHandler receives records as they arrive.
type ResultHandler func(Result) error

// StatusError reports a non-2xx response from the extraction service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("extraction service status %d: %s", e.Code, e.Body)
}

// Recoverable reports whether the failure is transient and worth retrying.
func (e *StatusError) Recoverable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

// Client streams extraction results from the extraction service over NDJSON.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c.url != "" }

// Stream posts the job and forwards each record to onResult until the service
// closes the stream or sends a terminal record. The service's own done and
// error records are surfaced to the caller, not forwarded.
func (c *Client) Stream(ctx context.Context, req Request, onResult ResultHandler) error {
	if c.url == "" {
		return fmt.Errorf("extraction service not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("extraction request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return c.consume(res.Body, onResult)
}

func (c *Client) consume(body io.Reader, onResult ResultHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}

		var rec Result
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("decode extraction record: %w", err)
		}

		switch rec.Type {
		case "done":
			return nil
		case "error":
			if rec.Message == "" {
				rec.Message = "extraction failed"
			}
			return fmt.Errorf("extraction service: %s", rec.Message)
		case "":
			continue
		default:
			if err := onResult(rec); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}
