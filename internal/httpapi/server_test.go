package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/collab"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/config"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/extraction"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/literature"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/provider"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/ratelimit"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/session"
)

type namedInvoker struct {
	name   string
	tokens []string
	err    error
}

func (n *namedInvoker) Name() string { return n.name }

func (n *namedInvoker) StreamText(ctx context.Context, req provider.TextRequest, onToken provider.TokenHandler) error {
	for _, tok := range n.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return n.err
}

type paperSource struct {
	papers []literature.Paper
}

func (p *paperSource) Name() string { return "test" }

func (p *paperSource) Search(ctx context.Context, query string, limit int, onPaper func(literature.Paper) error) error {
	for _, paper := range p.papers {
		if err := onPaper(paper); err != nil {
			return err
		}
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		MaxMessageChars:   1000,
		DefaultPaperLimit: 20,
		MaxPaperLimit:     50,
		HeartbeatInterval: time.Minute,
		SearchRateLimit:   30,
		SearchRateWindow:  time.Hour,
		AllowAnyOrigin:    true,
	}
}

type serverOpts struct {
	cfg        config.Config
	registry   *provider.Registry
	literature *literature.Service
	extraction *extraction.Client
	limiter    ratelimit.Limiter
}

func newTestServer(opts serverOpts) *Server {
	if opts.registry == nil {
		opts.registry = provider.NewRegistry()
		opts.registry.Register(provider.NewMockInvoker())
	}
	if opts.literature == nil {
		opts.literature = literature.NewService(&paperSource{})
	}
	return New(
		opts.cfg,
		opts.registry,
		opts.literature,
		opts.extraction,
		session.NewManager(time.Hour),
		opts.limiter,
		nil,
		collab.NewHub(nil),
		nil,
	)
}

type frame struct {
	event string
	data  map[string]any
}

func parseFrames(t *testing.T, body string) []frame {
	t.Helper()
	var frames []frame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var f frame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f.data); err != nil {
					t.Fatalf("bad frame data %q: %v", line, err)
				}
			}
		}
		frames = append(frames, f)
	}
	return frames
}

func TestChatStreamSuccess(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&provider.MockInvoker{Tokens: []string{"Hello", " ", "world"}})
	srv := newTestServer(serverOpts{cfg: testConfig(), registry: reg})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(`{"message":"Hello"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want init + 3 tokens + done: %+v", len(frames), frames)
	}
	if frames[0].event != "init" {
		t.Errorf("first frame = %q, want init", frames[0].event)
	}
	for i := 1; i <= 3; i++ {
		if frames[i].event != "token" {
			t.Errorf("frame %d = %q, want token", i, frames[i].event)
		}
	}
	last := frames[4]
	if last.event != "done" {
		t.Fatalf("last frame = %q, want done", last.event)
	}
	if got := last.data["totalTokens"].(float64); got != 3 {
		t.Errorf("totalTokens = %v, want 3", got)
	}
}

func TestChatStreamFallbackRecovers(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&namedInvoker{name: "good", tokens: []string{"recovered"}})
	reg.Register(&namedInvoker{name: "bad", err: errors.New("400 Bad Request: model not found")})
	srv := newTestServer(serverOpts{cfg: testConfig(), registry: reg})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream",
		strings.NewReader(`{"message":"Hello","provider":"bad"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	frames := parseFrames(t, rec.Body.String())
	var sawFallback, sawToken, sawDone bool
	for _, f := range frames {
		switch f.event {
		case "progress":
			if msg, _ := f.data["message"].(string); strings.Contains(msg, "provider") {
				sawFallback = true
			}
		case "token":
			sawToken = true
		case "done":
			sawDone = true
		case "error":
			t.Errorf("unexpected error frame: %+v", f.data)
		}
	}
	if !sawFallback || !sawToken || !sawDone {
		t.Errorf("fallback=%v token=%v done=%v, frames %+v", sawFallback, sawToken, sawDone, frames)
	}
}

func TestChatStreamAllProvidersFail(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&namedInvoker{name: "bad", err: errors.New("model unsupported")})
	srv := newTestServer(serverOpts{cfg: testConfig(), registry: reg})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(`{"message":"Hello"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	frames := parseFrames(t, rec.Body.String())
	last := frames[len(frames)-1]
	if last.event != "error" {
		t.Fatalf("last frame = %q, want error: %+v", last.event, frames)
	}
	msg, _ := last.data["error"].(string)
	if !strings.HasPrefix(msg, "All providers failed:") {
		t.Errorf("error = %q, want All providers failed prefix", msg)
	}
}

func TestChatStreamValidation(t *testing.T) {
	srv := newTestServer(serverOpts{cfg: testConfig()})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing message", `{}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"oversized", fmt.Sprintf(`{"message":%q}`, strings.Repeat("x", 1001)), http.StatusRequestEntityTooLarge},
		// Far over the body cap: rejected by the reader, not the length check.
		{"oversized raw body", fmt.Sprintf(`{"message":%q}`, strings.Repeat("x", 50_000)), http.StatusRequestEntityTooLarge},
		{"unknown provider", `{"message":"Hello","provider":"nope"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("validation errors must not open a stream, Content-Type = %q", ct)
			}
		})
	}
}

func TestBearerTokenAuth(t *testing.T) {
	cfg := testConfig()
	cfg.APIToken = "secret"
	srv := newTestServer(serverOpts{cfg: cfg})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(`{"message":"Hello"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(`{"message":"Hello"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", rec.Code)
	}
}

func TestLiteratureQueryTooShort(t *testing.T) {
	srv := newTestServer(serverOpts{cfg: testConfig()})

	req := httptest.NewRequest(http.MethodGet, "/v1/literature/search/stream?query=ai", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("rejection must precede the stream, Content-Type = %q", ct)
	}
}

func TestLiteratureStreamSuccess(t *testing.T) {
	lit := literature.NewService(&paperSource{papers: []literature.Paper{
		{DOI: "10.1000/1", Title: "First"},
		{DOI: "10.1000/2", Title: "Second"},
	}})
	srv := newTestServer(serverOpts{cfg: testConfig(), literature: lit})

	req := httptest.NewRequest(http.MethodGet, "/v1/literature/search/stream?query=transformers", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	frames := parseFrames(t, rec.Body.String())
	if frames[0].event != "init" {
		t.Fatalf("first frame = %q", frames[0].event)
	}
	if rl, ok := frames[0].data["rateLimit"].(map[string]any); !ok || rl["limit"] == nil {
		t.Errorf("init frame missing rateLimit block: %+v", frames[0].data)
	}
	papers := 0
	for _, f := range frames {
		if f.event == "paper" {
			papers++
		}
	}
	if papers != 2 {
		t.Errorf("paper frames = %d, want 2", papers)
	}
	last := frames[len(frames)-1]
	if last.event != "done" || last.data["count"].(float64) != 2 {
		t.Errorf("terminal frame = %+v", last)
	}
}

func TestLiteratureRateLimited(t *testing.T) {
	limiter := ratelimit.NewInMemoryLimiter(1, time.Hour)
	lit := literature.NewService(&paperSource{papers: []literature.Paper{{Title: "Only"}}})
	srv := newTestServer(serverOpts{cfg: testConfig(), literature: lit, limiter: limiter})

	first := httptest.NewRequest(http.MethodGet, "/v1/literature/search/stream?query=transformers&user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/v1/literature/search/stream?query=transformers&user_id=u1", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want integer >= 1", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("X-RateLimit-Limit = %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestExtractStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"progress","stage":"parsing","message":"reading"}`)
		fmt.Fprintln(w, `{"type":"tables","data":[{"rows":2}]}`)
		fmt.Fprintln(w, `{"type":"citations","data":[{"doi":"10.1000/1"}]}`)
		fmt.Fprintln(w, `{"type":"done"}`)
	}))
	defer ts.Close()

	srv := newTestServer(serverOpts{
		cfg:        testConfig(),
		extraction: extraction.NewClient(ts.URL, 5*time.Second),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/extract/stream",
		strings.NewReader(`{"text":"paper body","kinds":["tables","citations"]}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	frames := parseFrames(t, rec.Body.String())
	var events []string
	for _, f := range frames {
		events = append(events, f.event)
	}
	want := []string{"init", "progress", "tables", "citations", "done"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
	last := frames[len(frames)-1]
	if last.data["count"].(float64) != 2 {
		t.Errorf("done count = %v, want 2", last.data["count"])
	}
}

func TestExtractStreamValidation(t *testing.T) {
	srv := newTestServer(serverOpts{
		cfg:        testConfig(),
		extraction: extraction.NewClient("http://localhost:0/unused", time.Second),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/extract/stream", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(serverOpts{cfg: testConfig()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	empty := newTestServer(serverOpts{cfg: testConfig(), registry: provider.NewRegistry()})
	rec = httptest.NewRecorder()
	empty.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with no providers = %d, want 503", rec.Code)
	}
}
