package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/collab"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/config"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/extraction"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/literature"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/observability"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/provider"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/ratelimit"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/reliability"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/session"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/stream"
)

const maxExtractTextChars = 512_000

type Server struct {
	cfg        config.Config
	providers  *provider.Registry
	literature *literature.Service
	extraction *extraction.Client
	sessions   *session.Manager
	limiter    ratelimit.Limiter
	sink       stream.Sink
	hub        *collab.Hub
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, providers *provider.Registry, lit *literature.Service, extract *extraction.Client, sessions *session.Manager, limiter ratelimit.Limiter, sink stream.Sink, hub *collab.Hub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		providers:  providers,
		literature: lit,
		extraction: extract,
		sessions:   sessions,
		limiter:    limiter,
		sink:       sink,
		hub:        hub,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat/stream", s.handleChatStream)
	r.Post("/v1/extract/stream", s.handleExtractStream)
	r.Get("/v1/literature/search/stream", s.handleLiteratureStream)
	r.Get("/v1/collab/ws", s.handleCollabWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": s.providers.Names(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if len(s.providers.Names()) == 0 {
		respondError(w, http.StatusServiceUnavailable, "no_providers", "no AI providers configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"active_streams": s.sessions.ActiveCount(),
	})
}

// authorize enforces the optional bearer token. Returns false after writing
// the 401 response.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.APIToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) != s.cfg.APIToken {
		respondError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
		return false
	}
	return true
}

type chatRequest struct {
	Message     string  `json:"message"`
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	UserID      string  `json:"userId,omitempty"`
	SessionID   string  `json:"sessionId,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var req chatRequest
	// Headroom over the message limit for JSON escaping and the other fields.
	if err := decodeJSON(w, r, &req, int64(s.cfg.MaxMessageChars)*4+4096); err != nil {
		status, code := decodeStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}
	if len(req.Message) > s.cfg.MaxMessageChars {
		respondError(w, http.StatusRequestEntityTooLarge, "message_too_large",
			"message exceeds "+strconv.Itoa(s.cfg.MaxMessageChars)+" characters")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	primary, err := s.providers.Resolve(req.Provider)
	if err != nil {
		// A name the client made up is client error; an empty registry is ours.
		if errors.Is(err, provider.ErrNoProviders) {
			respondError(w, http.StatusInternalServerError, "no_provider", err.Error())
		} else {
			respondError(w, http.StatusBadRequest, "unknown_provider", err.Error())
		}
		return
	}

	textReq := provider.TextRequest{
		Prompt:      req.Message,
		Provider:    req.Provider,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		UserID:      req.UserID,
	}

	stream.Serve(w, r, stream.Options{
		Endpoint:  "chat",
		SessionID: req.SessionID,
		InitPayload: map[string]any{
			"type":      "init",
			"provider":  primary.Name(),
			"model":     req.Model,
			"timestamp": time.Now().UnixMilli(),
		},
		Invoke:         s.chatAttempt(primary, textReq),
		Fallback:       s.chatFallback(textReq),
		Retryable:      func(err error) bool { return reliability.IsCompatibilityError(err.Error()) },
		FallbackNotice: "Retrying with automatic provider selection",
		DonePayload: func(sum stream.Summary) any {
			return map[string]any{
				"type":             "done",
				"totalTokens":      sum.Items,
				"processingTimeMs": sum.Processing.Milliseconds(),
				"timestamp":        time.Now().UnixMilli(),
			}
		},
		Heartbeat: s.cfg.HeartbeatInterval,
		Sink:      s.sink,
		Metrics:   s.metrics,
		Track: func(id string, h stream.Handle) func() {
			return s.sessions.Track(id, "chat", req.UserID, h)
		},
	})
}

func (s *Server) chatAttempt(inv provider.Invoker, req provider.TextRequest) stream.Attempt {
	return func(ctx context.Context, emit *stream.Emitter) error {
		err := inv.StreamText(ctx, req, func(token string) error {
			return emit.Item("token", map[string]any{
				"content":   token,
				"timestamp": time.Now().UnixMilli(),
			})
		})
		if err != nil {
			s.countProviderError(inv.Name(), err)
		}
		return err
	}
}

// chatFallback resolves the invoker lazily so the relaxed attempt picks up
// whatever provider is first in registration order.
func (s *Server) chatFallback(req provider.TextRequest) stream.Attempt {
	relaxed := req.Relaxed()
	return func(ctx context.Context, emit *stream.Emitter) error {
		inv, err := s.providers.Resolve("")
		if err != nil {
			return err
		}
		return s.chatAttempt(inv, relaxed)(ctx, emit)
	}
}

func (s *Server) countProviderError(name string, err error) {
	if s.metrics == nil {
		return
	}
	class := "terminal"
	if reliability.IsCompatibilityError(err.Error()) {
		class = "compatibility"
	}
	s.metrics.ProviderErrors.WithLabelValues(name, class).Inc()
}

type extractRequest struct {
	DocumentURL string   `json:"documentUrl,omitempty"`
	Text        string   `json:"text,omitempty"`
	Kinds       []string `json:"kinds,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
}

func (s *Server) handleExtractStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	if s.extraction == nil || !s.extraction.Configured() {
		respondError(w, http.StatusInternalServerError, "unavailable", "extraction service not configured")
		return
	}

	var req extractRequest
	if err := decodeJSON(w, r, &req, int64(maxExtractTextChars)*4+4096); err != nil {
		status, code := decodeStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	if strings.TrimSpace(req.DocumentURL) == "" && strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_document", "documentUrl or text is required")
		return
	}
	if len(req.Text) > maxExtractTextChars {
		respondError(w, http.StatusRequestEntityTooLarge, "text_too_large",
			"text exceeds "+strconv.Itoa(maxExtractTextChars)+" characters")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	job := extraction.Request{
		DocumentURL: req.DocumentURL,
		Text:        req.Text,
		Kinds:       req.Kinds,
		SessionID:   req.SessionID,
	}

	stream.Serve(w, r, stream.Options{
		Endpoint:  "extract",
		SessionID: req.SessionID,
		InitPayload: map[string]any{
			"type":        "init",
			"sessionId":   req.SessionID,
			"documentUrl": req.DocumentURL,
			"kinds":       req.Kinds,
			"timestamp":   time.Now().UnixMilli(),
		},
		Invoke: func(ctx context.Context, emit *stream.Emitter) error {
			return s.extraction.Stream(ctx, job, func(rec extraction.Result) error {
				if rec.Type == "progress" {
					return emit.Progress(map[string]any{
						"stage":   rec.Stage,
						"message": rec.Message,
					})
				}
				return emit.Item(rec.Type, rec)
			})
		},
		DonePayload: func(sum stream.Summary) any {
			return map[string]any{
				"type":             "done",
				"count":            sum.Items,
				"processingTimeMs": sum.Processing.Milliseconds(),
				"timestamp":        time.Now().UnixMilli(),
			}
		},
		Heartbeat: s.cfg.HeartbeatInterval,
		Sink:      s.sink,
		Metrics:   s.metrics,
		Track: func(id string, h stream.Handle) func() {
			return s.sessions.Track(id, "extract", req.UserID, h)
		},
	})
}

func (s *Server) handleLiteratureStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if len(query) < 3 {
		respondError(w, http.StatusBadRequest, "query_too_short", "query must be at least 3 characters")
		return
	}

	limit := s.cfg.DefaultPaperLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > s.cfg.MaxPaperLimit {
		limit = s.cfg.MaxPaperLimit
	}

	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = "anonymous"
	}
	sessionID := strings.TrimSpace(q.Get("session_id"))

	state := s.checkRateLimit(r.Context(), userID)
	if !state.Allowed {
		if s.metrics != nil {
			s.metrics.RateLimitRejected.Inc()
		}
		retryAfter := ratelimit.RetryAfterSeconds(state.ResetTime, time.Now())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		setRateLimitHeaders(w, state)
		respondError(w, http.StatusTooManyRequests, "rate_limited", "search rate limit exceeded")
		return
	}
	setRateLimitHeaders(w, state)

	stream.Serve(w, r, stream.Options{
		Endpoint:  "literature",
		SessionID: sessionID,
		InitPayload: map[string]any{
			"type":  "init",
			"query": query,
			"limit": limit,
			"rateLimit": map[string]any{
				"limit":     state.Limit,
				"remaining": state.Remaining,
				"resetTime": state.ResetTime.UnixMilli(),
			},
			"timestamp": time.Now().UnixMilli(),
		},
		Invoke: func(ctx context.Context, emit *stream.Emitter) error {
			return s.literature.StreamPapers(ctx, query, limit, func(p literature.Paper) error {
				return emit.Item("paper", p)
			})
		},
		DonePayload: func(sum stream.Summary) any {
			return map[string]any{
				"type":             "done",
				"count":            sum.Items,
				"processingTimeMs": sum.Processing.Milliseconds(),
				"timestamp":        time.Now().UnixMilli(),
			}
		},
		Heartbeat: s.cfg.HeartbeatInterval,
		Sink:      s.sink,
		Metrics:   s.metrics,
		Track: func(id string, h stream.Handle) func() {
			return s.sessions.Track(id, "literature", userID, h)
		},
	})
}

// checkRateLimit consults the persisted counter, failing open on lookup
// errors so a limiter outage never blocks searches.
func (s *Server) checkRateLimit(ctx context.Context, userID string) ratelimit.State {
	if s.limiter == nil {
		return ratelimit.State{Allowed: true, Limit: s.cfg.SearchRateLimit, Remaining: s.cfg.SearchRateLimit}
	}
	state, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		log.Printf("httpapi: rate limit lookup failed, allowing request: %v", err)
		return ratelimit.State{Allowed: true, Limit: s.cfg.SearchRateLimit, Remaining: s.cfg.SearchRateLimit}
	}
	return state
}

func setRateLimitHeaders(w http.ResponseWriter, state ratelimit.State) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(state.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(state.Remaining))
	if !state.ResetTime.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(state.ResetTime.Unix(), 10))
	}
}

func (s *Server) handleCollabWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	q := r.URL.Query()
	room := strings.TrimSpace(q.Get("room"))
	if room == "" {
		respondError(w, http.StatusBadRequest, "missing_room", "query parameter room is required")
		return
	}
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = uuid.NewString()
	}
	name := strings.TrimSpace(q.Get("name"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.hub.ServeConn(r.Context(), conn, room, userID, name)
}
