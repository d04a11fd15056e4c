package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/collab"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/config"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/extraction"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/httpapi"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/literature"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/observability"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/provider"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/ratelimit"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/recorder"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := recorder.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("recorder store init failed: %v", err)
	}
	defer store.Close()
	sink := recorder.NewBestEffort(store, metrics)

	limiter, err := ratelimit.NewLimiter(ctx, cfg.DatabaseURL, cfg.SearchRateLimit, cfg.SearchRateWindow)
	if err != nil {
		log.Fatalf("rate limiter init failed: %v", err)
	}
	defer limiter.Close()

	registry := buildProviders(cfg)
	if len(registry.Names()) == 0 {
		log.Fatalf("no AI providers configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY, or AI_PROVIDER=mock)")
	}
	log.Printf("AI providers: %s", strings.Join(registry.Names(), ", "))

	lit := literature.NewService(
		literature.NewCrossrefSource(cfg.CrossrefBaseURL, cfg.SourceRPS),
		literature.NewArxivSource(cfg.ArxivBaseURL, cfg.SourceRPS),
	)

	var extract *extraction.Client
	if cfg.ExtractionURL != "" {
		extract = extraction.NewClient(cfg.ExtractionURL, cfg.ExtractionTimeout)
		log.Printf("extraction pipeline: %s", cfg.ExtractionURL)
	} else {
		log.Printf("extraction pipeline not configured, /v1/extract/stream disabled")
	}

	sessions := session.NewManager(cfg.StreamIdleTimeout)
	sessions.SetExpireHook(func(sess session.Session) {
		log.Printf("stream %s on %s expired after idle timeout", sess.ID, sess.Endpoint)
	})

	hub := collab.NewHub(metrics)

	api := httpapi.New(cfg, registry, lit, extract, sessions, limiter, sink, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// Let in-flight best-effort writes land before the store closes.
	sink.Flush()
	log.Printf("shutdown complete")
}

func buildProviders(cfg config.Config) *provider.Registry {
	registry := provider.NewRegistry()

	mode := strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	if mode == "" {
		mode = "auto"
	}

	tryOpenAI := func() bool {
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return false
		}
		registry.Register(provider.NewOpenAIInvoker(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel))
		log.Printf("chat provider: openai (%s)", cfg.OpenAIModel)
		return true
	}
	tryAnthropic := func() bool {
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return false
		}
		registry.Register(provider.NewAnthropicInvoker(cfg.AnthropicAPIKey, cfg.AnthropicModel))
		log.Printf("chat provider: anthropic (%s)", cfg.AnthropicModel)
		return true
	}

	switch mode {
	case "openai":
		if !tryOpenAI() {
			log.Fatalf("AI_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
	case "anthropic":
		if !tryAnthropic() {
			log.Fatalf("AI_PROVIDER=anthropic but ANTHROPIC_API_KEY is not set")
		}
	case "mock":
		registry.Register(provider.NewMockInvoker())
		log.Printf("chat provider: mock")
	case "auto":
		tryOpenAI()
		tryAnthropic()
		if len(registry.Names()) == 0 {
			registry.Register(provider.NewMockInvoker())
			log.Printf("chat provider: mock (no API keys configured)")
		}
	default:
		log.Fatalf("invalid AI_PROVIDER: %q (expected auto|openai|anthropic|mock)", cfg.AIProvider)
	}

	return registry
}
