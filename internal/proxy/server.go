package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zhengjr9/kolony/internal/adapter/anthropic"
	"github.com/zhengjr9/kolony/internal/adapter/gemini"
	"github.com/zhengjr9/kolony/internal/adapter/openai"
	"github.com/zhengjr9/kolony/internal/campaign"
	"github.com/zhengjr9/kolony/internal/chat"
	"github.com/zhengjr9/kolony/internal/config"
	"github.com/zhengjr9/kolony/internal/kolony"
	"github.com/zhengjr9/kolony/internal/session"
)

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config. Callers authenticate with
// their own Kolony token; the configured access token is the fallback.
func New(cfg *config.Config) *Server {
	transport := kolony.NewClient(cfg.KolonyBaseURL, cfg.RequestTimeout, cfg.UpstreamProxyURL)
	tokens := session.Chain(session.FromContext(), session.Static(cfg.AccessToken))

	chatClient := chat.NewClient(transport, tokens)
	orchestrator := campaign.NewOrchestrator(transport, tokens)

	oaHandler := openai.NewHandler(chatClient, cfg.RequestTimeout)
	anHandler := anthropic.NewHandler(chatClient, cfg.RequestTimeout)
	gmHandler := gemini.NewHandler(chatClient, cfg.RequestTimeout)
	cpHandler := &campaignHandler{orchestrator: orchestrator, timeout: cfg.RequestTimeout}

	limited := newRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst, cfg.TrustForwardedFor).middleware

	mux := http.NewServeMux()

	// OpenAI
	mux.Handle("POST /v1/chat/completions", limited(oaHandler))

	// Anthropic
	mux.Handle("POST /v1/messages", limited(anHandler))

	// Gemini: ServeMux wildcards cannot be mixed with literal suffixes in the same
	// segment (e.g. "{model}:generateContent" is invalid). Use a prefix catch-all
	// and dispatch to blocking vs streaming by path suffix inside the handler.
	mux.Handle("POST /v1beta/models/", limited(http.HandlerFunc(gmHandler.Dispatch)))

	// Campaign orchestration
	mux.Handle("POST /v1/campaigns", limited(cpHandler))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	var handler http.Handler = mux
	handler = credentialsMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
