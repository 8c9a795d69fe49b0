package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/kolony/internal/a2a"
	"github.com/zhengjr9/kolony/internal/campaign"
	"github.com/zhengjr9/kolony/internal/config"
	"github.com/zhengjr9/kolony/internal/httputil"
	"github.com/zhengjr9/kolony/internal/kolony"
	"github.com/zhengjr9/kolony/internal/logger"
	"github.com/zhengjr9/kolony/internal/proxy"
	"github.com/zhengjr9/kolony/internal/session"
	"github.com/zhengjr9/kolony/internal/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	log, closeLog, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput)
	if err != nil {
		slog.Error("failed to open log output", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	slog.Info("starting kolony gateway",
		"listen", cfg.ListenAddr,
		"kolony_base_url", cfg.KolonyBaseURL,
		"a2a_enabled", cfg.A2AEnabled,
		"rate_limit_per_min", cfg.RateLimitPerMin,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.TraceExporter)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	// Always start the gateway.
	srv := proxy.New(cfg)
	proxyErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proxyErr <- err
		}
	}()

	// Optionally start the A2A server.
	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		transport := kolony.NewClient(cfg.KolonyBaseURL, cfg.RequestTimeout, cfg.UpstreamProxyURL)
		tokens := session.Chain(session.FromContext(), session.Static(cfg.AccessToken))
		campaignAgent, err := a2a.New(a2a.AgentConfig{
			Name:         cfg.AgentName,
			Description:  cfg.AgentDesc,
			Orchestrator: campaign.NewOrchestrator(transport, tokens),
		})
		if err != nil {
			slog.Error("failed to create A2A agent", "error", err)
			os.Exit(1)
		}

		slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)

		// Wrap the standard A2A app to inject an HTTP middleware that extracts
		// the caller's token and stores it in the request context before
		// the JSON-RPC handler sees the request.
		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &authMiddlewareApp{BasicApp: inner}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(campaignAgent),
			}); err != nil {
				a2aErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("gateway shutdown error", "error", err)
		}
	case err := <-proxyErr:
		slog.Error("gateway server error", "error", err)
		os.Exit(1)
	case err := <-a2aErr:
		slog.Error("A2A server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// authMiddlewareApp wraps a BasicApp and installs an HTTP middleware on the
// Gorilla mux router that extracts the caller's Kolony token from every
// incoming request and injects it into the request context via
// session.ContextWithToken, where the orchestrator's provider finds it.
type authMiddlewareApp struct {
	apps.BasicApp
}

// Run overrides the embedded Run so that apps.Run receives `w` as the app
// argument. Without this, the embedded Run calls apps.Run with the inner app,
// meaning apps.Run would invoke SetupRouters on the inner app and our
// middleware override would never be registered.
func (w *authMiddlewareApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *authMiddlewareApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	// Add the token middleware after all routes are registered.
	router.Use(tokenMiddleware)
	return nil
}

// tokenMiddleware is a Gorilla mux middleware that reads the caller's token
// (X-Kolony-Token or Authorization: Bearer) into the request context.
func tokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := httputil.Token(r); token != "" {
			r = r.WithContext(session.ContextWithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}
