package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zhengjr9/kolony/internal/adapter"
	"github.com/zhengjr9/kolony/internal/campaign"
	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/httputil"
	"github.com/zhengjr9/kolony/internal/sse"
)

// campaignHandler serves POST /v1/campaigns as an event stream of campaign
// envelopes: thoughts, then the result and [DONE], or a single error.
type campaignHandler struct {
	orchestrator *campaign.Orchestrator
	timeout      time.Duration
}

// campaignStream starts the response on the first envelope so that failures
// before it can still be reported with a status code.
type campaignStream struct {
	w       http.ResponseWriter
	sw      *sse.Writer
	started bool
}

func (s *campaignStream) send(env campaign.Envelope) error {
	if !s.started {
		httputil.SetSSEHeaders(s.w)
		s.started = true
	}
	return s.sw.WriteData(env)
}

func (h *campaignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if err := adapter.DecodeJSON(w, r, &req); err != nil {
		adapter.WriteUpstreamError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stream := &campaignStream{w: w, sw: sse.NewWriter(w)}
	result, err := h.orchestrator.Orchestrate(ctx, req, func(t campaign.Thought) {
		if err := stream.send(campaign.Envelope{Thought: &t}); err != nil {
			slog.Debug("dropping thought", "error", err)
		}
	})

	switch {
	case err == nil:
		if err := stream.send(campaign.Envelope{Result: result}); err != nil {
			adapter.LogStreamError(r, err)
			return
		}
		_ = stream.sw.WriteDone()
	case !stream.started:
		adapter.WriteUpstreamError(w, r, err)
	case apierrors.IsCancelled(err):
		adapter.LogStreamError(r, err)
	default:
		msg := err.Error()
		var se *apierrors.ServerError
		if errors.As(err, &se) {
			msg = se.Message
		}
		_ = stream.send(campaign.Envelope{Error: msg})
		adapter.LogStreamError(r, err)
	}
}
