package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/zhengjr9/kolony/internal/adapter"
	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/httputil"
	"github.com/zhengjr9/kolony/internal/sse"
)

// Handler implements the Gemini generateContent / streamGenerateContent endpoints.
type Handler struct {
	chat    adapter.Chatter
	timeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(chat adapter.Chatter, timeout time.Duration) *Handler {
	return &Handler{chat: chat, timeout: timeout}
}

// serveHTTP handles both generateContent and streamGenerateContent.
func (h *Handler) serveHTTP(w http.ResponseWriter, r *http.Request, model string, streaming bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req GenerateContentRequest
	if err := adapter.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	turns := ToTurns(&req)

	fragments, err := h.chat.Fragments(ctx, turns)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if streaming {
		httputil.SetSSEHeaders(w)
		if err := WriteStreamingResponse(sse.NewWriter(w), fragments); err != nil {
			adapter.LogStreamError(r, err)
		}
		return
	}

	reply, err := adapter.Collect(turns, fragments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(BlockingResponse(reply, model))
}

// Dispatch routes to blocking or streaming based on the URL path suffix.
// ServeMux wildcards cannot be mixed with a literal suffix in one segment,
// so the model name is parsed here.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1beta/models/")
	model, method, ok := strings.Cut(name, ":")
	if !ok || model == "" {
		http.NotFound(w, r)
		return
	}
	switch method {
	case "streamGenerateContent":
		h.serveHTTP(w, r, model, true)
	case "generateContent":
		h.serveHTTP(w, r, model, false)
	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apierrors.IsCancelled(err) {
		adapter.WriteUpstreamError(w, r, err)
		return
	}
	body := ErrorFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Error.Code)
	_ = json.NewEncoder(w).Encode(body)
}
