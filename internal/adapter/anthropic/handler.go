package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhengjr9/kolony/internal/adapter"
	"github.com/zhengjr9/kolony/internal/httputil"
	"github.com/zhengjr9/kolony/internal/sse"
)

// Handler implements the Anthropic Messages endpoint.
type Handler struct {
	chat    adapter.Chatter
	timeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(chat adapter.Chatter, timeout time.Duration) *Handler {
	return &Handler{chat: chat, timeout: timeout}
}

// ServeHTTP handles POST /v1/messages.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req MessagesRequest
	if err := adapter.DecodeJSON(w, r, &req); err != nil {
		adapter.WriteUpstreamError(w, r, err)
		return
	}
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	turns := ToTurns(&req)

	fragments, err := h.chat.Fragments(ctx, turns)
	if err != nil {
		adapter.WriteUpstreamError(w, r, err)
		return
	}

	id := "msg_" + uuid.NewString()
	if req.Stream {
		httputil.SetSSEHeaders(w)
		if err := WriteStreamingResponse(sse.NewWriter(w), fragments, id, model); err != nil {
			adapter.LogStreamError(r, err)
		}
		return
	}

	reply, err := adapter.Collect(turns, fragments)
	if err != nil {
		adapter.WriteUpstreamError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(BlockingResponse(id, model, reply))
}
