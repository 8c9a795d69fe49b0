// Package adapter holds what the OpenAI, Anthropic and Gemini front ends
// share: they all translate a vendor request into chat turns, stream the
// Kolony reply and re-encode it in the vendor's format.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/zhengjr9/kolony/internal/chat"
	apierrors "github.com/zhengjr9/kolony/internal/errors"
)

// MaxBodyBytes bounds a decoded request body.
const MaxBodyBytes = 4 << 20

// Chatter streams chat replies. *chat.Client satisfies it.
type Chatter interface {
	Fragments(ctx context.Context, turns []chat.Turn) (iter.Seq2[string, error], error)
}

// DecodeJSON reads a bounded JSON body into v. Failures wrap
// errors.ErrInvalidRequest.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: empty body", apierrors.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: decode body: %v", apierrors.ErrInvalidRequest, err)
	}
	return nil
}

// Collect drains fragments into a reply for the blocking endpoints.
func Collect(turns []chat.Turn, fragments iter.Seq2[string, error]) (string, error) {
	acc := chat.NewAccumulator(turns, nil)
	for fragment, err := range fragments {
		if err != nil {
			return "", err
		}
		acc.Apply(fragment)
	}
	return acc.Reply(), nil
}

// WriteUpstreamError reports a failure that happened before any response
// byte was written.
func WriteUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierrors.StatusFor(err)
	switch {
	case apierrors.IsCancelled(err):
		slog.Debug("client went away", "path", r.URL.Path)
	case status >= http.StatusInternalServerError:
		slog.Error("upstream request failed", "path", r.URL.Path, "status", status, "error", err)
	default:
		slog.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	apierrors.WriteError(w, err)
}

// LogStreamError records a failure after the response status was sent, when
// the only option left is to end the stream.
func LogStreamError(r *http.Request, err error) {
	if apierrors.IsCancelled(err) {
		slog.Debug("client went away mid-stream", "path", r.URL.Path)
		return
	}
	slog.Warn("stream aborted", "path", r.URL.Path, "error", err)
}
