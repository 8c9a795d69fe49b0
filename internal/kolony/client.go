// Package kolony opens event streams against the Kolony serverless functions.
package kolony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/sse"
)

// Function names under /functions/v1.
const (
	ChatFunction         = "chat"
	OrchestratorFunction = "adgen-orchestrator"

	functionsPath = "/functions/v1"
	maxErrorBody  = 4 << 10
)

// Client posts JSON to a Kolony function and hands back its event stream.
type Client struct {
	// functionsURL is the base of the functions endpoint,
	// e.g. "https://xyz.supabase.co/functions/v1". The suffix is appended
	// when missing so callers can pass the bare project URL.
	functionsURL string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient constructs a Client. headerTimeout bounds the wait for response
// headers; the body itself is bounded only by the request context. proxyURL
// may be empty to use the environment proxy.
func NewClient(baseURL string, headerTimeout time.Duration, proxyURL string) *Client {
	functionsURL := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(functionsURL, functionsPath) {
		functionsURL += functionsPath
	}

	transport := &http.Transport{ResponseHeaderTimeout: headerTimeout}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		functionsURL: functionsURL,
		httpClient:   &http.Client{Transport: transport},
		logger:       slog.Default(),
	}
}

// WithLogger returns a copy of c that reports decode warnings to l.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	cp := *c
	cp.logger = l
	return &cp
}

// URL returns the endpoint of the named function.
func (c *Client) URL(function string) string {
	return c.functionsURL + "/" + function
}

// Stream is an open event stream. Whoever opened it must Close it; Close is
// safe to call more than once.
type Stream struct {
	*sse.Decoder
	body      io.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// Close releases the response body.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.body.Close() })
	return s.closeErr
}

// Open posts body to function with the bearer token and returns the stream
// once a 2xx status has been received. Non-2xx statuses and round-trip
// failures are returned as *errors.TransportError; cancellation of ctx as
// errors.ErrCancelled.
func (c *Client) Open(ctx context.Context, function, token string, body any) (*Stream, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(function), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierrors.Transport(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &apierrors.TransportError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, apierrors.ErrNoBody
	}

	dec := sse.NewDecoder(resp.Body,
		sse.WithEncoding(sse.EncodingFromContentType(resp.Header.Get("Content-Type"))),
		sse.WithLogger(c.logger.With("function", function)),
	)
	return &Stream{Decoder: dec, body: resp.Body}, nil
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
