package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// StatusClientClosedRequest is reported when the caller cancelled the run.
const StatusClientClosedRequest = 499

var (
	ErrNoSession      = errors.New("authentication required")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoBody         = errors.New("no response body")
	ErrIncompleteRun  = errors.New("no result received from orchestration")
	ErrBadResult      = errors.New("malformed orchestration result")
	ErrCancelled      = errors.New("run cancelled")
)

// TransportError is a non-2xx upstream status or a network failure while
// opening or reading the stream. StatusCode is zero for network failures.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("kolony %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kolony transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError carries the message of an explicit {"error": ...} envelope.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server reported error: " + e.Message }

// Cancelled wraps cause so that the result matches both ErrCancelled and cause.
func Cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// IsCancelled reports whether err is an intentional cancellation rather than
// a transport or server failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// FromContext converts a finished context into the matching error class:
// explicit cancellation becomes ErrCancelled, an expired deadline a
// TransportError. It returns nil while ctx is still live.
func FromContext(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &TransportError{Err: err}
	default:
		return Cancelled(err)
	}
}

// Transport classifies a read or round-trip failure. When ctx is already
// done the context error wins so callers can tell cancellation apart.
func Transport(ctx context.Context, err error) error {
	if cerr := FromContext(ctx); cerr != nil {
		return cerr
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Err: err}
}

// StatusFor maps an error from the streaming core to an HTTP status code.
func StatusFor(err error) int {
	var (
		te *TransportError
		se *ServerError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrCancelled):
		return StatusClientClosedRequest
	case errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &te):
		switch te.StatusCode {
		case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
			return te.StatusCode
		}
		return http.StatusBadGateway
	case errors.As(err, &se), errors.Is(err, ErrIncompleteRun), errors.Is(err, ErrBadResult), errors.Is(err, ErrNoBody):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes err with the status chosen by StatusFor. Cancelled runs
// get no body: the client is gone.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == StatusClientClosedRequest {
		w.WriteHeader(status)
		return
	}
	WriteJSONError(w, status, err.Error())
}
