package httputil

import (
	"net"
	"net/http"
	"strings"
)

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Token reads the caller's Kolony access token using the following priority:
//
//  1. X-Kolony-Token header
//  2. Authorization: Bearer
//
// Returns "" when neither is present; the gateway then falls back to its
// configured token.
func Token(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get("X-Kolony-Token")); tok != "" {
		return tok
	}
	if rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// ClientKey identifies the caller for rate limiting: its token when it sent
// one, otherwise its address. X-Forwarded-For is client-controlled and is
// only consulted when trustForwarded is set.
func ClientKey(r *http.Request, trustForwarded bool) string {
	if tok := Token(r); tok != "" {
		return "token:" + tok
	}
	if fwd := r.Header.Get("X-Forwarded-For"); trustForwarded && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
