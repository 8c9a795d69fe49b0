package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/zhengjr9/kolony/internal/campaign"
	"github.com/zhengjr9/kolony/internal/sse"
)

// MockKolony is an httptest.Server that simulates the Kolony chat and
// adgen-orchestrator functions under /functions/v1.
type MockKolony struct {
	Server *httptest.Server

	// Answer is streamed word by word by the chat function.
	Answer string
	// Thoughts and Result are streamed by the orchestrator. A nil Result
	// ends the stream without one.
	Thoughts []campaign.Thought
	Result   *campaign.Result
	// FailWith, when non-zero, makes every function answer with that status.
	FailWith int
	// Token is the bearer token the functions accept.
	Token string

	mu       sync.Mutex
	requests map[string]map[string]any
	auth     map[string]string
}

// NewMockKolony creates and starts a mock server accepting token.
func NewMockKolony(answer, token string) *MockKolony {
	m := &MockKolony{
		Answer: answer,
		Token:  token,
		Thoughts: []campaign.Thought{
			{Agent: campaign.AgentPlanner, Action: "Analyzing campaign objectives"},
			{Agent: campaign.AgentResearcher, Action: "Grounding with Google Search", Citations: []campaign.Citation{{Title: "StatCan", URL: "https://statcan.gc.ca"}}},
		},
		Result: &campaign.Result{
			ResearchSummary: "Demand for local goods is rising",
			AdCopy:          campaign.AdCopy{Headline: "Proudly Canadian", CallToAction: "Shop now"},
			Compliance:      campaign.Compliance{CanadianStandards: true, LegalClearance: true, AccessibilityScore: 95},
		},
		requests: make(map[string]map[string]any),
		auth:     make(map[string]string),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockKolony) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockKolony) URL() string {
	return m.Server.URL
}

// LastRequest returns the most recent body received by function.
func (m *MockKolony) LastRequest(function string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[function]
}

// LastAuthorization returns the Authorization header of the most recent
// request to function.
func (m *MockKolony) LastAuthorization(function string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth[function]
}

func (m *MockKolony) handle(w http.ResponseWriter, r *http.Request) {
	function, ok := strings.CutPrefix(r.URL.Path, "/functions/v1/")
	if !ok || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	m.mu.Lock()
	m.requests[function] = body
	m.auth[function] = r.Header.Get("Authorization")
	m.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+m.Token {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if m.FailWith != 0 {
		writeError(w, m.FailWith, http.StatusText(m.FailWith))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	sw := sse.NewWriter(w)
	switch function {
	case "chat":
		m.streamChat(sw)
	case "adgen-orchestrator":
		m.streamCampaign(sw)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockKolony) streamChat(sw *sse.Writer) {
	_ = sw.WriteComment(" keep-alive")
	_ = sw.WriteData(map[string]any{"choices": []any{map[string]any{"delta": map[string]string{"role": "assistant"}}}})
	for i, word := range strings.Fields(m.Answer) {
		if i > 0 {
			word = " " + word
		}
		_ = sw.WriteData(map[string]any{"choices": []any{map[string]any{"delta": map[string]string{"content": word}}}})
	}
	_ = sw.WriteDone()
}

func (m *MockKolony) streamCampaign(sw *sse.Writer) {
	for i := range m.Thoughts {
		_ = sw.WriteData(campaign.Envelope{Thought: &m.Thoughts[i]})
	}
	if m.Result != nil {
		_ = sw.WriteData(campaign.Envelope{Result: m.Result})
	}
	_ = sw.WriteDone()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
