package integration

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhengjr9/kolony/internal/config"
	"github.com/zhengjr9/kolony/internal/proxy"
	"github.com/zhengjr9/kolony/test/testutil"
)

const (
	testAnswer = "Hello from Kolony"
	testToken  = "test-access-token-12345"
)

func newTestProxy(t *testing.T, kolonyURL string, mutate ...func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		KolonyBaseURL:  kolonyURL,
		ListenAddr:     ":0",
		RequestTimeout: 10 * time.Second,
	}
	for _, fn := range mutate {
		fn(cfg)
	}
	srv := proxy.New(cfg)
	return httptest.NewServer(srv.Handler())
}

func post(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, raw)
	}
}

// --- OpenAI adapter tests ---

func TestOpenAI_Blocking(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/chat/completions",
		`{"model":"gpt-4","messages":[{"role":"user","content":"Say hello"}],"stream":false}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	choices, _ := result["choices"].([]any)
	if len(choices) == 0 {
		t.Fatal("expected at least one choice")
	}
	choice := choices[0].(map[string]any)
	msg := choice["message"].(map[string]any)
	if got := msg["content"].(string); got != testAnswer {
		t.Errorf("expected content %q, got %q", testAnswer, got)
	}

	// Verify the caller's token was forwarded to Kolony
	if got := mock.LastAuthorization("chat"); got != "Bearer "+testToken {
		t.Errorf("expected forwarded bearer token, got %q", got)
	}
}

func TestOpenAI_Streaming(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/chat/completions",
		`{"model":"gpt-4","messages":[{"role":"user","content":"Say hello"}],"stream":true}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected SSE content-type, got %q", ct)
	}

	content := collectSSEContent(t, resp.Body, "data: [DONE]")
	if !strings.Contains(content, "Hello") {
		t.Errorf("expected streamed content to contain 'Hello', got %q", content)
	}
}

func TestOpenAI_MissingToken(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/chat/completions", `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)

	if mock.LastRequest("chat") != nil {
		t.Error("no request may reach Kolony without a session")
	}
}

func TestOpenAI_ConfiguredTokenFallback(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL(), func(c *config.Config) { c.AccessToken = testToken })
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
}

func TestOpenAI_MultiTurnForwarded(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	body := `{"model":"gpt-4","messages":[
		{"role":"system","content":"You are helpful."},
		{"role":"user","content":"What is 2+2?"},
		{"role":"assistant","content":"4"},
		{"role":"user","content":"Why?"}
	],"stream":false}`
	resp := post(t, proxySrv.URL+"/v1/chat/completions", body, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	// The message list reaches the chat function unflattened.
	msgs, _ := mock.LastRequest("chat")["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 forwarded messages, got %d", len(msgs))
	}
	last := msgs[3].(map[string]any)
	if last["role"] != "user" || last["content"] != "Why?" {
		t.Errorf("unexpected last message: %v", last)
	}
}

func TestOpenAI_UpstreamQuota(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	mock.FailWith = http.StatusPaymentRequired
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusPaymentRequired)
}

// --- Anthropic adapter tests ---

func TestAnthropic_Blocking(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/messages",
		`{"model":"claude-3","max_tokens":1024,"system":"Be brief.","messages":[{"role":"user","content":"Say hello"}],"stream":false}`,
		map[string]string{"X-Kolony-Token": testToken})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	contents, _ := result["content"].([]any)
	if len(contents) == 0 {
		t.Fatal("expected at least one content block")
	}
	block := contents[0].(map[string]any)
	if got := block["text"].(string); got != testAnswer {
		t.Errorf("expected text %q, got %q", testAnswer, got)
	}

	msgs, _ := mock.LastRequest("chat")["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Errorf("expected system prompt as first turn, got %v", msgs)
	}
}

func TestAnthropic_Streaming(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/messages",
		`{"model":"claude-3","max_tokens":1024,"messages":[{"role":"user","content":"Say hello"}],"stream":true}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected SSE content-type, got %q", ct)
	}

	content := collectSSEContent(t, resp.Body, "message_stop")
	if !strings.Contains(content, "Kolony") {
		t.Errorf("expected streamed deltas, got %q", content)
	}
}

func TestAnthropic_MissingToken(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/messages", `{"model":"claude-3","max_tokens":1024,"messages":[{"role":"user","content":"hi"}]}`, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

// --- Gemini adapter tests ---

func TestGemini_Blocking(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1beta/models/gemini-pro:generateContent",
		`{"contents":[{"role":"user","parts":[{"text":"Say hello"}]}]}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	candidates, _ := result["candidates"].([]any)
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	candidate := candidates[0].(map[string]any)
	content := candidate["content"].(map[string]any)
	parts := content["parts"].([]any)
	if len(parts) == 0 {
		t.Fatal("expected at least one part")
	}
	part := parts[0].(map[string]any)
	if got := part["text"].(string); got != testAnswer {
		t.Errorf("expected text %q, got %q", testAnswer, got)
	}
}

func TestGemini_Streaming(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1beta/models/gemini-pro:streamGenerateContent",
		`{"contents":[{"role":"user","parts":[{"text":"Say hello"}]}]}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected SSE content-type, got %q", ct)
	}

	content := collectSSEContent(t, resp.Body, "")
	if !strings.Contains(content, `"finishReason":"STOP"`) {
		t.Errorf("expected a final STOP chunk, got %q", content)
	}
}

func TestGemini_MissingToken(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1beta/models/gemini-pro:generateContent", `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

// --- Campaign tests ---

func TestCampaign_Stream(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/campaigns", `{"prompt":"Launch a maple syrup brand","location":"Quebec"}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	var kinds []string
	var headline string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		rest, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		if rest == "[DONE]" {
			kinds = append(kinds, "done")
			break
		}
		var env map[string]json.RawMessage
		if err := json.Unmarshal([]byte(rest), &env); err != nil {
			t.Fatalf("bad envelope %q: %v", rest, err)
		}
		for k, v := range env {
			kinds = append(kinds, k)
			if k == "result" {
				var r struct {
					AdCopy struct{ Headline string } `json:"adCopy"`
				}
				_ = json.Unmarshal(v, &r)
				headline = r.AdCopy.Headline
			}
		}
	}

	want := []string{"thought", "thought", "result", "done"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("expected envelopes %v, got %v", want, kinds)
	}
	if headline != "Proudly Canadian" {
		t.Errorf("unexpected headline %q", headline)
	}
	if got := mock.LastRequest("adgen-orchestrator")["location"]; got != "Quebec" {
		t.Errorf("campaign request not forwarded, location=%v", got)
	}
}

func TestCampaign_NoResult(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	mock.Result = nil
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/campaigns", `{"prompt":"p"}`, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	content := collectSSEContent(t, resp.Body, "")
	if !strings.Contains(content, `"error":"no result received from orchestration"`) {
		t.Errorf("expected incomplete-run error envelope, got %q", content)
	}
	if strings.Contains(content, "[DONE]") {
		t.Error("a failed run must not end with [DONE]")
	}
}

func TestCampaign_Preconditions(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL())
	defer proxySrv.Close()

	resp := post(t, proxySrv.URL+"/v1/campaigns", `{"prompt":""}`, bearer())
	resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	resp = post(t, proxySrv.URL+"/v1/campaigns", `{"prompt":"p"}`, nil)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

// --- Gateway tests ---

func TestRateLimit(t *testing.T) {
	mock := testutil.NewMockKolony(testAnswer, testToken)
	defer mock.Close()

	proxySrv := newTestProxy(t, mock.URL(), func(c *config.Config) {
		c.RateLimitPerMin = 1
		c.RateLimitBurst = 1
	})
	defer proxySrv.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp := post(t, proxySrv.URL+"/v1/chat/completions", body, bearer())
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	resp = post(t, proxySrv.URL+"/v1/chat/completions", body, bearer())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	health, err := http.Get(proxySrv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	health.Body.Close()
	expectStatus(t, health, http.StatusOK)
}

// --- helpers ---

// collectSSEContent reads SSE lines until the terminator is found or EOF,
// returning all data field values concatenated.
func collectSSEContent(t *testing.T, body io.Reader, terminator string) string {
	t.Helper()
	var sb strings.Builder
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if terminator != "" && strings.Contains(line, terminator) {
			break
		}
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			sb.WriteString(rest)
		}
	}
	return sb.String()
}
