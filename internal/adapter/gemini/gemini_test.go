package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/kolony/internal/adapter/adaptertest"
	"github.com/zhengjr9/kolony/internal/chat"
	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/sse"
)

func serve(h *Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Dispatch(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return w
}

func TestToTurns(t *testing.T) {
	req := &GenerateContentRequest{
		SystemInstructionCamel: &SystemInstruction{Parts: []Part{{Text: "be "}, {Text: "brief"}}},
		Contents: []Content{
			{Parts: []Part{{Text: "hi"}}},
			{Role: "model", Parts: []Part{{Text: "hello"}}},
			{Role: "user", Parts: []Part{{Text: "more"}}},
		},
	}
	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleSystem, Content: "be brief"},
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleUser, Content: "more"},
	}, ToTurns(req))
}

func TestGenerateContent(t *testing.T) {
	w := serve(NewHandler(adaptertest.New("Hi", " there"), time.Second),
		"/v1beta/models/gemini-2.0-flash:generateContent",
		`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp GenerateContentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "Hi there", resp.Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, "STOP", resp.Candidates[0].FinishReason)
	assert.Equal(t, "gemini-2.0-flash", resp.ModelVersion)
}

func TestStreamGenerateContent(t *testing.T) {
	w := serve(NewHandler(adaptertest.New("a", "b"), time.Second),
		"/v1beta/models/m:streamGenerateContent",
		`{"contents":[{"parts":[{"text":"hi"}]}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var chunks []GenerateContentResponse
	for p, err := range sse.NewDecoder(bytes.NewReader(w.Body.Bytes())).All(context.Background()) {
		require.NoError(t, err)
		var c GenerateContentResponse
		require.NoError(t, p.Decode(&c))
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, "STOP", chunks[2].Candidates[0].FinishReason)
}

func TestDispatchUnknown(t *testing.T) {
	h := NewHandler(adaptertest.New(), time.Second)
	assert.Equal(t, http.StatusNotFound, serve(h, "/v1beta/models/m:countTokens", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, "/v1beta/models/m", `{}`).Code)
}

func TestErrorEnvelope(t *testing.T) {
	fc := &adaptertest.Chat{OpenErr: &apierrors.TransportError{StatusCode: 429, Message: "Rate limit exceeded"}}
	w := serve(NewHandler(fc, time.Second), "/v1beta/models/m:generateContent", `{"contents":[{"parts":[{"text":"hi"}]}]}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RESOURCE_EXHAUSTED", resp.Error.Status)

	w = serve(NewHandler(adaptertest.New(), time.Second), "/v1beta/models/m:generateContent", `{"contents":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
