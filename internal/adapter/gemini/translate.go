package gemini

import (
	"iter"
	"strings"

	"github.com/zhengjr9/kolony/internal/chat"
	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/sse"
)

// ToTurns converts Gemini contents to chat turns. "model" maps to the
// assistant role, a missing role to user, and the system instruction to a
// leading system turn.
func ToTurns(req *GenerateContentRequest) []chat.Turn {
	turns := make([]chat.Turn, 0, len(req.Contents)+1)

	sys := req.SystemInstruction
	if sys == nil {
		sys = req.SystemInstructionCamel
	}
	if sys != nil {
		if text := joinParts(sys.Parts); text != "" {
			turns = append(turns, chat.Turn{Role: chat.RoleSystem, Content: text})
		}
	}

	for _, c := range req.Contents {
		role := chat.Role(c.Role)
		switch c.Role {
		case "model":
			role = chat.RoleAssistant
		case "":
			role = chat.RoleUser
		}
		turns = append(turns, chat.Turn{Role: role, Content: joinParts(c.Parts)})
	}
	return turns
}

func joinParts(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "")
}

func candidate(text, finish string) GenerateContentResponse {
	return GenerateContentResponse{
		Candidates: []Candidate{
			{
				Content:      Content{Role: "model", Parts: []Part{{Text: text}}},
				FinishReason: finish,
				Index:        0,
			},
		},
	}
}

// BlockingResponse encodes a complete reply.
func BlockingResponse(reply, model string) GenerateContentResponse {
	resp := candidate(reply, "STOP")
	resp.ModelVersion = model
	return resp
}

// ErrorFor builds the Gemini error envelope for err.
func ErrorFor(err error) ErrorResponse {
	code := apierrors.StatusFor(err)
	status := "INTERNAL"
	switch code {
	case 400:
		status = "INVALID_ARGUMENT"
	case 401:
		status = "UNAUTHENTICATED"
	case 403:
		status = "PERMISSION_DENIED"
	case 429, 402:
		status = "RESOURCE_EXHAUSTED"
	case 504:
		status = "DEADLINE_EXCEEDED"
	case 502:
		status = "UNAVAILABLE"
	}
	return ErrorResponse{Error: ErrorBody{Code: code, Message: err.Error(), Status: status}}
}

// WriteStreamingResponse writes one chunk per fragment and a final empty
// chunk carrying finishReason STOP.
func WriteStreamingResponse(sw *sse.Writer, fragments iter.Seq2[string, error]) error {
	for fragment, err := range fragments {
		if err != nil {
			_ = sw.WriteData(ErrorFor(err))
			return err
		}
		if err := sw.WriteData(candidate(fragment, "")); err != nil {
			return err
		}
	}
	return sw.WriteData(candidate("", "STOP"))
}
