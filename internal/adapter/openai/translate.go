package openai

import (
	"iter"
	"time"

	"github.com/zhengjr9/kolony/internal/adapter"
	"github.com/zhengjr9/kolony/internal/chat"
	"github.com/zhengjr9/kolony/internal/sse"
)

const defaultModel = "kolony"

// ToTurns converts OpenAI messages to chat turns one to one. "developer"
// messages are treated as system prompts; anything else unknown is left for
// chat.Validate to reject.
func ToTurns(msgs []Message) []chat.Turn {
	turns := make([]chat.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := chat.Role(m.Role)
		if m.Role == "developer" {
			role = chat.RoleSystem
		}
		turns = append(turns, chat.Turn{Role: role, Content: string(m.Content)})
	}
	return turns
}

// BlockingResponse encodes a complete reply as a chat.completion object.
func BlockingResponse(id, model, reply string) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      Message{Role: string(chat.RoleAssistant), Content: adapter.Text(reply)},
				FinishReason: "stop",
			},
		},
	}
}

// WriteStreamingResponse re-encodes fragments as chat.completion.chunk
// events: a role chunk, one chunk per fragment, a finish chunk and [DONE].
// A failure after the first chunk is reported in-band and returned.
func WriteStreamingResponse(sw *sse.Writer, fragments iter.Seq2[string, error], id, model string) error {
	created := time.Now().Unix()
	chunk := func(d Delta, finish *string) StreamChunk {
		return StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []StreamChoice{{Index: 0, Delta: d, FinishReason: finish}},
		}
	}

	if err := sw.WriteData(chunk(Delta{Role: string(chat.RoleAssistant)}, nil)); err != nil {
		return err
	}
	for fragment, err := range fragments {
		if err != nil {
			var se StreamError
			se.Error.Message = err.Error()
			se.Error.Type = "upstream_error"
			_ = sw.WriteData(se)
			return err
		}
		if err := sw.WriteData(chunk(Delta{Content: fragment}, nil)); err != nil {
			return err
		}
	}
	stop := "stop"
	if err := sw.WriteData(chunk(Delta{}, &stop)); err != nil {
		return err
	}
	return sw.WriteDone()
}
