package anthropic

import (
	"iter"

	"github.com/zhengjr9/kolony/internal/chat"
	"github.com/zhengjr9/kolony/internal/sse"
)

const defaultModel = "kolony"

// ToTurns converts an Anthropic request to chat turns. The top-level system
// prompt becomes a leading system turn.
func ToTurns(req *MessagesRequest) []chat.Turn {
	turns := make([]chat.Turn, 0, len(req.Messages)+1)
	if req.System != "" {
		turns = append(turns, chat.Turn{Role: chat.RoleSystem, Content: string(req.System)})
	}
	for _, m := range req.Messages {
		turns = append(turns, chat.Turn{Role: chat.Role(m.Role), Content: string(m.Content)})
	}
	return turns
}

// BlockingResponse encodes a complete reply as a Messages API response.
func BlockingResponse(id, model, reply string) MessagesResponse {
	return MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       string(chat.RoleAssistant),
		Content:    []Content{{Type: "text", Text: reply}},
		Model:      model,
		StopReason: "end_turn",
	}
}

// WriteStreamingResponse encodes fragments as the Anthropic event sequence:
// message_start, content_block_start, one content_block_delta per fragment,
// content_block_stop, message_delta and message_stop. An upstream failure
// ends the stream with an error event.
func WriteStreamingResponse(sw *sse.Writer, fragments iter.Seq2[string, error], id, model string) error {
	start := StreamEvent{
		Type: "message_start",
		Message: &MessagesResponse{
			ID:      id,
			Type:    "message",
			Role:    string(chat.RoleAssistant),
			Content: []Content{},
			Model:   model,
		},
	}
	if err := sw.WriteEvent(start.Type, start); err != nil {
		return err
	}
	blockStart := StreamEvent{Type: "content_block_start", ContentBlock: &Content{Type: "text"}}
	if err := sw.WriteEvent(blockStart.Type, blockStart); err != nil {
		return err
	}

	for fragment, err := range fragments {
		if err != nil {
			ev := StreamEvent{Type: "error", Error: &ErrorBody{Type: "api_error", Message: err.Error()}}
			_ = sw.WriteEvent(ev.Type, ev)
			return err
		}
		delta := StreamEvent{Type: "content_block_delta", Delta: &Delta{Type: "text_delta", Text: fragment}}
		if err := sw.WriteEvent(delta.Type, delta); err != nil {
			return err
		}
	}

	for _, ev := range []StreamEvent{
		{Type: "content_block_stop"},
		{Type: "message_delta", Delta: &Delta{StopReason: "end_turn"}},
		{Type: "message_stop"},
	} {
		if err := sw.WriteEvent(ev.Type, ev); err != nil {
			return err
		}
	}
	return nil
}
