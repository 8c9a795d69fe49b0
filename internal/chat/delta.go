package chat

import (
	"fmt"

	"github.com/zhengjr9/kolony/internal/sse"
)

type deltaChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// DecodeDelta extracts choices[0].delta.content from a chat completion
// chunk. ok is false when the chunk carries no visible text (role-only
// deltas, usage trailers, empty choices). A payload whose shape does not
// match is an error.
func DecodeDelta(p sse.Payload) (content string, ok bool, err error) {
	var chunk deltaChunk
	if err := p.Decode(&chunk); err != nil {
		return "", false, fmt.Errorf("decode delta: %w", err)
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
		return "", false, nil
	}
	content = *chunk.Choices[0].Delta.Content
	return content, content != "", nil
}
