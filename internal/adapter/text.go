package adapter

import (
	"encoding/json"
	"errors"
	"strings"
)

// Text is message content sent either as a plain string or as a list of
// content blocks. Only text blocks are kept.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &blocks); err != nil {
		return errors.New("content must be a string or a list of text blocks")
	}
	var sb strings.Builder
	for _, bl := range blocks {
		if bl.Type == "text" || bl.Type == "" {
			sb.WriteString(bl.Text)
		}
	}
	*t = Text(sb.String())
	return nil
}
