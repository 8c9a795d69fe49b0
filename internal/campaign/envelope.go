package campaign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/sse"
)

// Kind tags the variant carried by an Event.
type Kind int

const (
	KindThought Kind = iota + 1
	KindResult
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindThought:
		return "thought"
	case KindResult:
		return "result"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one decoded orchestration envelope. Exactly one of Thought,
// Result or Message is meaningful, selected by Kind.
type Event struct {
	Kind    Kind
	Thought *Thought
	Result  *Result
	Message string
}

// Envelope is the wire shape, used when producing a stream.
type Envelope struct {
	Thought *Thought `json:"thought,omitempty"`
	Result  *Result  `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
}

var errAmbiguousEnvelope = errors.New("envelope must carry exactly one of thought, result or error")

type rawEnvelope struct {
	Thought json.RawMessage `json:"thought"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// DecodeEvent validates the envelope shape and decodes its single variant.
// A result envelope whose body does not decode fails with an error wrapping
// errors.ErrBadResult; every other failure is a skippable decode warning.
func DecodeEvent(p sse.Payload) (Event, error) {
	var raw rawEnvelope
	if err := p.Decode(&raw); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	var ev Event
	n := 0
	if present(raw.Thought) {
		n++
		ev.Kind = KindThought
	}
	if present(raw.Result) {
		n++
		ev.Kind = KindResult
	}
	if present(raw.Error) {
		n++
		ev.Kind = KindError
	}
	if n != 1 {
		return Event{}, errAmbiguousEnvelope
	}

	switch ev.Kind {
	case KindThought:
		var t Thought
		if err := json.Unmarshal(raw.Thought, &t); err != nil {
			return Event{}, fmt.Errorf("decode thought: %w", err)
		}
		ev.Thought = &t
	case KindResult:
		var r Result
		if err := json.Unmarshal(raw.Result, &r); err != nil {
			return Event{}, fmt.Errorf("%w: %v", apierrors.ErrBadResult, err)
		}
		ev.Result = &r
	case KindError:
		ev.Message = errorText(raw.Error)
	}
	return ev, nil
}

// present reports whether a field holds a value the server meant to send:
// null, false, "" and 0 count as absent.
func present(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

// errorText accepts both "message" and {"message": "..."} forms.
func errorText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
