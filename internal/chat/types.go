package chat

import (
	"fmt"
	"unicode/utf8"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Limits enforced by the chat function; checked locally so a bad request
// never leaves the process.
const (
	MaxTurns         = 50
	MaxContentLength = 10000
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is an ordered list of turns.
type Transcript []Turn

// Last returns the final turn, if any.
func (t Transcript) Last() (Turn, bool) {
	if len(t) == 0 {
		return Turn{}, false
	}
	return t[len(t)-1], true
}

// Observer receives the full transcript after every applied fragment.
type Observer func(Transcript)

// Validate checks turns against the chat function's input rules.
func Validate(turns []Turn) error {
	if len(turns) == 0 || len(turns) > MaxTurns {
		return fmt.Errorf("%w: need between 1 and %d messages, got %d", apierrors.ErrInvalidRequest, MaxTurns, len(turns))
	}
	for i, t := range turns {
		switch t.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("%w: message %d has unknown role %q", apierrors.ErrInvalidRequest, i, t.Role)
		}
		if n := utf8.RuneCountInString(t.Content); n > MaxContentLength {
			return fmt.Errorf("%w: message %d is %d characters, limit %d", apierrors.ErrInvalidRequest, i, n, MaxContentLength)
		}
	}
	return nil
}
