// Package adaptertest provides a scripted adapter.Chatter for handler tests.
package adaptertest

import (
	"context"
	"iter"
	"sync"

	"github.com/zhengjr9/kolony/internal/chat"
)

// Chat replays Replies and then TailErr, if set. OpenErr fails the call
// before streaming. Turns are validated like the real client does.
type Chat struct {
	Replies []string
	OpenErr error
	TailErr error

	mu  sync.Mutex
	got []chat.Turn
}

// New returns a Chat that streams fragments.
func New(fragments ...string) *Chat {
	return &Chat{Replies: fragments}
}

func (c *Chat) Fragments(_ context.Context, turns []chat.Turn) (iter.Seq2[string, error], error) {
	c.mu.Lock()
	c.got = turns
	c.mu.Unlock()
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	if err := chat.Validate(turns); err != nil {
		return nil, err
	}
	return func(yield func(string, error) bool) {
		for _, s := range c.Replies {
			if !yield(s, nil) {
				return
			}
		}
		if c.TailErr != nil {
			yield("", c.TailErr)
		}
	}, nil
}

// Turns returns the turns of the last call.
func (c *Chat) Turns() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got
}
