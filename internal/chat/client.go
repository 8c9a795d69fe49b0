// Package chat streams assistant replies from the Kolony chat function and
// folds the incremental deltas into a conversation transcript.
package chat

import (
	"context"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zhengjr9/kolony/internal/kolony"
	"github.com/zhengjr9/kolony/internal/session"
	"github.com/zhengjr9/kolony/internal/tracer"
)

// Client talks to the chat function.
type Client struct {
	transport *kolony.Client
	tokens    session.Provider
	logger    *slog.Logger
}

// NewClient constructs a Client. tokens supplies the bearer credential for
// every request.
func NewClient(transport *kolony.Client, tokens session.Provider) *Client {
	return &Client{transport: transport, tokens: tokens, logger: slog.Default()}
}

type chatRequest struct {
	Messages []Turn `json:"messages"`
}

// Fragments opens a chat stream for turns and returns its non-empty content
// fragments in arrival order. Validation, credential and status failures are
// returned before any fragment. The sequence must be ranged over exactly
// once; the stream is released when the loop ends for any reason.
func (c *Client) Fragments(ctx context.Context, turns []Turn) (iter.Seq2[string, error], error) {
	if err := Validate(turns); err != nil {
		return nil, err
	}
	token, err := session.Resolve(ctx, c.tokens)
	if err != nil {
		return nil, err
	}
	stream, err := c.transport.Open(ctx, kolony.ChatFunction, token, chatRequest{Messages: turns})
	if err != nil {
		return nil, err
	}

	return func(yield func(string, error) bool) {
		defer stream.Close()
		for p, err := range stream.All(ctx) {
			if err != nil {
				yield("", err)
				return
			}
			content, ok, derr := DecodeDelta(p)
			if derr != nil {
				c.logger.Warn("skipping malformed chat delta", "error", derr)
				continue
			}
			if !ok {
				continue
			}
			if !yield(content, nil) {
				return
			}
		}
	}, nil
}

// Stream sends turns to the chat function and accumulates the reply,
// calling observer with the whole transcript after each fragment. The
// returned transcript holds whatever was received even when err is non-nil;
// rolling back the caller's own user turn is left to the caller.
func (c *Client) Stream(ctx context.Context, turns []Turn, observer Observer) (transcript Transcript, err error) {
	ctx, span := tracer.StartSpan(ctx, "chat.Stream", attribute.Int("chat.turns", len(turns)))
	defer func() { tracer.End(span, err) }()

	acc := NewAccumulator(turns, observer)
	fragments, err := c.Fragments(ctx, turns)
	if err != nil {
		return acc.Transcript(), err
	}
	for fragment, ferr := range fragments {
		if ferr != nil {
			return acc.Transcript(), ferr
		}
		acc.Apply(fragment)
	}
	span.SetAttributes(attribute.Int("chat.reply_length", len(acc.Reply())))
	return acc.Transcript(), nil
}

// Complete is Stream without an observer, returning only the reply text.
func (c *Client) Complete(ctx context.Context, turns []Turn) (string, error) {
	transcript, err := c.Stream(ctx, turns, nil)
	if err != nil {
		return "", err
	}
	if last, ok := transcript.Last(); ok && len(transcript) > len(turns) && last.Role == RoleAssistant {
		return last.Content, nil
	}
	return "", nil
}
