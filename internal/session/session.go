// Package session supplies the bearer credential used to open Kolony
// streams. The identity provider itself lives outside this module; callers
// plug it in through Provider.
package session

import (
	"context"
	"fmt"
	"strings"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
)

// Provider returns the access token of the current session, or "" when
// there is none.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns token.
func Static(token string) Provider {
	token = strings.TrimSpace(token)
	return ProviderFunc(func(context.Context) (string, error) { return token, nil })
}

type tokenContextKey struct{}

// ContextWithToken returns a context carrying a caller's access token.
// HTTP middleware calls this before the request reaches a handler.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, strings.TrimSpace(token))
}

// TokenFromContext retrieves a token installed by ContextWithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenContextKey{}).(string)
	return v, ok && v != ""
}

// FromContext is a Provider backed by TokenFromContext.
func FromContext() Provider {
	return ProviderFunc(func(ctx context.Context) (string, error) {
		token, _ := TokenFromContext(ctx)
		return token, nil
	})
}

// Chain returns the first non-empty token produced by providers, in order.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (string, error) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			token, err := p.Token(ctx)
			if err != nil {
				return "", err
			}
			if token != "" {
				return token, nil
			}
		}
		return "", nil
	})
}

// Resolve asks p for a token and fails with ErrNoSession when there is none.
// No request may be attempted without a token.
func Resolve(ctx context.Context, p Provider) (string, error) {
	if p == nil {
		return "", apierrors.ErrNoSession
	}
	token, err := p.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apierrors.ErrNoSession, err)
	}
	if token == "" {
		return "", apierrors.ErrNoSession
	}
	return token, nil
}
