package auth_providers

import (
	"context"
)

// StaticTokenProvider supplies a fixed bearer credential. Useful for service
// accounts and tests; interactive flows should plug in their own provider.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (p *StaticTokenProvider) Token(_ context.Context) (string, error) {
	return p.token, nil
}

// TokenFunc adapts a plain function into a types.AuthProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
