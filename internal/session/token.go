package session

import "context"

// ContextTokenSource reads the token of the session attached to ctx. It is the
// token source used when forwarding a request's own credential upstream.
type ContextTokenSource struct{}

func (ContextTokenSource) Token(ctx context.Context) (string, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return "", nil
	}
	return s.AccessToken, nil
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }
