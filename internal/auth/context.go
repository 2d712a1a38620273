package auth

import "context"

type tokenContextKey struct{}

// ContextWithToken attaches the verified caller token to the request context.
func ContextWithToken(ctx context.Context, token *VerifiedToken) context.Context {
	if token == nil {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the verified token, if authentication ran for this request.
func TokenFromContext(ctx context.Context) (*VerifiedToken, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(tokenContextKey{}).(*VerifiedToken)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ClientIDFromContext returns the calling system's client id.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	tok, ok := TokenFromContext(ctx)
	if !ok || tok.ClientID == "" {
		return "", false
	}
	return tok.ClientID, true
}
