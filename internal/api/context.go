package api

import (
	"context"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/auth"
)

type contextKey string

const (
	sessionContextKey contextKey = "ctf_session"
	tokenContextKey   contextKey = "ctf_session_token"
)

// SessionFromContext extracts the authenticated session from context
func SessionFromContext(ctx context.Context) *auth.Session {
	sess, ok := ctx.Value(sessionContextKey).(*auth.Session)
	if !ok {
		return nil
	}
	return sess
}

// TokenFromContext extracts the raw session token from context
func TokenFromContext(ctx context.Context) string {
	token, ok := ctx.Value(tokenContextKey).(string)
	if !ok {
		return ""
	}
	return token
}

// contextWithSession adds the session and its token to context
func contextWithSession(ctx context.Context, sess *auth.Session, token string) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, sess)
	return context.WithValue(ctx, tokenContextKey, token)
}
