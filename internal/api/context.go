package api

import (
	"context"

	"github.com/terra-clan/duewatch/internal/models"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionFromContext extracts the session seen by requireSession
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(models.Session)
	return sess, ok
}

// ContextWithSession adds a session to context
func ContextWithSession(ctx context.Context, sess models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
