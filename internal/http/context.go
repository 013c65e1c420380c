package http

import (
	"context"

	"golang.org/x/text/language"

	"washoku/app/internal/i18n"
	"washoku/app/internal/user"
)

type contextKey string

const (
	requestIDContextKey contextKey = "washoku/request-id"
	userContextKey      contextKey = "washoku/user"
	sessionContextKey   contextKey = "washoku/session-cookie"
	localeContextKey    contextKey = "washoku/locale"
)

// RequestIDFromContext extracts the request identifier from the context when available.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDContextKey).(string); ok {
		return value
	}
	return ""
}

// UserFromContext returns the signed-in user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *user.User {
	if ctx == nil {
		return nil
	}
	if value, ok := ctx.Value(userContextKey).(*user.User); ok {
		return value
	}
	return nil
}

func sessionCookieFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(sessionContextKey).(string)
	return value
}

// LocaleFromContext returns the negotiated response language.
func LocaleFromContext(ctx context.Context) language.Tag {
	if ctx != nil {
		if value, ok := ctx.Value(localeContextKey).(language.Tag); ok {
			return value
		}
	}
	return i18n.Default()
}

func isAdmin(ctx context.Context) bool {
	u := UserFromContext(ctx)
	return u != nil && u.IsAdmin
}
