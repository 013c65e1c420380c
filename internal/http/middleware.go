package http

import (
	"context"
	"fmt"
	"math"
	"net"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/i18n"
	"washoku/app/internal/session"
)

const problemContentType = "application/problem+json"

func (s *Server) requestIDMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		reqID := uuid.NewString()
		goCtx := context.WithValue(ctx.Context(), requestIDContextKey, reqID)
		ctx = huma.WithContext(ctx, goCtx)
		ctx.SetHeader("X-Request-ID", reqID)

		if hub := sentry.GetHubFromContext(goCtx); hub != nil {
			hub.Scope().SetTag("request_id", reqID)
		}

		next(ctx)
	}
}

func (s *Server) localeMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		tag := i18n.Negotiate(ctx.Header("Accept-Language"))
		ctx = huma.WithContext(ctx, context.WithValue(ctx.Context(), localeContextKey, tag))
		ctx.SetHeader("Content-Language", tag.String())
		next(ctx)
	}
}

// sessionMiddleware attaches the signed-in user when the request carries a
// valid session cookie. Invalid or expired cookies are treated as anonymous.
func (s *Server) sessionMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		req, _ := humago.Unwrap(ctx)
		if req == nil {
			next(ctx)
			return
		}

		cookie, err := req.Cookie(session.CookieName)
		if err != nil || cookie.Value == "" {
			next(ctx)
			return
		}

		goCtx := context.WithValue(ctx.Context(), sessionContextKey, cookie.Value)

		sess, err := s.sessions.Resolve(goCtx, cookie.Value)
		switch {
		case err == nil:
			current, getErr := s.users.Get(goCtx, sess.UserID)
			if getErr != nil {
				s.recordError(goCtx, getErr, "loading session user", logrus.Fields{"user_id": sess.UserID})
			} else if current != nil {
				goCtx = context.WithValue(goCtx, userContextKey, current)
				if hub := sentry.GetHubFromContext(goCtx); hub != nil {
					hub.Scope().SetUser(sentry.User{ID: strconv.FormatUint(uint64(current.ID), 10), Username: current.Username})
				}
			}
		case eris.Is(err, session.ErrSessionNotFound), eris.Is(err, session.ErrSessionExpired):
		default:
			s.recordError(goCtx, err, "resolving session", nil)
		}

		next(huma.WithContext(ctx, goCtx))
	}
}

// accessMiddleware enforces the access level declared on each operation. It
// runs before huma reads the request body, so rejected calls never reach
// validation or the handler.
func (s *Server) accessMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		required := operationAccess(ctx.Operation())
		current := UserFromContext(ctx.Context())

		switch {
		case required == accessAdmin && (current == nil || !current.IsAdmin):
			s.writeProblem(ctx, s.problem(ctx.Context(), stdhttp.StatusForbidden, codeForbidden, i18n.AdminRequired))
			return
		case required == accessUser && current == nil:
			s.writeProblem(ctx, s.problem(ctx.Context(), stdhttp.StatusUnauthorized, codeUnauthorized, i18n.AuthRequired))
			return
		}

		next(ctx)
	}
}

func (s *Server) rateLimitMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.rateLimiter == nil || !operationRateLimited(ctx.Operation()) {
			next(ctx)
			return
		}

		req, _ := humago.Unwrap(ctx)
		if req == nil {
			next(ctx)
			return
		}

		ip := clientIPFromRequest(req, s.trustProxy)
		allowed, retryAfter := s.rateLimiter.Allow(ip)
		if allowed {
			next(ctx)
			return
		}

		if s.logger != nil {
			fields := logrus.Fields{
				"ip":   ip,
				"path": req.URL.Path,
			}
			if requestID := RequestIDFromContext(ctx.Context()); requestID != "" {
				fields["request_id"] = requestID
			}
			s.logger.WithError(eris.New("rate limit exceeded")).WithFields(fields).Warn("request rate limited")
		}

		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		ctx.SetHeader("Retry-After", strconv.Itoa(seconds))
		s.writeProblem(ctx, s.problem(ctx.Context(), stdhttp.StatusTooManyRequests, codeRateLimited, i18n.RateLimited))
	}
}

func (s *Server) loggingMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)
		elapsed := time.Since(start)

		status := ctx.Status()
		if status == 0 {
			status = stdhttp.StatusOK
		}

		route := ""
		if op := ctx.Operation(); op != nil {
			route = op.Path
		}
		s.metrics.observe(route, ctx.Method(), status, elapsed)

		if s.logger == nil {
			return
		}

		fields := logrus.Fields{
			"method":      ctx.Method(),
			"status":      status,
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		}
		if route != "" {
			fields["route"] = route
		}

		if req, _ := humago.Unwrap(ctx); req != nil {
			fields["path"] = req.URL.Path
			fields["remote_addr"] = req.RemoteAddr
		}

		if requestID := RequestIDFromContext(ctx.Context()); requestID != "" {
			fields["request_id"] = requestID
		}

		entry := s.logger.WithFields(fields)
		if status >= 500 {
			entry.Error("request failed")
		} else {
			entry.Info("request completed")
		}
	}
}

func (s *Server) recoveryMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		defer func() {
			if rec := recover(); rec != nil {
				var err error
				switch v := rec.(type) {
				case error:
					err = v
				default:
					err = fmt.Errorf("panic: %v", v)
				}

				s.recordError(ctx.Context(), err, "panic recovered", nil)

				if hub := sentry.GetHubFromContext(ctx.Context()); hub != nil {
					hub.RecoverWithContext(ctx.Context(), rec)
					hub.Flush(2 * time.Second)
				}

				s.writeProblem(ctx, s.problem(ctx.Context(), stdhttp.StatusInternalServerError, codeInternal, i18n.InternalError))
			}
		}()

		next(ctx)
	}
}

func (s *Server) sentryMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.sentry == nil {
			next(ctx)
			return
		}

		hub := s.sentry.Clone()
		scope := hub.Scope()
		scope.SetTag("http.method", ctx.Method())
		if op := ctx.Operation(); op != nil {
			scope.SetTag("http.route", op.Path)
		}

		goCtx := sentry.SetHubOnContext(ctx.Context(), hub)
		ctx = huma.WithContext(ctx, goCtx)

		defer hub.Flush(2 * time.Second)

		next(ctx)
	}
}

// writeProblem renders an error outside a handler, where huma's own error
// writing is not available.
func (s *Server) writeProblem(ctx huma.Context, problem *apiError) {
	ctx.SetHeader("Content-Type", problemContentType)
	ctx.SetStatus(problem.Status)

	if err := s.api.Marshal(ctx.BodyWriter(), "application/json", problem); err != nil {
		s.recordError(ctx.Context(), err, "writing problem response", logrus.Fields{"status": problem.Status})
	}
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}

// clientIPFromRequest returns the caller's address. Forwarded headers are
// client-controlled and are only consulted when trustProxy is set.
func clientIPFromRequest(req *stdhttp.Request, trustProxy bool) string {
	if req == nil {
		return ""
	}

	if trustProxy {
		if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
			candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if candidate != "" {
				return candidate
			}
		}

		if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
