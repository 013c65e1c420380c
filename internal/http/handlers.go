package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"

	"washoku/app/internal/db"
)

type access string

const (
	accessPublic access = "public"
	accessUser   access = "user"
	accessAdmin  access = "admin"
)

const (
	accessMetadataKey      = "washoku.access"
	rateLimitedMetadataKey = "washoku.rateLimited"
)

type healthResponse struct {
	Status int
	Body   struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
}

// apiOperation returns an operation modifier declaring the summary, access
// level and tag of an API route.
func apiOperation(summary, tag string, level access) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		op.Summary = summary
		op.Tags = []string{tag}
		if op.Metadata == nil {
			op.Metadata = map[string]any{}
		}
		op.Metadata[accessMetadataKey] = level

		switch level {
		case accessAdmin:
			op.Security = []map[string][]string{{"session": {}}}
			addErrorResponse(op, stdhttp.StatusForbidden)
		case accessUser:
			op.Security = []map[string][]string{{"session": {}}}
			addErrorResponse(op, stdhttp.StatusUnauthorized)
		}
	}
}

func created() func(op *huma.Operation) {
	return func(op *huma.Operation) {
		op.DefaultStatus = stdhttp.StatusCreated
	}
}

func rateLimited() func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if op.Metadata == nil {
			op.Metadata = map[string]any{}
		}
		op.Metadata[rateLimitedMetadataKey] = true
		addErrorResponse(op, stdhttp.StatusTooManyRequests)
	}
}

func withErrors(statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		addErrorResponse(op, statuses...)
	}
}

func addErrorResponse(op *huma.Operation, statuses ...int) {
	op.Errors = append(op.Errors, statuses...)
}

func operationAccess(op *huma.Operation) access {
	if op == nil || op.Metadata == nil {
		return accessPublic
	}
	if level, ok := op.Metadata[accessMetadataKey].(access); ok {
		return level
	}
	return accessPublic
}

func operationRateLimited(op *huma.Operation) bool {
	if op == nil || op.Metadata == nil {
		return false
	}
	limited, _ := op.Metadata[rateLimitedMetadataKey].(bool)
	return limited
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
		op.Tags = []string{"system"}
	})
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{Status: stdhttp.StatusOK}
	resp.Body.Status = "ok"
	resp.Body.Database = "ok"

	if err := db.Ping(ctx, s.db); err != nil {
		s.recordError(ctx, err, "pinging database", nil)
		resp.Status = stdhttp.StatusServiceUnavailable
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
	}

	return resp, nil
}
