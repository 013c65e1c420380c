package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/article"
	"washoku/app/internal/bookmark"
	"washoku/app/internal/i18n"
	"washoku/app/internal/llm"
	"washoku/app/internal/newsletter"
	"washoku/app/internal/restaurant"
	"washoku/app/internal/user"
)

// Machine-readable reasons carried in the problem body's code field.
const (
	codeUnauthorized       = "UNAUTHORIZED"
	codeForbidden          = "FORBIDDEN"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeNotAdmin           = "NOT_ADMIN"
	codeUsernameTaken      = "USERNAME_TAKEN"
	codeEmailTaken         = "EMAIL_TAKEN"
	codeNotFound           = "NOT_FOUND"
	codeDuplicateSlug      = "DUPLICATE_SLUG"
	codeInvalidInput       = "INVALID_INPUT"
	codeInvalidEmail       = "INVALID_EMAIL"
	codeRateLimited        = "RATE_LIMITED"
	codeLLMUnavailable     = "LLM_UNAVAILABLE"
	codeInternal           = "INTERNAL"
)

// apiError is the RFC 7807 problem document returned for every failure.
type apiError struct {
	huma.ErrorModel
	Code string `json:"code,omitempty" doc:"Machine-readable error reason" example:"DUPLICATE_SLUG"`
}

func init() {
	huma.NewError = newAPIError
}

// newAPIError replaces huma's default error constructor. Schema validation
// failures are reported as 400 like the rest of the API's input errors.
func newAPIError(status int, message string, errs ...error) huma.StatusError {
	code := ""
	if status == stdhttp.StatusUnprocessableEntity {
		status = stdhttp.StatusBadRequest
		code = codeInvalidInput
	}

	details := make([]*huma.ErrorDetail, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		if detailer, ok := err.(huma.ErrorDetailer); ok {
			details = append(details, detailer.ErrorDetail())
			continue
		}
		details = append(details, &huma.ErrorDetail{Message: err.Error()})
	}

	return &apiError{
		ErrorModel: huma.ErrorModel{
			Title:  stdhttp.StatusText(status),
			Status: status,
			Detail: message,
			Errors: details,
		},
		Code: code,
	}
}

func (s *Server) problem(ctx context.Context, status int, code string, key i18n.Key, causes ...error) *apiError {
	resp := newAPIError(status, i18n.Text(LocaleFromContext(ctx), key), causes...).(*apiError)
	resp.Code = code
	return resp
}

// domainError maps service errors onto problem responses. Anything it does not
// recognise is logged, reported and hidden behind a generic 500.
func (s *Server) domainError(ctx context.Context, err error, message string, fields logrus.Fields) error {
	switch {
	case eris.Is(err, article.ErrDuplicateSlug):
		return s.problem(ctx, stdhttp.StatusBadRequest, codeDuplicateSlug, i18n.DuplicateSlug)
	case eris.Is(err, article.ErrNotFound), eris.Is(err, bookmark.ErrArticleNotFound):
		return s.problem(ctx, stdhttp.StatusNotFound, codeNotFound, i18n.ArticleNotFound)
	case eris.Is(err, restaurant.ErrNotFound):
		return s.problem(ctx, stdhttp.StatusNotFound, codeNotFound, i18n.RestaurantNotFound)
	case eris.Is(err, article.ErrInvalidInput),
		eris.Is(err, restaurant.ErrInvalidInput),
		eris.Is(err, user.ErrInvalidInput):
		return s.problem(ctx, stdhttp.StatusBadRequest, codeInvalidInput, i18n.InvalidInput, err)
	case eris.Is(err, newsletter.ErrInvalidEmail):
		return s.problem(ctx, stdhttp.StatusBadRequest, codeInvalidEmail, i18n.InvalidEmail)
	case eris.Is(err, user.ErrUsernameTaken):
		return s.problem(ctx, stdhttp.StatusBadRequest, codeUsernameTaken, i18n.UsernameTaken)
	case eris.Is(err, user.ErrEmailTaken):
		return s.problem(ctx, stdhttp.StatusBadRequest, codeEmailTaken, i18n.EmailTaken)
	case eris.Is(err, user.ErrInvalidCredentials):
		return s.problem(ctx, stdhttp.StatusUnauthorized, codeInvalidCredentials, i18n.InvalidCredentials)
	case eris.Is(err, llm.ErrNotConfigured):
		return s.problem(ctx, stdhttp.StatusServiceUnavailable, codeLLMUnavailable, i18n.ExcerptUnavailable)
	}

	s.recordError(ctx, err, message, fields)
	return s.problem(ctx, stdhttp.StatusInternalServerError, codeInternal, i18n.InternalError)
}
