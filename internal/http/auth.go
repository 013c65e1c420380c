package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/i18n"
	"washoku/app/internal/user"
)

type registerInput struct {
	Body struct {
		_        struct{} `additionalProperties:"true"`
		Username string   `json:"username" maxLength:"255"`
		Password string   `json:"password" maxLength:"72"`
		Email    string   `json:"email" maxLength:"255"`
	}
}

type loginInput struct {
	Body struct {
		_        struct{} `additionalProperties:"true"`
		Username string   `json:"username"`
		Password string   `json:"password"`
	}
}

type sessionUserResponse struct {
	Status    int
	SetCookie string `header:"Set-Cookie"`
	Body      *user.User
}

type logoutResponse struct {
	SetCookie string `header:"Set-Cookie"`
	Body      messageBody
}

type currentUserResponse struct {
	Body *user.User
}

func (s *Server) registerAuthRoutes() {
	huma.Post(s.api, "/api/register", s.registerHandler, apiOperation("Create an account", "auth", accessPublic), created(), rateLimited())
	huma.Post(s.api, "/api/login", s.loginHandler, apiOperation("Sign in", "auth", accessPublic), rateLimited(), withErrors(stdhttp.StatusUnauthorized))
	huma.Post(s.api, "/api/admin/login", s.adminLoginHandler, apiOperation("Sign in to the CMS", "auth", accessPublic), rateLimited(), withErrors(stdhttp.StatusUnauthorized, stdhttp.StatusForbidden))
	huma.Post(s.api, "/api/logout", s.logoutHandler, apiOperation("Sign out", "auth", accessPublic))
	huma.Get(s.api, "/api/user", s.currentUserHandler, apiOperation("Fetch the signed-in user", "auth", accessUser))
}

func (s *Server) registerHandler(ctx context.Context, input *registerInput) (*sessionUserResponse, error) {
	body := input.Body

	account, err := s.users.Register(ctx, body.Username, body.Email, body.Password)
	if err != nil {
		return nil, s.domainError(ctx, err, "registering user", logrus.Fields{"username": body.Username})
	}

	return s.startSession(ctx, account, stdhttp.StatusCreated)
}

func (s *Server) loginHandler(ctx context.Context, input *loginInput) (*sessionUserResponse, error) {
	account, err := s.users.Authenticate(ctx, input.Body.Username, input.Body.Password)
	if err != nil {
		return nil, s.domainError(ctx, err, "authenticating user", logrus.Fields{"username": input.Body.Username})
	}

	return s.startSession(ctx, account, stdhttp.StatusOK)
}

func (s *Server) adminLoginHandler(ctx context.Context, input *loginInput) (*sessionUserResponse, error) {
	account, err := s.users.Authenticate(ctx, input.Body.Username, input.Body.Password)
	if err != nil {
		return nil, s.domainError(ctx, err, "authenticating admin", logrus.Fields{"username": input.Body.Username})
	}

	if !account.IsAdmin {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":    account.ID,
				"request_id": RequestIDFromContext(ctx),
			}).Warn("admin login rejected for non-admin account")
		}
		return nil, s.problem(ctx, stdhttp.StatusForbidden, codeNotAdmin, i18n.NotAdmin)
	}

	return s.startSession(ctx, account, stdhttp.StatusOK)
}

func (s *Server) logoutHandler(ctx context.Context, _ *struct{}) (*logoutResponse, error) {
	expired, err := s.sessions.End(ctx, sessionCookieFromContext(ctx))
	if err != nil {
		return nil, s.domainError(ctx, err, "ending session", nil)
	}

	return &logoutResponse{
		SetCookie: expired.String(),
		Body:      messageBody{Message: i18n.Text(LocaleFromContext(ctx), i18n.LoggedOut)},
	}, nil
}

func (s *Server) currentUserHandler(ctx context.Context, _ *struct{}) (*currentUserResponse, error) {
	return &currentUserResponse{Body: UserFromContext(ctx)}, nil
}

// startSession issues a fresh session for the account, retiring any session
// the request arrived with.
func (s *Server) startSession(ctx context.Context, account *user.User, status int) (*sessionUserResponse, error) {
	if previous := sessionCookieFromContext(ctx); previous != "" {
		if _, err := s.sessions.End(ctx, previous); err != nil {
			s.recordError(ctx, err, "retiring previous session", logrus.Fields{"user_id": account.ID})
		}
	}

	cookie, _, err := s.sessions.Start(ctx, account.ID)
	if err != nil {
		return nil, s.domainError(ctx, err, "starting session", logrus.Fields{"user_id": account.ID})
	}

	return &sessionUserResponse{Status: status, SetCookie: cookie.String(), Body: account}, nil
}
