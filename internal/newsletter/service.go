package newsletter

import (
	"context"
	"net/mail"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/db"
)

// Service defines newsletter signup operations.
type Service interface {
	// Subscribe records the email. created is false when it was already subscribed.
	Subscribe(ctx context.Context, email string) (subscription *Subscription, created bool, err error)
	List(ctx context.Context) ([]Subscription, error)
	Count(ctx context.Context, confirmedOnly bool) (int64, error)
}

// ErrInvalidEmail indicates the submitted address is not a valid email.
var ErrInvalidEmail = eris.New("invalid email address")

type service struct {
	repo      Repository
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService wires the newsletter service with its repository.
func NewService(repo Repository, logger *logrus.Logger, hub *sentry.Hub) (Service, error) {
	if repo == nil {
		return nil, eris.New("newsletter repository is required")
	}

	return &service{repo: repo, logger: logger, sentryHub: hub}, nil
}

func (s *service) Subscribe(ctx context.Context, email string) (*Subscription, bool, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil {
		s.recordError(err, "loading subscription")
		return nil, false, eris.Wrap(err, "loading subscription")
	}
	if existing != nil {
		return existing, false, nil
	}

	subscription := &Subscription{Email: normalized}
	if err := s.repo.Create(ctx, subscription); err != nil {
		if db.IsUniqueViolation(err) {
			if existing, getErr := s.repo.GetByEmail(ctx, normalized); getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		s.recordError(err, "creating subscription")
		return nil, false, eris.Wrap(err, "creating subscription")
	}

	return subscription, true, nil
}

func (s *service) List(ctx context.Context) ([]Subscription, error) {
	subscriptions, err := s.repo.List(ctx)
	if err != nil {
		s.recordError(err, "listing subscriptions")
		return nil, eris.Wrap(err, "listing subscriptions")
	}
	return subscriptions, nil
}

func (s *service) Count(ctx context.Context, confirmedOnly bool) (int64, error) {
	count, err := s.repo.Count(ctx, confirmedOnly)
	if err != nil {
		s.recordError(err, "counting subscriptions")
		return 0, eris.Wrap(err, "counting subscriptions")
	}
	return count, nil
}

// NormalizeEmail trims and lower-cases an address after validating it.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", eris.Wrap(ErrInvalidEmail, "email is required")
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", eris.Wrapf(ErrInvalidEmail, "%q is not a bare email address", trimmed)
	}

	return strings.ToLower(trimmed), nil
}

func (s *service) recordError(err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		s.logger.WithField("error", err.Error()).Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
