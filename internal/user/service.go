package user

import (
	"context"
	"net/mail"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/db"
)

// Service defines account operations used by the authentication endpoints.
type Service interface {
	Register(ctx context.Context, username, email, password string) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	Get(ctx context.Context, id uint) (*User, error)
	EnsureAdmin(ctx context.Context, username, email, password string) (*User, error)
	Count(ctx context.Context) (int64, error)
}

type service struct {
	repo      Repository
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

var (
	// ErrInvalidCredentials indicates the username or password did not match.
	ErrInvalidCredentials = eris.New("invalid username or password")
	// ErrUsernameTaken indicates the username already belongs to another account.
	ErrUsernameTaken = eris.New("username already exists")
	// ErrEmailTaken indicates the email already belongs to another account.
	ErrEmailTaken = eris.New("email already exists")
	// ErrInvalidInput indicates a registration field failed validation.
	ErrInvalidInput = eris.New("invalid user input")
)

// NewService wires the user service with its repository.
func NewService(repo Repository, logger *logrus.Logger, hub *sentry.Hub) (Service, error) {
	if repo == nil {
		return nil, eris.New("user repository is required")
	}

	return &service{repo: repo, logger: logger, sentryHub: hub}, nil
}

func (s *service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)

	if username == "" {
		return nil, eris.Wrap(ErrInvalidInput, "username is required")
	}
	if password == "" {
		return nil, eris.Wrap(ErrInvalidInput, "password is required")
	}
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		s.recordError(logrus.Fields{"username": username}, err, "checking username availability")
		return nil, eris.Wrap(err, "checking username availability")
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	existing, err = s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.recordError(logrus.Fields{"username": username}, err, "checking email availability")
		return nil, eris.Wrap(err, "checking email availability")
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{Username: username, Email: email, Password: hashed}
	if err := s.repo.Create(ctx, user); err != nil {
		// A concurrent registration won the race between the lookups and the insert.
		if db.IsUniqueViolation(err) {
			return nil, s.conflict(ctx, username, email)
		}
		s.recordError(logrus.Fields{"username": username}, err, "registering user")
		return nil, eris.Wrap(err, "registering user")
	}

	return user, nil
}

func (s *service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		s.recordError(logrus.Fields{"username": username}, err, "loading user for authentication")
		return nil, eris.Wrap(err, "loading user for authentication")
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ok, needsRehash := CheckPassword(user.Password, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if needsRehash {
		s.upgradePassword(ctx, user, password)
	}

	return user, nil
}

func (s *service) Get(ctx context.Context, id uint) (*User, error) {
	if id == 0 {
		return nil, nil
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"user_id": id}, err, "loading user")
		return nil, eris.Wrapf(err, "loading user: %d", id)
	}

	return user, nil
}

// EnsureAdmin creates the bootstrap administrator or promotes an existing
// account with the same username. The stored password is left untouched for
// existing accounts.
func (s *service) EnsureAdmin(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, eris.Wrap(ErrInvalidInput, "admin username and password are required")
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, eris.Wrap(err, "loading bootstrap admin")
	}

	if existing != nil {
		if existing.IsAdmin {
			return existing, nil
		}
		existing.IsAdmin = true
		if err := s.repo.Save(ctx, existing); err != nil {
			s.recordError(logrus.Fields{"username": username}, err, "promoting bootstrap admin")
			return nil, eris.Wrap(err, "promoting bootstrap admin")
		}
		return existing, nil
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = strings.ToLower(username) + "@localhost"
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := &User{Username: username, Email: email, Password: hashed, IsAdmin: true}
	if err := s.repo.Create(ctx, admin); err != nil {
		s.recordError(logrus.Fields{"username": username}, err, "creating bootstrap admin")
		return nil, eris.Wrap(err, "creating bootstrap admin")
	}

	return admin, nil
}

// conflict names the column a unique violation collided on. The username is
// reported when neither row can be found again.
func (s *service) conflict(ctx context.Context, username, email string) error {
	if existing, err := s.repo.GetByUsername(ctx, username); err == nil && existing != nil {
		return ErrUsernameTaken
	}
	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return ErrEmailTaken
	}
	return ErrUsernameTaken
}

// NormalizeEmail trims and lower-cases an address after validating it.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", eris.Wrap(ErrInvalidInput, "email is required")
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", eris.Wrapf(ErrInvalidInput, "email %q is not a valid address", trimmed)
	}

	return strings.ToLower(trimmed), nil
}

func (s *service) Count(ctx context.Context) (int64, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		s.recordError(nil, err, "counting users")
		return 0, eris.Wrap(err, "counting users")
	}
	return count, nil
}

// upgradePassword replaces a legacy digest with a bcrypt hash. Failures are
// logged and do not fail the login.
func (s *service) upgradePassword(ctx context.Context, user *User, password string) {
	hashed, err := HashPassword(password)
	if err != nil {
		s.recordError(logrus.Fields{"user_id": user.ID}, err, "hashing legacy password")
		return
	}

	user.Password = hashed
	if err := s.repo.Save(ctx, user); err != nil {
		s.recordError(logrus.Fields{"user_id": user.ID}, err, "upgrading legacy password hash")
		return
	}

	if s.logger != nil {
		s.logger.WithField("user_id", user.ID).Info("upgraded legacy password hash")
	}
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
