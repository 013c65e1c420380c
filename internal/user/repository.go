package user

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence operations for users.
type Repository interface {
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	Save(ctx context.Context, user *User) error
	Count(ctx context.Context) (int64, error)
}

// GormRepository persists users using a Gorm database connection.
type GormRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed repository implementation.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*GormRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormRepository{db: db, logger: logger}, nil
}

var _ Repository = (*GormRepository)(nil)

// GetByID returns the user with the provided id or nil when not found.
func (r *GormRepository) GetByID(ctx context.Context, id uint) (*User, error) {
	return r.first(ctx, logrus.Fields{"user_id": id}, "id = ?", id)
}

// GetByUsername returns the user with the provided username or nil when not found.
func (r *GormRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return nil, eris.New("username is required")
	}

	return r.first(ctx, logrus.Fields{"username": trimmed}, "username = ?", trimmed)
}

// GetByEmail returns the user with the provided email, compared case-insensitively,
// or nil when not found.
func (r *GormRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil, eris.New("email is required")
	}

	return r.first(ctx, nil, "LOWER(email) = ?", strings.ToLower(trimmed))
}

// Create inserts a new user row.
func (r *GormRepository) Create(ctx context.Context, user *User) error {
	if user == nil {
		return eris.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		r.logError(logrus.Fields{"username": user.Username}, err, "creating user")
		return eris.Wrapf(err, "creating user: %s", user.Username)
	}

	return nil
}

// Save persists every column of an existing user.
func (r *GormRepository) Save(ctx context.Context, user *User) error {
	if user == nil || user.ID == 0 {
		return eris.New("persisted user is required")
	}

	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		r.logError(logrus.Fields{"user_id": user.ID}, err, "saving user")
		return eris.Wrapf(err, "saving user: %d", user.ID)
	}

	return nil
}

// Count returns the number of registered users.
func (r *GormRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		r.logError(nil, err, "counting users")
		return 0, eris.Wrap(err, "counting users")
	}

	return count, nil
}

func (r *GormRepository) first(ctx context.Context, fields logrus.Fields, query string, args ...any) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(fields, err, "fetching user")
		return nil, eris.Wrap(err, "fetching user")
	}

	return &user, nil
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
