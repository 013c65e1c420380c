package newsletter

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence operations for newsletter subscriptions.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Subscription, error)
	Create(ctx context.Context, subscription *Subscription) error
	List(ctx context.Context) ([]Subscription, error)
	Count(ctx context.Context, confirmedOnly bool) (int64, error)
}

// GormRepository persists subscriptions using a Gorm database connection.
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

// GetByEmail returns the subscription for the email or nil when not found.
func (r *GormRepository) GetByEmail(ctx context.Context, email string) (*Subscription, error) {
	var subscription Subscription
	err := r.db.WithContext(ctx).First(&subscription, "email = ?", email).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(nil, err, "fetching subscription")
		return nil, eris.Wrap(err, "fetching subscription")
	}

	return &subscription, nil
}

// Create inserts a subscription row.
func (r *GormRepository) Create(ctx context.Context, subscription *Subscription) error {
	if subscription == nil {
		return eris.New("subscription is nil")
	}

	if err := r.db.WithContext(ctx).Create(subscription).Error; err != nil {
		r.logError(nil, err, "creating subscription")
		return eris.Wrap(err, "creating subscription")
	}

	return nil
}

// List returns every subscription newest first.
func (r *GormRepository) List(ctx context.Context) ([]Subscription, error) {
	var subscriptions []Subscription
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&subscriptions).Error; err != nil {
		r.logError(nil, err, "listing subscriptions")
		return nil, eris.Wrap(err, "listing subscriptions")
	}

	return subscriptions, nil
}

// Count returns the number of subscriptions, optionally only confirmed ones.
func (r *GormRepository) Count(ctx context.Context, confirmedOnly bool) (int64, error) {
	var count int64

	query := r.db.WithContext(ctx).Model(&Subscription{})
	if confirmedOnly {
		query = query.Where("confirmed = ?", true)
	}

	if err := query.Count(&count).Error; err != nil {
		r.logError(logrus.Fields{"confirmed_only": confirmedOnly}, err, "counting subscriptions")
		return 0, eris.Wrap(err, "counting subscriptions")
	}

	return count, nil
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
