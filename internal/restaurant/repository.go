package restaurant

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence operations for restaurants.
type Repository interface {
	List(ctx context.Context, status Status) ([]Restaurant, error)
	GetByID(ctx context.Context, id uint) (*Restaurant, error)
	Create(ctx context.Context, restaurant *Restaurant) error
	Save(ctx context.Context, restaurant *Restaurant) error
	UpdateStatus(ctx context.Context, id uint, status Status) (bool, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// GormRepository persists restaurants using a Gorm database connection.
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

// List returns restaurants ordered by id, optionally filtered by status.
func (r *GormRepository) List(ctx context.Context, status Status) ([]Restaurant, error) {
	var restaurants []Restaurant

	query := r.db.WithContext(ctx).Order("id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&restaurants).Error; err != nil {
		r.logError(logrus.Fields{"status": status}, err, "listing restaurants")
		return nil, eris.Wrap(err, "listing restaurants")
	}

	return restaurants, nil
}

// GetByID returns the restaurant with the provided id or nil when not found.
func (r *GormRepository) GetByID(ctx context.Context, id uint) (*Restaurant, error) {
	var restaurant Restaurant
	err := r.db.WithContext(ctx).First(&restaurant, id).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"restaurant_id": id}, err, "fetching restaurant")
		return nil, eris.Wrapf(err, "fetching restaurant: %d", id)
	}

	return &restaurant, nil
}

// Create inserts a new restaurant row.
func (r *GormRepository) Create(ctx context.Context, restaurant *Restaurant) error {
	if restaurant == nil {
		return eris.New("restaurant is nil")
	}

	if err := r.db.WithContext(ctx).Create(restaurant).Error; err != nil {
		r.logError(logrus.Fields{"name": restaurant.Name}, err, "creating restaurant")
		return eris.Wrap(err, "creating restaurant")
	}

	return nil
}

// Save persists every column of an existing restaurant.
func (r *GormRepository) Save(ctx context.Context, restaurant *Restaurant) error {
	if restaurant == nil || restaurant.ID == 0 {
		return eris.New("persisted restaurant is required")
	}

	if err := r.db.WithContext(ctx).Save(restaurant).Error; err != nil {
		r.logError(logrus.Fields{"restaurant_id": restaurant.ID}, err, "saving restaurant")
		return eris.Wrapf(err, "saving restaurant: %d", restaurant.ID)
	}

	return nil
}

// UpdateStatus sets the status column and reports whether a row matched.
func (r *GormRepository) UpdateStatus(ctx context.Context, id uint, status Status) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Restaurant{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		r.logError(logrus.Fields{"restaurant_id": id, "status": status}, result.Error, "updating restaurant status")
		return false, eris.Wrapf(result.Error, "updating restaurant status: %d", id)
	}

	return result.RowsAffected > 0, nil
}

// CountByStatus returns the number of restaurants per status.
func (r *GormRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Total  int64
	}

	err := r.db.WithContext(ctx).
		Model(&Restaurant{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		r.logError(nil, err, "counting restaurants by status")
		return nil, eris.Wrap(err, "counting restaurants by status")
	}

	counts := make(map[Status]int64, len(Statuses))
	for _, status := range Statuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}

	return counts, nil
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
