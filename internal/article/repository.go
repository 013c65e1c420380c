package article

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"washoku/app/internal/db"
	"washoku/app/internal/restaurant"
)

// Repository defines persistence operations for articles.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Article, error)
	GetBySlug(ctx context.Context, slug string) (*Article, error)
	GetByID(ctx context.Context, id uint) (*Article, error)
	Save(ctx context.Context, article *Article, links []ArticleRestaurant, replaceLinks bool) error
	Delete(ctx context.Context, id uint) (bool, error)
	Count(ctx context.Context) (Counts, error)
}

// ListFilter narrows article listings.
type ListFilter struct {
	Type          Type
	PublishedOnly bool
}

// Counts summarises the article table.
type Counts struct {
	Total     int64
	Published int64
}

// GormRepository persists articles using a Gorm database connection.
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

// List returns articles newest first with author and restaurants attached.
func (r *GormRepository) List(ctx context.Context, filter ListFilter) ([]Article, error) {
	var articles []Article

	query := r.withRelations(r.db.WithContext(ctx)).Order("created_at DESC").Order("id DESC")
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.PublishedOnly {
		query = query.Where("published = ?", true)
	}

	if err := query.Find(&articles).Error; err != nil {
		r.logError(logrus.Fields{"type": filter.Type}, err, "listing articles")
		return nil, eris.Wrap(err, "listing articles")
	}

	return articles, nil
}

// GetBySlug returns the article for the provided slug or nil when not found.
func (r *GormRepository) GetBySlug(ctx context.Context, slug string) (*Article, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, eris.New("slug is required")
	}

	var article Article
	err := r.withRelations(r.db.WithContext(ctx)).First(&article, "slug = ?", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"slug": trimmed}, err, "fetching article by slug")
		return nil, eris.Wrapf(err, "fetching article by slug: %s", trimmed)
	}

	return &article, nil
}

// GetByID returns the article with the provided id or nil when not found.
func (r *GormRepository) GetByID(ctx context.Context, id uint) (*Article, error) {
	var article Article
	err := r.withRelations(r.db.WithContext(ctx)).First(&article, id).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"article_id": id}, err, "fetching article by id")
		return nil, eris.Wrapf(err, "fetching article by id: %d", id)
	}

	return &article, nil
}

// Save upserts the article row and, when replaceLinks is set, replaces every
// restaurant association with links. Everything runs in one transaction.
func (r *GormRepository) Save(ctx context.Context, article *Article, links []ArticleRestaurant, replaceLinks bool) error {
	if article == nil {
		return eris.New("article is nil")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replaceLinks {
			if err := ensureRestaurantsExist(tx, links); err != nil {
				return err
			}
		}

		var writeErr error
		if article.ID == 0 {
			writeErr = tx.Omit(clause.Associations).Create(article).Error
		} else {
			writeErr = tx.Omit(clause.Associations).Save(article).Error
		}
		if writeErr != nil {
			if db.IsUniqueViolation(writeErr) {
				return eris.Wrapf(ErrDuplicateSlug, "slug %s", article.Slug)
			}
			return eris.Wrap(writeErr, "writing article row")
		}

		if !replaceLinks {
			return nil
		}

		if err := tx.Where("article_id = ?", article.ID).Delete(&ArticleRestaurant{}).Error; err != nil {
			return eris.Wrap(err, "deleting article restaurants")
		}

		if len(links) == 0 {
			return nil
		}

		rows := make([]ArticleRestaurant, len(links))
		for i, link := range links {
			rows[i] = ArticleRestaurant{
				ArticleID:    article.ID,
				RestaurantID: link.RestaurantID,
				Order:        link.Order,
				Description:  link.Description,
			}
		}

		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return eris.Wrap(err, "inserting article restaurants")
		}

		return nil
	})
	if err != nil {
		if !eris.Is(err, ErrDuplicateSlug) && !eris.Is(err, ErrInvalidInput) {
			r.logError(logrus.Fields{"slug": article.Slug, "article_id": article.ID}, err, "saving article")
		}
		return err
	}

	return nil
}

// Delete removes the article and its restaurant associations. Bookmarks
// referencing the article cascade at the database level. It reports whether
// the article existed.
func (r *GormRepository) Delete(ctx context.Context, id uint) (bool, error) {
	var deleted bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", id).Delete(&ArticleRestaurant{}).Error; err != nil {
			return eris.Wrap(err, "deleting article restaurants")
		}

		result := tx.Delete(&Article{}, id)
		if result.Error != nil {
			return eris.Wrap(result.Error, "deleting article row")
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		r.logError(logrus.Fields{"article_id": id}, err, "deleting article")
		return false, eris.Wrapf(err, "deleting article: %d", id)
	}

	return deleted, nil
}

// Count returns the total and published article counts.
func (r *GormRepository) Count(ctx context.Context) (Counts, error) {
	var counts Counts

	if err := r.db.WithContext(ctx).Model(&Article{}).Count(&counts.Total).Error; err != nil {
		r.logError(nil, err, "counting articles")
		return Counts{}, eris.Wrap(err, "counting articles")
	}

	if err := r.db.WithContext(ctx).Model(&Article{}).Where("published = ?", true).Count(&counts.Published).Error; err != nil {
		r.logError(nil, err, "counting published articles")
		return Counts{}, eris.Wrap(err, "counting published articles")
	}

	return counts, nil
}

func (r *GormRepository) withRelations(query *gorm.DB) *gorm.DB {
	return query.
		Preload("Author").
		Preload("Restaurants", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC").Order("restaurant_id ASC")
		}).
		Preload("Restaurants.Restaurant")
}

func ensureRestaurantsExist(tx *gorm.DB, links []ArticleRestaurant) error {
	if len(links) == 0 {
		return nil
	}

	ids := make([]uint, len(links))
	for i, link := range links {
		ids[i] = link.RestaurantID
	}

	var found int64
	if err := tx.Model(&restaurant.Restaurant{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
		return eris.Wrap(err, "checking restaurant ids")
	}

	if found != int64(len(ids)) {
		return eris.Wrap(ErrInvalidInput, "one or more restaurants do not exist")
	}

	return nil
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
