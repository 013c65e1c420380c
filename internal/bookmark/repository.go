package bookmark

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"washoku/app/internal/article"
)

// Repository defines persistence operations for bookmarks.
type Repository interface {
	ListByUser(ctx context.Context, userID uint, publishedOnly bool) ([]Bookmark, error)
	Get(ctx context.Context, userID, articleID uint) (*Bookmark, error)
	Create(ctx context.Context, bookmark *Bookmark) error
	Delete(ctx context.Context, userID, articleID uint) error
	ArticleExists(ctx context.Context, articleID uint, publishedOnly bool) (bool, error)
}

// GormRepository persists bookmarks using a Gorm database connection.
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

// ListByUser returns the user's bookmarks newest first with the article and its
// author attached. With publishedOnly, bookmarks of unpublished articles are left out.
func (r *GormRepository) ListByUser(ctx context.Context, userID uint, publishedOnly bool) ([]Bookmark, error) {
	var bookmarks []Bookmark

	query := r.db.WithContext(ctx)
	if publishedOnly {
		query = query.Preload("Article", "published = ?", true)
	} else {
		query = query.Preload("Article")
	}

	err := query.
		Preload("Article.Author").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&bookmarks).Error
	if err != nil {
		r.logError(logrus.Fields{"user_id": userID}, err, "listing bookmarks")
		return nil, eris.Wrap(err, "listing bookmarks")
	}

	visible := bookmarks[:0]
	for _, bookmark := range bookmarks {
		if bookmark.Article != nil {
			visible = append(visible, bookmark)
		}
	}

	return visible, nil
}

// Get returns the bookmark for the pair or nil when not found.
func (r *GormRepository) Get(ctx context.Context, userID, articleID uint) (*Bookmark, error) {
	var bookmark Bookmark
	err := r.db.WithContext(ctx).
		Preload("Article").
		Where("user_id = ? AND article_id = ?", userID, articleID).
		First(&bookmark).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"user_id": userID, "article_id": articleID}, err, "fetching bookmark")
		return nil, eris.Wrap(err, "fetching bookmark")
	}

	return &bookmark, nil
}

// Create inserts a bookmark row.
func (r *GormRepository) Create(ctx context.Context, bookmark *Bookmark) error {
	if bookmark == nil {
		return eris.New("bookmark is nil")
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(bookmark).Error; err != nil {
		r.logError(logrus.Fields{"user_id": bookmark.UserID, "article_id": bookmark.ArticleID}, err, "creating bookmark")
		return eris.Wrap(err, "creating bookmark")
	}

	return nil
}

// Delete removes the bookmark for the pair. Missing rows are not an error.
func (r *GormRepository) Delete(ctx context.Context, userID, articleID uint) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND article_id = ?", userID, articleID).
		Delete(&Bookmark{}).Error
	if err != nil {
		r.logError(logrus.Fields{"user_id": userID, "article_id": articleID}, err, "deleting bookmark")
		return eris.Wrap(err, "deleting bookmark")
	}

	return nil
}

// ArticleExists reports whether an article row exists, counting only published
// articles when publishedOnly is set.
func (r *GormRepository) ArticleExists(ctx context.Context, articleID uint, publishedOnly bool) (bool, error) {
	query := r.db.WithContext(ctx).Model(&article.Article{}).Where("id = ?", articleID)
	if publishedOnly {
		query = query.Where("published = ?", true)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		r.logError(logrus.Fields{"article_id": articleID}, err, "checking article existence")
		return false, eris.Wrap(err, "checking article existence")
	}

	return count > 0, nil
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
