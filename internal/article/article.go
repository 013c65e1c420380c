package article

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/db"
	"washoku/app/internal/restaurant"
	"washoku/app/internal/user"
)

// Type distinguishes the editorial formats.
type Type string

const (
	TypeReview Type = "review"
	TypeList   Type = "list"
	TypeEssay  Type = "essay"
)

// Types lists every accepted article type.
var Types = []Type{TypeReview, TypeList, TypeEssay}

// ParseType validates an article type.
func ParseType(raw string) (Type, error) {
	for _, t := range Types {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidInput, "unknown article type %q", raw)
}

// Article is an editorial piece. Content holds the serialised rich-text
// document exactly as stored; use DecodeContent to read it back.
type Article struct {
	ID          uint                `gorm:"primaryKey"`
	Title       string              `gorm:"type:text;not null"`
	Slug        string              `gorm:"size:255;uniqueIndex:idx_articles_slug;not null"`
	Content     string              `gorm:"type:text;not null"`
	Excerpt     string              `gorm:"type:text;not null"`
	CoverImage  string              `gorm:"type:text;not null"`
	AuthorID    uint                `gorm:"not null;index:idx_articles_author_id"`
	Author      *user.User          `gorm:"foreignKey:AuthorID"`
	Published   bool                `gorm:"not null;default:false;index:idx_articles_published"`
	Type        Type                `gorm:"size:16;not null;index:idx_articles_type"`
	Restaurants []ArticleRestaurant `gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time           `gorm:"not null;index:idx_articles_created_at"`
	UpdatedAt   time.Time           `gorm:"not null"`
}

// TableName defines the table name for the Article model.
func (Article) TableName() string {
	return "articles"
}

// ArticleRestaurant links an article to a restaurant it covers, with a
// display position and a per-article blurb.
type ArticleRestaurant struct {
	ArticleID    uint                   `gorm:"primaryKey;autoIncrement:false"`
	RestaurantID uint                   `gorm:"primaryKey;autoIncrement:false;index:idx_article_restaurants_restaurant_id"`
	Order        int                    `gorm:"column:sort_order;not null;default:0"`
	Description  string                 `gorm:"type:text;not null"`
	Restaurant   *restaurant.Restaurant `gorm:"foreignKey:RestaurantID"`
}

// TableName defines the table name for the ArticleRestaurant model.
func (ArticleRestaurant) TableName() string {
	return "article_restaurants"
}

// Migrate applies the articles and article_restaurants schema. The users and
// restaurants tables must already exist.
func Migrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger) error {
	return db.AutoMigrate(ctx, gormDB, logger, "article.migrate", &Article{}, &ArticleRestaurant{})
}
