package bookmark

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/article"
	"washoku/app/internal/db"
	"washoku/app/internal/user"
)

// Bookmark records that a user saved an article.
type Bookmark struct {
	ID        uint             `gorm:"primaryKey"`
	UserID    uint             `gorm:"not null;uniqueIndex:idx_bookmarks_user_article,priority:1"`
	ArticleID uint             `gorm:"not null;uniqueIndex:idx_bookmarks_user_article,priority:2;index:idx_bookmarks_article_id"`
	User      *user.User       `gorm:"constraint:OnDelete:CASCADE"`
	Article   *article.Article `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"not null"`
}

// TableName defines the table name for the Bookmark model.
func (Bookmark) TableName() string {
	return "bookmarks"
}

// Migrate applies the bookmarks schema. The users and articles tables must
// already exist.
func Migrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger) error {
	return db.AutoMigrate(ctx, gormDB, logger, "bookmark.migrate", &Bookmark{})
}
