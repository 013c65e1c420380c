package newsletter

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/db"
)

// Subscription is a newsletter signup. Confirmed is recorded but no
// confirmation workflow sets it yet.
type Subscription struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"size:320;uniqueIndex:idx_newsletters_email;not null"`
	Confirmed bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName defines the table name for the Subscription model.
func (Subscription) TableName() string {
	return "newsletters"
}

// Migrate applies the newsletters schema.
func Migrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger) error {
	return db.AutoMigrate(ctx, gormDB, logger, "newsletter.migrate", &Subscription{})
}
