package user

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/db"
)

// User is an account able to sign in. Admins may use the CMS.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:255;uniqueIndex:idx_users_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"`
	Email     string    `gorm:"size:255;uniqueIndex:idx_users_email;not null" json:"email"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"isAdmin"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// TableName defines the table name for the User model.
func (User) TableName() string {
	return "users"
}

// Migrate applies the users schema.
func Migrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger) error {
	return db.AutoMigrate(ctx, gormDB, logger, "user.migrate", &User{})
}
