package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/db"
)

var (
	// ErrSessionNotFound is returned when a session is not found in the store.
	ErrSessionNotFound = eris.New("session not found")
	// ErrSessionExpired is returned when the session exists but has expired.
	ErrSessionExpired = eris.New("session expired")
)

// Session is server-side authenticated state referenced by the signed cookie.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    uint      `gorm:"not null;index:idx_sessions_user_id"`
	ExpiresAt time.Time `gorm:"not null;index:idx_sessions_expires_at"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName defines the table name for the Session model.
func (Session) TableName() string {
	return "sessions"
}

// IsExpired reports whether the session expired before now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store defines the storage backends for sessions.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error
	// Get returns ErrSessionNotFound for unknown ids and ErrSessionExpired for stale ones.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes a session. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired purges sessions that expired before now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Migrate applies the sessions schema.
func Migrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger) error {
	return db.AutoMigrate(ctx, gormDB, logger, "session.migrate", &Session{})
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", eris.Wrap(err, "generating session id")
	}
	return hex.EncodeToString(buf), nil
}
