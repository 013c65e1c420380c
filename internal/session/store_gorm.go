package session

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GormStore persists sessions in the application database.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore constructs a database-backed session store.
func NewGormStore(db *gorm.DB, logger *logrus.Logger) (*GormStore, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormStore{db: db, logger: logger, now: time.Now}, nil
}

// Create stores a new session.
func (s *GormStore) Create(ctx context.Context, session *Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return eris.New("session with id is required")
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		s.logError(logrus.Fields{"user_id": session.UserID}, err, "creating session")
		return eris.Wrap(err, "creating session")
	}

	return nil
}

// Get retrieves a session by id.
func (s *GormStore) Get(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logError(nil, err, "fetching session")
		return nil, eris.Wrap(err, "fetching session")
	}

	if session.IsExpired(s.now()) {
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// Delete removes a session by id.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Session{}).Error; err != nil {
		s.logError(nil, err, "deleting session")
		return eris.Wrap(err, "deleting session")
	}

	return nil
}

// DeleteExpired removes every session whose expiry lies before now.
func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{})
	if result.Error != nil {
		s.logError(nil, result.Error, "deleting expired sessions")
		return 0, eris.Wrap(result.Error, "deleting expired sessions")
	}

	return result.RowsAffected, nil
}

func (s *GormStore) logError(fields logrus.Fields, err error, message string) {
	if s.logger == nil {
		return
	}

	entry := s.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
