package migrations

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/article"
	"washoku/app/internal/bookmark"
	"washoku/app/internal/newsletter"
	"washoku/app/internal/restaurant"
	"washoku/app/internal/session"
	"washoku/app/internal/user"
)

type step struct {
	name    string
	migrate func(context.Context, *gorm.DB, *logrus.Logger) error
}

// Steps run in dependency order: referenced tables first.
var steps = []step{
	{name: "users", migrate: user.Migrate},
	{name: "sessions", migrate: session.Migrate},
	{name: "restaurants", migrate: restaurant.Migrate},
	{name: "articles", migrate: article.Migrate},
	{name: "bookmarks", migrate: bookmark.Migrate},
	{name: "newsletters", migrate: newsletter.Migrate},
}

// Apply brings the database schema up to date and logs progress.
func Apply(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "migrations"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying schema")
	}

	for _, s := range steps {
		if err := s.migrate(ctx, db, logger); err != nil {
			if logger != nil {
				logger.WithFields(logFields).WithField("step", s.name).WithField("error", err.Error()).Error("schema migration failed")
			}
			return eris.Wrapf(err, "migrating %s", s.name)
		}
	}

	if logger != nil {
		logger.WithFields(logFields).WithField("steps", len(steps)).Info("schema migration complete")
	}

	return nil
}
