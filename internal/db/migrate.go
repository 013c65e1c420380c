package db

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutoMigrate applies the schema for the provided models and logs progress under the given component name.
func AutoMigrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger, component string, models ...any) error {
	if gormDB == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": component}
	if logger != nil {
		logger.WithFields(logFields).Debug("applying schema")
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(models...); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("schema migration failed")
		}
		return eris.Wrapf(err, "auto migrating %s schema", component)
	}

	if logger != nil {
		logger.WithFields(logFields).Debug("schema migration complete")
	}

	return nil
}

// IsUniqueViolation reports whether err stems from a unique constraint on any supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if eris.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
