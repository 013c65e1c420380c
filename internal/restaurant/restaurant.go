package restaurant

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/db"
)

// Cuisine classifies the kind of food a restaurant serves.
type Cuisine string

const (
	CuisineWashoku Cuisine = "washoku"
	CuisineSushi   Cuisine = "sushi"
	CuisineRamen   Cuisine = "ramen"
	CuisineIzakaya Cuisine = "izakaya"
	CuisineOther   Cuisine = "other"
)

// Cuisines lists every accepted cuisine value.
var Cuisines = []Cuisine{CuisineWashoku, CuisineSushi, CuisineRamen, CuisineIzakaya, CuisineOther}

// PriceRange is a coarse price band.
type PriceRange string

const (
	PriceBudget    PriceRange = "budget"
	PriceModerate  PriceRange = "moderate"
	PriceExpensive PriceRange = "expensive"
	PriceLuxury    PriceRange = "luxury"
)

// PriceRanges lists every accepted price band.
var PriceRanges = []PriceRange{PriceBudget, PriceModerate, PriceExpensive, PriceLuxury}

// Status controls directory visibility. StatusDeleted is a soft delete.
type Status string

const (
	StatusPublished   Status = "published"
	StatusUnpublished Status = "unpublished"
	StatusDraft       Status = "draft"
	StatusDeleted     Status = "deleted"
)

// Statuses lists every accepted status value.
var Statuses = []Status{StatusPublished, StatusUnpublished, StatusDraft, StatusDeleted}

// Central London, used when a restaurant is saved without coordinates.
const (
	DefaultLatitude  = "51.5074"
	DefaultLongitude = "-0.1278"
)

// Restaurant is a directory entry with a map location.
type Restaurant struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"type:text;not null" json:"name"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Address     string     `gorm:"type:text;not null" json:"address"`
	Latitude    string     `gorm:"type:text;not null" json:"latitude"`
	Longitude   string     `gorm:"type:text;not null" json:"longitude"`
	CuisineType Cuisine    `gorm:"size:32;not null;default:washoku" json:"cuisine_type"`
	PriceRange  PriceRange `gorm:"size:32;not null;default:moderate" json:"price_range"`
	Status      Status     `gorm:"size:32;not null;default:draft;index:idx_restaurants_status" json:"status"`
	Website     string     `gorm:"type:text" json:"website"`
	Phone       string     `gorm:"type:text" json:"phone"`
	CreatedAt   time.Time  `gorm:"not null" json:"createdAt"`
}

// TableName defines the table name for the Restaurant model.
func (Restaurant) TableName() string {
	return "restaurants"
}

// Migrate applies the restaurants schema.
func Migrate(ctx context.Context, gormDB *gorm.DB, logger *logrus.Logger) error {
	return db.AutoMigrate(ctx, gormDB, logger, "restaurant.migrate", &Restaurant{})
}

// ParseCuisine validates a cuisine value.
func ParseCuisine(raw string) (Cuisine, error) {
	for _, c := range Cuisines {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidInput, "unknown cuisine type %q", raw)
}

// ParsePriceRange validates a price range value.
func ParsePriceRange(raw string) (PriceRange, error) {
	for _, p := range PriceRanges {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidInput, "unknown price range %q", raw)
}

// ParseStatus validates a status value.
func ParseStatus(raw string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidInput, "unknown status %q", raw)
}

func validateCoordinate(raw string, limit float64, field string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) {
		return "", eris.Wrapf(ErrInvalidInput, "%s %q is not a decimal number", field, raw)
	}
	if value < -limit || value > limit {
		return "", eris.Wrapf(ErrInvalidInput, "%s %s is out of range", field, trimmed)
	}
	return trimmed, nil
}
