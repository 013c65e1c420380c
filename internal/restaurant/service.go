package restaurant

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Service defines the restaurant directory operations.
type Service interface {
	List(ctx context.Context, status string) ([]Restaurant, error)
	ListPublished(ctx context.Context) ([]Restaurant, error)
	Get(ctx context.Context, id uint) (*Restaurant, error)
	Create(ctx context.Context, draft Draft) (*Restaurant, error)
	Update(ctx context.Context, id uint, patch Patch) (*Restaurant, error)
	UpdateStatus(ctx context.Context, id uint, status string) (*Restaurant, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

var (
	// ErrNotFound indicates the restaurant does not exist.
	ErrNotFound = eris.New("restaurant not found")
	// ErrInvalidInput indicates a restaurant field failed validation.
	ErrInvalidInput = eris.New("invalid restaurant input")
)

// Draft carries the fields of a new restaurant. Empty enum and coordinate
// fields fall back to their defaults.
type Draft struct {
	Name        string
	Description string
	Address     string
	Latitude    string
	Longitude   string
	CuisineType string
	PriceRange  string
	Status      string
	Website     string
	Phone       string
}

// Patch carries a partial restaurant update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	Address     *string
	Latitude    *string
	Longitude   *string
	CuisineType *string
	PriceRange  *string
	Status      *string
	Website     *string
	Phone       *string
}

type service struct {
	repo      Repository
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService wires the restaurant service with its repository.
func NewService(repo Repository, logger *logrus.Logger, hub *sentry.Hub) (Service, error) {
	if repo == nil {
		return nil, eris.New("restaurant repository is required")
	}

	return &service{repo: repo, logger: logger, sentryHub: hub}, nil
}

func (s *service) List(ctx context.Context, status string) ([]Restaurant, error) {
	var filter Status
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		parsed, err := ParseStatus(trimmed)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}

	restaurants, err := s.repo.List(ctx, filter)
	if err != nil {
		s.recordError(logrus.Fields{"status": filter}, err, "listing restaurants")
		return nil, eris.Wrap(err, "listing restaurants")
	}

	return restaurants, nil
}

func (s *service) ListPublished(ctx context.Context) ([]Restaurant, error) {
	return s.List(ctx, string(StatusPublished))
}

func (s *service) Get(ctx context.Context, id uint) (*Restaurant, error) {
	restaurant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"restaurant_id": id}, err, "loading restaurant")
		return nil, eris.Wrapf(err, "loading restaurant: %d", id)
	}
	if restaurant == nil {
		return nil, eris.Wrapf(ErrNotFound, "restaurant %d", id)
	}

	return restaurant, nil
}

func (s *service) Create(ctx context.Context, draft Draft) (*Restaurant, error) {
	restaurant := &Restaurant{
		Name:        strings.TrimSpace(draft.Name),
		Description: draft.Description,
		Address:     strings.TrimSpace(draft.Address),
		Latitude:    orDefault(draft.Latitude, DefaultLatitude),
		Longitude:   orDefault(draft.Longitude, DefaultLongitude),
		CuisineType: Cuisine(orDefault(draft.CuisineType, string(CuisineWashoku))),
		PriceRange:  PriceRange(orDefault(draft.PriceRange, string(PriceModerate))),
		Status:      Status(orDefault(draft.Status, string(StatusDraft))),
		Website:     strings.TrimSpace(draft.Website),
		Phone:       strings.TrimSpace(draft.Phone),
	}

	if err := validate(restaurant); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, restaurant); err != nil {
		s.recordError(logrus.Fields{"name": restaurant.Name}, err, "creating restaurant")
		return nil, eris.Wrap(err, "creating restaurant")
	}

	return restaurant, nil
}

func (s *service) Update(ctx context.Context, id uint, patch Patch) (*Restaurant, error) {
	restaurant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	applyString(&restaurant.Name, patch.Name, true)
	applyString(&restaurant.Description, patch.Description, false)
	applyString(&restaurant.Address, patch.Address, true)
	applyString(&restaurant.Latitude, patch.Latitude, true)
	applyString(&restaurant.Longitude, patch.Longitude, true)
	applyString(&restaurant.Website, patch.Website, true)
	applyString(&restaurant.Phone, patch.Phone, true)
	if patch.CuisineType != nil {
		restaurant.CuisineType = Cuisine(strings.TrimSpace(*patch.CuisineType))
	}
	if patch.PriceRange != nil {
		restaurant.PriceRange = PriceRange(strings.TrimSpace(*patch.PriceRange))
	}
	if patch.Status != nil {
		restaurant.Status = Status(strings.TrimSpace(*patch.Status))
	}

	if err := validate(restaurant); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, restaurant); err != nil {
		s.recordError(logrus.Fields{"restaurant_id": id}, err, "updating restaurant")
		return nil, eris.Wrapf(err, "updating restaurant: %d", id)
	}

	return restaurant, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uint, status string) (*Restaurant, error) {
	parsed, err := ParseStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, err
	}

	found, err := s.repo.UpdateStatus(ctx, id, parsed)
	if err != nil {
		s.recordError(logrus.Fields{"restaurant_id": id}, err, "updating restaurant status")
		return nil, eris.Wrapf(err, "updating restaurant status: %d", id)
	}
	if !found {
		return nil, eris.Wrapf(ErrNotFound, "restaurant %d", id)
	}

	return s.Get(ctx, id)
}

func (s *service) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.recordError(nil, err, "counting restaurants")
		return nil, eris.Wrap(err, "counting restaurants")
	}
	return counts, nil
}

func validate(r *Restaurant) error {
	if r.Name == "" {
		return eris.Wrap(ErrInvalidInput, "name is required")
	}
	if r.Address == "" {
		return eris.Wrap(ErrInvalidInput, "address is required")
	}

	var err error
	if r.Latitude, err = validateCoordinate(r.Latitude, 90, "latitude"); err != nil {
		return err
	}
	if r.Longitude, err = validateCoordinate(r.Longitude, 180, "longitude"); err != nil {
		return err
	}
	if _, err := ParseCuisine(string(r.CuisineType)); err != nil {
		return err
	}
	if _, err := ParsePriceRange(string(r.PriceRange)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}

	return nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func applyString(target *string, value *string, trim bool) {
	if value == nil {
		return
	}
	if trim {
		*target = strings.TrimSpace(*value)
		return
	}
	*target = *value
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
