package http

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/restaurant"
)

type restaurantCreateBody struct {
	_           struct{} `additionalProperties:"true"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Address     string   `json:"address,omitempty"`
	Latitude    string   `json:"latitude,omitempty" doc:"Decimal degrees; defaults to central London"`
	Longitude   string   `json:"longitude,omitempty" doc:"Decimal degrees; defaults to central London"`
	CuisineType string   `json:"cuisine_type,omitempty" enum:"washoku,sushi,ramen,izakaya,other"`
	PriceRange  string   `json:"price_range,omitempty" enum:"budget,moderate,expensive,luxury"`
	Status      string   `json:"status,omitempty" enum:"published,unpublished,draft,deleted"`
	Website     string   `json:"website,omitempty"`
	Phone       string   `json:"phone,omitempty"`
}

type restaurantPatchBody struct {
	_           struct{} `additionalProperties:"true"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Address     *string  `json:"address,omitempty"`
	Latitude    *string  `json:"latitude,omitempty"`
	Longitude   *string  `json:"longitude,omitempty"`
	CuisineType *string  `json:"cuisine_type,omitempty" enum:"washoku,sushi,ramen,izakaya,other"`
	PriceRange  *string  `json:"price_range,omitempty" enum:"budget,moderate,expensive,luxury"`
	Status      *string  `json:"status,omitempty" enum:"published,unpublished,draft,deleted"`
	Website     *string  `json:"website,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
}

type listRestaurantsInput struct {
	Status string `query:"status" enum:"published,unpublished,draft,deleted" doc:"Only return restaurants with this status"`
}

type restaurantIDInput struct {
	ID uint `path:"id"`
}

type createRestaurantInput struct {
	Body restaurantCreateBody
}

type updateRestaurantInput struct {
	ID   uint `path:"id"`
	Body restaurantPatchBody
}

type updateRestaurantStatusInput struct {
	ID   uint `path:"id"`
	Body struct {
		Status string `json:"status" enum:"published,unpublished,draft,deleted"`
	}
}

type restaurantResponse struct {
	Body *restaurant.Restaurant
}

type restaurantListResponse struct {
	Body []restaurant.Restaurant
}

func (s *Server) registerRestaurantRoutes() {
	huma.Get(s.api, "/api/restaurants", s.listRestaurantsHandler, apiOperation("List restaurants", "restaurants", accessPublic))
	huma.Get(s.api, "/api/restaurants/published", s.listPublishedRestaurantsHandler, apiOperation("List published restaurants", "restaurants", accessPublic))
	huma.Get(s.api, "/api/restaurants/{id}", s.getRestaurantHandler, apiOperation("Fetch restaurant", "restaurants", accessPublic))
	huma.Post(s.api, "/api/restaurants", s.createRestaurantHandler, apiOperation("Create restaurant", "restaurants", accessAdmin), created())
	huma.Patch(s.api, "/api/restaurants/{id}", s.updateRestaurantHandler, apiOperation("Update restaurant", "restaurants", accessAdmin))
	huma.Patch(s.api, "/api/restaurants/{id}/status", s.updateRestaurantStatusHandler, apiOperation("Change restaurant status", "restaurants", accessAdmin))
}

func (s *Server) listRestaurantsHandler(ctx context.Context, input *listRestaurantsInput) (*restaurantListResponse, error) {
	restaurants, err := s.restaurants.List(ctx, input.Status)
	if err != nil {
		return nil, s.domainError(ctx, err, "listing restaurants", logrus.Fields{"status": input.Status})
	}

	return &restaurantListResponse{Body: restaurants}, nil
}

func (s *Server) listPublishedRestaurantsHandler(ctx context.Context, _ *struct{}) (*restaurantListResponse, error) {
	restaurants, err := s.restaurants.ListPublished(ctx)
	if err != nil {
		return nil, s.domainError(ctx, err, "listing published restaurants", nil)
	}

	return &restaurantListResponse{Body: restaurants}, nil
}

func (s *Server) getRestaurantHandler(ctx context.Context, input *restaurantIDInput) (*restaurantResponse, error) {
	found, err := s.restaurants.Get(ctx, input.ID)
	if err != nil {
		return nil, s.domainError(ctx, err, "loading restaurant", logrus.Fields{"restaurant_id": input.ID})
	}

	return &restaurantResponse{Body: found}, nil
}

func (s *Server) createRestaurantHandler(ctx context.Context, input *createRestaurantInput) (*restaurantResponse, error) {
	body := input.Body
	saved, err := s.restaurants.Create(ctx, restaurant.Draft{
		Name:        body.Name,
		Description: body.Description,
		Address:     body.Address,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		CuisineType: body.CuisineType,
		PriceRange:  body.PriceRange,
		Status:      body.Status,
		Website:     body.Website,
		Phone:       body.Phone,
	})
	if err != nil {
		return nil, s.domainError(ctx, err, "creating restaurant", logrus.Fields{"name": body.Name})
	}

	return &restaurantResponse{Body: saved}, nil
}

func (s *Server) updateRestaurantHandler(ctx context.Context, input *updateRestaurantInput) (*restaurantResponse, error) {
	body := input.Body
	saved, err := s.restaurants.Update(ctx, input.ID, restaurant.Patch{
		Name:        body.Name,
		Description: body.Description,
		Address:     body.Address,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		CuisineType: body.CuisineType,
		PriceRange:  body.PriceRange,
		Status:      body.Status,
		Website:     body.Website,
		Phone:       body.Phone,
	})
	if err != nil {
		return nil, s.domainError(ctx, err, "updating restaurant", logrus.Fields{"restaurant_id": input.ID})
	}

	return &restaurantResponse{Body: saved}, nil
}

func (s *Server) updateRestaurantStatusHandler(ctx context.Context, input *updateRestaurantStatusInput) (*restaurantResponse, error) {
	saved, err := s.restaurants.UpdateStatus(ctx, input.ID, input.Body.Status)
	if err != nil {
		return nil, s.domainError(ctx, err, "updating restaurant status", logrus.Fields{"restaurant_id": input.ID, "status": input.Body.Status})
	}

	return &restaurantResponse{Body: saved}, nil
}
