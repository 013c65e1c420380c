package http

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/restaurant"
)

type excerptInput struct {
	Body struct {
		Title   string   `json:"title,omitempty"`
		Content document `json:"content,omitempty"`
	}
}

type excerptResponse struct {
	Body struct {
		Excerpt string `json:"excerpt"`
	}
}

type statsResponse struct {
	Body struct {
		Articles struct {
			Total     int64 `json:"total"`
			Published int64 `json:"published"`
		} `json:"articles"`
		Restaurants map[restaurant.Status]int64 `json:"restaurants"`
		Users       int64                       `json:"users"`
		Newsletter  struct {
			Total     int64 `json:"total"`
			Confirmed int64 `json:"confirmed"`
		} `json:"newsletter"`
	}
}

func (s *Server) registerAdminRoutes() {
	huma.Get(s.api, "/api/admin/stats", s.statsHandler, apiOperation("Dashboard counters", "admin", accessAdmin))
	huma.Post(s.api, "/api/admin/excerpt", s.excerptHandler, apiOperation("Draft an article excerpt", "admin", accessAdmin))
}

func (s *Server) statsHandler(ctx context.Context, _ *struct{}) (*statsResponse, error) {
	resp := &statsResponse{}

	articleCounts, err := s.articles.Count(ctx)
	if err != nil {
		return nil, s.domainError(ctx, err, "counting articles", nil)
	}
	resp.Body.Articles.Total = articleCounts.Total
	resp.Body.Articles.Published = articleCounts.Published

	if resp.Body.Restaurants, err = s.restaurants.CountByStatus(ctx); err != nil {
		return nil, s.domainError(ctx, err, "counting restaurants", nil)
	}

	if resp.Body.Users, err = s.users.Count(ctx); err != nil {
		return nil, s.domainError(ctx, err, "counting users", nil)
	}

	if resp.Body.Newsletter.Total, err = s.newsletter.Count(ctx, false); err != nil {
		return nil, s.domainError(ctx, err, "counting subscriptions", nil)
	}
	if resp.Body.Newsletter.Confirmed, err = s.newsletter.Count(ctx, true); err != nil {
		return nil, s.domainError(ctx, err, "counting confirmed subscriptions", nil)
	}

	return resp, nil
}

func (s *Server) excerptHandler(ctx context.Context, input *excerptInput) (*excerptResponse, error) {
	excerpt, err := s.articles.DraftExcerpt(ctx, input.Body.Title, input.Body.Content.decoded())
	if err != nil {
		return nil, s.domainError(ctx, err, "drafting excerpt", logrus.Fields{"title": input.Body.Title})
	}

	resp := &excerptResponse{}
	resp.Body.Excerpt = excerpt
	return resp, nil
}
