package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"

	"washoku/app/internal/newsletter"
)

type subscribeInput struct {
	Body struct {
		Email string `json:"email" maxLength:"320"`
	}
}

type subscriptionResponse struct {
	Status int
	Body   subscriptionView
}

type subscriptionListResponse struct {
	Body []subscriptionView
}

func (s *Server) registerNewsletterRoutes() {
	huma.Post(s.api, "/api/newsletter", s.subscribeHandler, apiOperation("Subscribe to the newsletter", "newsletter", accessPublic), created(), rateLimited())
	huma.Get(s.api, "/api/newsletters", s.listSubscriptionsHandler, apiOperation("List newsletter subscriptions", "admin", accessAdmin))
}

func (s *Server) subscribeHandler(ctx context.Context, input *subscribeInput) (*subscriptionResponse, error) {
	subscription, createdNow, err := s.newsletter.Subscribe(ctx, input.Body.Email)
	if err != nil {
		return nil, s.domainError(ctx, err, "subscribing to newsletter", nil)
	}

	status := stdhttp.StatusOK
	if createdNow {
		status = stdhttp.StatusCreated
	}

	return &subscriptionResponse{Status: status, Body: newSubscriptionView(subscription)}, nil
}

func (s *Server) listSubscriptionsHandler(ctx context.Context, _ *struct{}) (*subscriptionListResponse, error) {
	subscriptions, err := s.newsletter.List(ctx)
	if err != nil {
		return nil, s.domainError(ctx, err, "listing subscriptions", nil)
	}

	return &subscriptionListResponse{Body: newSubscriptionViews(subscriptions)}, nil
}

func newSubscriptionViews(subscriptions []newsletter.Subscription) []subscriptionView {
	views := make([]subscriptionView, 0, len(subscriptions))
	for i := range subscriptions {
		views = append(views, newSubscriptionView(&subscriptions[i]))
	}
	return views
}
