package http

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/article"
	"washoku/app/internal/i18n"
)

type restaurantLinkBody struct {
	_           struct{} `additionalProperties:"true"`
	ID          uint     `json:"id" minimum:"1" doc:"Restaurant id"`
	Order       *int     `json:"order,omitempty" doc:"Display position; defaults to the position in the list"`
	Description string   `json:"description,omitempty"`
}

type articleCreateBody struct {
	_           struct{}             `additionalProperties:"true"`
	Title       string               `json:"title"`
	Slug        string               `json:"slug"`
	Content     document             `json:"content"`
	Excerpt     string               `json:"excerpt,omitempty"`
	CoverImage  string               `json:"coverImage,omitempty"`
	Published   bool                 `json:"published,omitempty"`
	Type        string               `json:"type" enum:"review,list,essay"`
	Restaurants []restaurantLinkBody `json:"restaurants,omitempty"`
}

type articlePatchBody struct {
	_           struct{}              `additionalProperties:"true"`
	Title       *string               `json:"title,omitempty"`
	Slug        *string               `json:"slug,omitempty"`
	Content     document              `json:"content,omitempty"`
	Excerpt     *string               `json:"excerpt,omitempty"`
	CoverImage  *string               `json:"coverImage,omitempty"`
	Published   *bool                 `json:"published,omitempty"`
	Type        *string               `json:"type,omitempty" enum:"review,list,essay"`
	Restaurants *[]restaurantLinkBody `json:"restaurants,omitempty" doc:"Replaces every association when present, including with an empty list"`
}

type listArticlesInput struct {
	Type string `query:"type" enum:"review,list,essay" doc:"Only return articles of this type"`
}

type articleSlugInput struct {
	Slug string `path:"slug"`
}

type articleIDInput struct {
	ID uint `path:"id"`
}

type createArticleInput struct {
	Body articleCreateBody
}

type updateArticleInput struct {
	ID   uint `path:"id"`
	Body articlePatchBody
}

type articleResponse struct {
	Body articleView
}

type articleListResponse struct {
	Body []articleView
}

type messageResponse struct {
	Body messageBody
}

func (s *Server) registerArticleRoutes() {
	huma.Get(s.api, "/api/articles", s.listArticlesHandler, apiOperation("List articles", "articles", accessPublic))
	huma.Get(s.api, "/api/articles/id/{id}", s.getArticleByIDHandler, apiOperation("Fetch article by id", "articles", accessPublic))
	huma.Get(s.api, "/api/articles/{slug}", s.getArticleHandler, apiOperation("Fetch article by slug", "articles", accessPublic))
	huma.Post(s.api, "/api/articles", s.createArticleHandler, apiOperation("Create article", "articles", accessAdmin), created())
	huma.Patch(s.api, "/api/articles/{id}", s.updateArticleHandler, apiOperation("Update article", "articles", accessAdmin))
	huma.Delete(s.api, "/api/articles/{id}", s.deleteArticleHandler, apiOperation("Delete article", "articles", accessAdmin))
}

func (s *Server) viewer(ctx context.Context) article.Viewer {
	return article.Viewer{IsAdmin: isAdmin(ctx)}
}

func (s *Server) listArticlesHandler(ctx context.Context, input *listArticlesInput) (*articleListResponse, error) {
	viewer := s.viewer(ctx)
	articles, err := s.articles.List(ctx, viewer, input.Type)
	if err != nil {
		return nil, s.domainError(ctx, err, "listing articles", logrus.Fields{"type": input.Type})
	}

	return &articleListResponse{Body: newArticleViews(articles, viewer)}, nil
}

func (s *Server) getArticleHandler(ctx context.Context, input *articleSlugInput) (*articleResponse, error) {
	viewer := s.viewer(ctx)
	found, err := s.articles.GetBySlug(ctx, viewer, input.Slug)
	if err != nil {
		return nil, s.domainError(ctx, err, "loading article", logrus.Fields{"slug": input.Slug})
	}

	return &articleResponse{Body: newArticleView(found, viewer)}, nil
}

func (s *Server) getArticleByIDHandler(ctx context.Context, input *articleIDInput) (*articleResponse, error) {
	viewer := s.viewer(ctx)
	found, err := s.articles.GetByID(ctx, viewer, input.ID)
	if err != nil {
		return nil, s.domainError(ctx, err, "loading article", logrus.Fields{"article_id": input.ID})
	}

	return &articleResponse{Body: newArticleView(found, viewer)}, nil
}

func (s *Server) createArticleHandler(ctx context.Context, input *createArticleInput) (*articleResponse, error) {
	author := UserFromContext(ctx)

	body := input.Body
	draft := article.Draft{
		Title:       body.Title,
		Slug:        body.Slug,
		Content:     body.Content.value(),
		Excerpt:     body.Excerpt,
		CoverImage:  body.CoverImage,
		Published:   body.Published,
		Type:        body.Type,
		Restaurants: restaurantLinks(body.Restaurants),
	}

	saved, err := s.articles.Create(ctx, author.ID, draft)
	if err != nil {
		return nil, s.domainError(ctx, err, "creating article", logrus.Fields{"slug": body.Slug})
	}

	return &articleResponse{Body: newArticleView(saved, s.viewer(ctx))}, nil
}

func (s *Server) updateArticleHandler(ctx context.Context, input *updateArticleInput) (*articleResponse, error) {
	body := input.Body
	patch := article.Patch{
		Title:      body.Title,
		Slug:       body.Slug,
		Content:    body.Content.value(),
		Excerpt:    body.Excerpt,
		CoverImage: body.CoverImage,
		Published:  body.Published,
		Type:       body.Type,
	}
	if body.Restaurants != nil {
		links := restaurantLinks(*body.Restaurants)
		patch.Restaurants = &links
	}

	saved, err := s.articles.Update(ctx, input.ID, patch)
	if err != nil {
		return nil, s.domainError(ctx, err, "updating article", logrus.Fields{"article_id": input.ID})
	}

	return &articleResponse{Body: newArticleView(saved, s.viewer(ctx))}, nil
}

func (s *Server) deleteArticleHandler(ctx context.Context, input *articleIDInput) (*messageResponse, error) {
	if err := s.articles.Delete(ctx, input.ID); err != nil {
		return nil, s.domainError(ctx, err, "deleting article", logrus.Fields{"article_id": input.ID})
	}

	return &messageResponse{Body: messageBody{Message: i18n.Text(LocaleFromContext(ctx), i18n.ArticleDeleted)}}, nil
}

func restaurantLinks(bodies []restaurantLinkBody) []article.RestaurantLink {
	links := make([]article.RestaurantLink, 0, len(bodies))
	for _, body := range bodies {
		links = append(links, article.RestaurantLink{
			RestaurantID: body.ID,
			Order:        body.Order,
			Description:  body.Description,
		})
	}
	return links
}
