package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/i18n"
)

type addBookmarkInput struct {
	Body struct {
		ArticleID uint `json:"articleId" minimum:"1"`
	}
}

type bookmarkArticleInput struct {
	ArticleID uint `path:"articleId"`
}

type bookmarkResponse struct {
	Status int
	Body   bookmarkView
}

type bookmarkListResponse struct {
	Body []bookmarkView
}

func (s *Server) registerBookmarkRoutes() {
	huma.Get(s.api, "/api/bookmarks", s.listBookmarksHandler, apiOperation("List bookmarks", "bookmarks", accessUser))
	huma.Post(s.api, "/api/bookmarks", s.addBookmarkHandler, apiOperation("Bookmark an article", "bookmarks", accessUser), created())
	huma.Delete(s.api, "/api/bookmarks/{articleId}", s.removeBookmarkHandler, apiOperation("Remove bookmark", "bookmarks", accessUser))
}

func (s *Server) listBookmarksHandler(ctx context.Context, _ *struct{}) (*bookmarkListResponse, error) {
	current := UserFromContext(ctx)
	viewer := s.viewer(ctx)

	bookmarks, err := s.bookmarks.List(ctx, viewer, current.ID)
	if err != nil {
		return nil, s.domainError(ctx, err, "listing bookmarks", logrus.Fields{"user_id": current.ID})
	}

	views := make([]bookmarkView, 0, len(bookmarks))
	for i := range bookmarks {
		views = append(views, newBookmarkView(&bookmarks[i], viewer))
	}

	return &bookmarkListResponse{Body: views}, nil
}

// addBookmarkHandler answers 201 for a new bookmark and 200 when the article
// was already bookmarked.
func (s *Server) addBookmarkHandler(ctx context.Context, input *addBookmarkInput) (*bookmarkResponse, error) {
	current := UserFromContext(ctx)
	fields := logrus.Fields{"user_id": current.ID, "article_id": input.Body.ArticleID}

	viewer := s.viewer(ctx)

	saved, createdNow, err := s.bookmarks.Add(ctx, viewer, current.ID, input.Body.ArticleID)
	if err != nil {
		return nil, s.domainError(ctx, err, "adding bookmark", fields)
	}

	status := stdhttp.StatusOK
	if createdNow {
		status = stdhttp.StatusCreated
	}

	return &bookmarkResponse{Status: status, Body: newBookmarkView(saved, viewer)}, nil
}

func (s *Server) removeBookmarkHandler(ctx context.Context, input *bookmarkArticleInput) (*messageResponse, error) {
	current := UserFromContext(ctx)

	if err := s.bookmarks.Remove(ctx, current.ID, input.ArticleID); err != nil {
		return nil, s.domainError(ctx, err, "removing bookmark", logrus.Fields{"user_id": current.ID, "article_id": input.ArticleID})
	}

	return &messageResponse{Body: messageBody{Message: i18n.Text(LocaleFromContext(ctx), i18n.BookmarkRemoved)}}, nil
}
