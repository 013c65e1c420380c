package bookmark

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/article"
	"washoku/app/internal/db"
)

// Service defines bookmark operations for signed-in users. Non-admin viewers
// neither see nor add bookmarks of unpublished articles.
type Service interface {
	List(ctx context.Context, viewer article.Viewer, userID uint) ([]Bookmark, error)
	// Add saves the article for the user. created is false when the bookmark already existed.
	Add(ctx context.Context, viewer article.Viewer, userID, articleID uint) (bookmark *Bookmark, created bool, err error)
	Remove(ctx context.Context, userID, articleID uint) error
}

// ErrArticleNotFound indicates the bookmarked article does not exist or is not
// visible to the caller.
var ErrArticleNotFound = eris.New("article not found")

type service struct {
	repo      Repository
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService wires the bookmark service with its repository.
func NewService(repo Repository, logger *logrus.Logger, hub *sentry.Hub) (Service, error) {
	if repo == nil {
		return nil, eris.New("bookmark repository is required")
	}

	return &service{repo: repo, logger: logger, sentryHub: hub}, nil
}

func (s *service) List(ctx context.Context, viewer article.Viewer, userID uint) ([]Bookmark, error) {
	if userID == 0 {
		return nil, eris.New("user id is required")
	}

	bookmarks, err := s.repo.ListByUser(ctx, userID, !viewer.IsAdmin)
	if err != nil {
		s.recordError(logrus.Fields{"user_id": userID}, err, "listing bookmarks")
		return nil, eris.Wrap(err, "listing bookmarks")
	}

	return bookmarks, nil
}

func (s *service) Add(ctx context.Context, viewer article.Viewer, userID, articleID uint) (*Bookmark, bool, error) {
	if userID == 0 {
		return nil, false, eris.New("user id is required")
	}

	// Visibility is checked first so an existing bookmark of an article that
	// was later unpublished is not echoed back.
	exists, err := s.repo.ArticleExists(ctx, articleID, !viewer.IsAdmin)
	if err != nil {
		s.recordError(logrus.Fields{"article_id": articleID}, err, "checking bookmarked article")
		return nil, false, eris.Wrap(err, "checking bookmarked article")
	}
	if !exists {
		return nil, false, eris.Wrapf(ErrArticleNotFound, "article %d", articleID)
	}

	existing, err := s.repo.Get(ctx, userID, articleID)
	if err != nil {
		s.recordError(logrus.Fields{"user_id": userID, "article_id": articleID}, err, "loading bookmark")
		return nil, false, eris.Wrap(err, "loading bookmark")
	}
	if existing != nil {
		return existing, false, nil
	}

	bookmark := &Bookmark{UserID: userID, ArticleID: articleID}
	if err := s.repo.Create(ctx, bookmark); err != nil {
		if db.IsUniqueViolation(err) {
			// Lost a race with a concurrent add of the same pair.
			existing, getErr := s.repo.Get(ctx, userID, articleID)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		s.recordError(logrus.Fields{"user_id": userID, "article_id": articleID}, err, "creating bookmark")
		return nil, false, eris.Wrap(err, "creating bookmark")
	}

	created, err := s.repo.Get(ctx, userID, articleID)
	if err != nil || created == nil {
		return bookmark, true, nil
	}

	return created, true, nil
}

func (s *service) Remove(ctx context.Context, userID, articleID uint) error {
	if userID == 0 {
		return eris.New("user id is required")
	}

	if err := s.repo.Delete(ctx, userID, articleID); err != nil {
		s.recordError(logrus.Fields{"user_id": userID, "article_id": articleID}, err, "removing bookmark")
		return eris.Wrap(err, "removing bookmark")
	}

	return nil
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
