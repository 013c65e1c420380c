package article

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"washoku/app/internal/llm"
)

// Service defines the editorial operations exposed to the API.
type Service interface {
	List(ctx context.Context, viewer Viewer, articleType string) ([]Article, error)
	GetBySlug(ctx context.Context, viewer Viewer, slug string) (*Article, error)
	GetByID(ctx context.Context, viewer Viewer, id uint) (*Article, error)
	Create(ctx context.Context, authorID uint, draft Draft) (*Article, error)
	Update(ctx context.Context, id uint, patch Patch) (*Article, error)
	Delete(ctx context.Context, id uint) error
	DraftExcerpt(ctx context.Context, title string, content any) (string, error)
	Count(ctx context.Context) (Counts, error)
}

var (
	// ErrNotFound indicates the article does not exist or is not visible to the caller.
	ErrNotFound = eris.New("article not found")
	// ErrDuplicateSlug indicates another article already uses the slug.
	ErrDuplicateSlug = eris.New("slug already exists")
	// ErrInvalidInput indicates an article field failed validation.
	ErrInvalidInput = eris.New("invalid article input")
)

const disallowedSlugCharacters = " \t\r\n/?#\"<>\\"

// Viewer describes who is reading. Only admins see unpublished articles.
type Viewer struct {
	IsAdmin bool
}

// RestaurantLink is a submitted association. A nil Order means "use the
// position in the submitted list".
type RestaurantLink struct {
	RestaurantID uint
	Order        *int
	Description  string
}

// Draft carries the fields of a new article.
type Draft struct {
	Title       string
	Slug        string
	Content     any
	Excerpt     string
	CoverImage  string
	Published   bool
	Type        string
	Restaurants []RestaurantLink
}

// Patch carries a partial article update. Nil fields are left unchanged; a
// non-nil Restaurants replaces every association, including with an empty list.
type Patch struct {
	Title       *string
	Slug        *string
	Content     any
	Excerpt     *string
	CoverImage  *string
	Published   *bool
	Type        *string
	Restaurants *[]RestaurantLink
}

type service struct {
	repo      Repository
	drafter   llm.ExcerptDrafter
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService wires the article service. The excerpt drafter is optional.
func NewService(repo Repository, drafter llm.ExcerptDrafter, logger *logrus.Logger, hub *sentry.Hub) (Service, error) {
	if repo == nil {
		return nil, eris.New("article repository is required")
	}

	return &service{repo: repo, drafter: drafter, logger: logger, sentryHub: hub}, nil
}

func (s *service) List(ctx context.Context, viewer Viewer, articleType string) ([]Article, error) {
	filter := ListFilter{PublishedOnly: !viewer.IsAdmin}

	if trimmed := strings.TrimSpace(articleType); trimmed != "" {
		parsed, err := ParseType(trimmed)
		if err != nil {
			return nil, err
		}
		filter.Type = parsed
	}

	articles, err := s.repo.List(ctx, filter)
	if err != nil {
		s.recordError(logrus.Fields{"type": filter.Type}, err, "listing articles")
		return nil, eris.Wrap(err, "listing articles")
	}

	return articles, nil
}

func (s *service) GetBySlug(ctx context.Context, viewer Viewer, slug string) (*Article, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, eris.Wrap(ErrNotFound, "empty slug")
	}

	article, err := s.repo.GetBySlug(ctx, trimmed)
	if err != nil {
		s.recordError(logrus.Fields{"slug": trimmed}, err, "loading article by slug")
		return nil, eris.Wrapf(err, "loading article: %s", trimmed)
	}

	return visible(article, viewer, trimmed)
}

func (s *service) GetByID(ctx context.Context, viewer Viewer, id uint) (*Article, error) {
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"article_id": id}, err, "loading article by id")
		return nil, eris.Wrapf(err, "loading article: %d", id)
	}

	return visible(article, viewer, id)
}

func (s *service) Create(ctx context.Context, authorID uint, draft Draft) (*Article, error) {
	if authorID == 0 {
		return nil, eris.New("author is required")
	}

	content, err := EncodeContent(draft.Content)
	if err != nil {
		return nil, err
	}

	articleType, err := ParseType(strings.TrimSpace(draft.Type))
	if err != nil {
		return nil, err
	}

	article := &Article{
		Title:      strings.TrimSpace(draft.Title),
		Slug:       strings.TrimSpace(draft.Slug),
		Content:    content,
		Excerpt:    draft.Excerpt,
		CoverImage: strings.TrimSpace(draft.CoverImage),
		AuthorID:   authorID,
		Published:  draft.Published,
		Type:       articleType,
	}

	if err := validate(article); err != nil {
		return nil, err
	}

	links, err := normalizeLinks(draft.Restaurants)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, article, links, true); err != nil {
		return nil, s.saveError(article, err)
	}

	return s.reload(ctx, article.ID)
}

func (s *service) Update(ctx context.Context, id uint, patch Patch) (*Article, error) {
	article, err := s.GetByID(ctx, Viewer{IsAdmin: true}, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		article.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Slug != nil {
		article.Slug = strings.TrimSpace(*patch.Slug)
	}
	if patch.Content != nil {
		content, err := EncodeContent(patch.Content)
		if err != nil {
			return nil, err
		}
		article.Content = content
	}
	if patch.Excerpt != nil {
		article.Excerpt = *patch.Excerpt
	}
	if patch.CoverImage != nil {
		article.CoverImage = strings.TrimSpace(*patch.CoverImage)
	}
	if patch.Published != nil {
		article.Published = *patch.Published
	}
	if patch.Type != nil {
		parsed, err := ParseType(strings.TrimSpace(*patch.Type))
		if err != nil {
			return nil, err
		}
		article.Type = parsed
	}

	if err := validate(article); err != nil {
		return nil, err
	}

	var links []ArticleRestaurant
	replaceLinks := patch.Restaurants != nil
	if replaceLinks {
		if links, err = normalizeLinks(*patch.Restaurants); err != nil {
			return nil, err
		}
	}

	article.Author = nil
	article.Restaurants = nil

	if err := s.repo.Save(ctx, article, links, replaceLinks); err != nil {
		return nil, s.saveError(article, err)
	}

	return s.reload(ctx, article.ID)
}

func (s *service) Delete(ctx context.Context, id uint) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"article_id": id}, err, "deleting article")
		return eris.Wrapf(err, "deleting article: %d", id)
	}
	if !deleted {
		return eris.Wrapf(ErrNotFound, "article %d", id)
	}

	return nil
}

func (s *service) DraftExcerpt(ctx context.Context, title string, content any) (string, error) {
	if s.drafter == nil {
		return "", llm.ErrNotConfigured
	}

	title = strings.TrimSpace(title)
	text := PlainText(content)
	if title == "" && text == "" {
		return "", eris.Wrap(ErrInvalidInput, "title or content is required to draft an excerpt")
	}

	excerpt, err := s.drafter.DraftExcerpt(ctx, title, text)
	if err != nil {
		s.recordError(logrus.Fields{"title": title}, err, "drafting excerpt")
		return "", eris.Wrap(err, "drafting excerpt")
	}

	return excerpt, nil
}

func (s *service) Count(ctx context.Context) (Counts, error) {
	counts, err := s.repo.Count(ctx)
	if err != nil {
		s.recordError(nil, err, "counting articles")
		return Counts{}, eris.Wrap(err, "counting articles")
	}
	return counts, nil
}

func (s *service) reload(ctx context.Context, id uint) (*Article, error) {
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"article_id": id}, err, "reloading saved article")
		return nil, eris.Wrapf(err, "reloading article: %d", id)
	}
	if article == nil {
		return nil, eris.Wrapf(ErrNotFound, "article %d vanished after save", id)
	}
	return article, nil
}

func (s *service) saveError(article *Article, err error) error {
	if eris.Is(err, ErrDuplicateSlug) || eris.Is(err, ErrInvalidInput) {
		return err
	}
	s.recordError(logrus.Fields{"slug": article.Slug}, err, "saving article")
	return eris.Wrap(err, "saving article")
}

func visible[K any](article *Article, viewer Viewer, key K) (*Article, error) {
	if article == nil || (!article.Published && !viewer.IsAdmin) {
		return nil, eris.Wrapf(ErrNotFound, "article %v", key)
	}
	return article, nil
}

func validate(article *Article) error {
	if article.Title == "" {
		return eris.Wrap(ErrInvalidInput, "title is required")
	}
	return ValidateSlug(article.Slug)
}

// ValidateSlug checks that a slug is usable in a URL path segment.
func ValidateSlug(slug string) error {
	if slug == "" {
		return eris.Wrap(ErrInvalidInput, "slug is required")
	}
	if strings.ContainsAny(slug, disallowedSlugCharacters) {
		return eris.Wrapf(ErrInvalidInput, "slug %q contains invalid characters", slug)
	}
	return nil
}

func normalizeLinks(links []RestaurantLink) ([]ArticleRestaurant, error) {
	rows := make([]ArticleRestaurant, 0, len(links))
	seen := make(map[uint]struct{}, len(links))

	for i, link := range links {
		if link.RestaurantID == 0 {
			return nil, eris.Wrapf(ErrInvalidInput, "restaurant at position %d has no id", i)
		}
		if _, dup := seen[link.RestaurantID]; dup {
			return nil, eris.Wrapf(ErrInvalidInput, "restaurant %d is listed more than once", link.RestaurantID)
		}
		seen[link.RestaurantID] = struct{}{}

		order := i
		if link.Order != nil {
			order = *link.Order
		}

		rows = append(rows, ArticleRestaurant{
			RestaurantID: link.RestaurantID,
			Order:        order,
			Description:  link.Description,
		})
	}

	return rows, nil
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
