package http

import (
	"bytes"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/goccy/go-json"

	"washoku/app/internal/article"
	"washoku/app/internal/bookmark"
	"washoku/app/internal/newsletter"
	"washoku/app/internal/restaurant"
)

// document holds a rich-text document exactly as the client sent it, so
// numeric values are never routed through float64.
type document []byte

func (d *document) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

// Schema accepts any JSON value.
func (document) Schema(huma.Registry) *huma.Schema {
	return &huma.Schema{Description: "Rich-text document (TipTap JSON) or a pre-serialised string"}
}

// value returns what the article service should store: a pre-serialised
// string stays a string, anything else is passed on as raw JSON.
func (d document) value() any {
	trimmed := bytes.TrimSpace(d)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return text
		}
	}
	return json.RawMessage(trimmed)
}

// decoded parses the document into plain Go values for text extraction.
func (d document) decoded() any {
	switch value := d.value().(type) {
	case string:
		return article.DecodeContent(value)
	case json.RawMessage:
		return article.DecodeContent(string(value))
	default:
		return nil
	}
}

type authorView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

type articleRestaurantView struct {
	ID          uint                   `json:"id" doc:"Restaurant id"`
	Order       int                    `json:"order"`
	Description string                 `json:"description"`
	Restaurant  *restaurant.Restaurant `json:"restaurant,omitempty"`
}

type articleView struct {
	ID          uint                    `json:"id"`
	Title       string                  `json:"title"`
	Slug        string                  `json:"slug"`
	Content     any                     `json:"content"`
	Excerpt     string                  `json:"excerpt"`
	CoverImage  string                  `json:"coverImage"`
	AuthorID    uint                    `json:"authorId"`
	Author      *authorView             `json:"author,omitempty"`
	Published   bool                    `json:"published"`
	Type        article.Type            `json:"type"`
	Restaurants []articleRestaurantView `json:"restaurants"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

// newArticleView renders an article. Non-admin viewers only get the bodies of
// published restaurants; other links keep their id, order and description.
func newArticleView(a *article.Article, viewer article.Viewer) articleView {
	view := articleView{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Content:     article.DecodeContent(a.Content),
		Excerpt:     a.Excerpt,
		CoverImage:  a.CoverImage,
		AuthorID:    a.AuthorID,
		Published:   a.Published,
		Type:        a.Type,
		Restaurants: make([]articleRestaurantView, 0, len(a.Restaurants)),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}

	if a.Author != nil {
		view.Author = &authorView{ID: a.Author.ID, Username: a.Author.Username}
	}

	for _, link := range a.Restaurants {
		linked := articleRestaurantView{
			ID:          link.RestaurantID,
			Order:       link.Order,
			Description: link.Description,
		}
		if link.Restaurant != nil && (viewer.IsAdmin || link.Restaurant.Status == restaurant.StatusPublished) {
			linked.Restaurant = link.Restaurant
		}
		view.Restaurants = append(view.Restaurants, linked)
	}

	return view
}

func newArticleViews(articles []article.Article, viewer article.Viewer) []articleView {
	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, newArticleView(&articles[i], viewer))
	}
	return views
}

type bookmarkView struct {
	ID        uint         `json:"id"`
	UserID    uint         `json:"userId"`
	ArticleID uint         `json:"articleId"`
	Article   *articleView `json:"article,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

func newBookmarkView(b *bookmark.Bookmark, viewer article.Viewer) bookmarkView {
	view := bookmarkView{
		ID:        b.ID,
		UserID:    b.UserID,
		ArticleID: b.ArticleID,
		CreatedAt: b.CreatedAt,
	}
	if b.Article != nil {
		articleView := newArticleView(b.Article, viewer)
		view.Article = &articleView
	}
	return view
}

type subscriptionView struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"createdAt"`
}

func newSubscriptionView(s *newsletter.Subscription) subscriptionView {
	return subscriptionView{
		ID:        s.ID,
		Email:     s.Email,
		Confirmed: s.Confirmed,
		CreatedAt: s.CreatedAt,
	}
}

type messageBody struct {
	Message string `json:"message"`
}
