package http

import (
	"bytes"
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/article"
	"washoku/app/internal/bookmark"
	"washoku/app/internal/db"
	"washoku/app/internal/migrations"
	"washoku/app/internal/newsletter"
	"washoku/app/internal/restaurant"
	"washoku/app/internal/session"
	"washoku/app/internal/user"
)

type testEnv struct {
	server      *Server
	db          *gorm.DB
	articles    article.Service
	restaurants restaurant.Service
	users       user.Service
	sessions    *session.Manager
	admin       *stdhttp.Cookie
	reader      *stdhttp.Cookie
	adminID     uint
}

type problemBody struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func TestCreateArticleRejectsDuplicateSlug(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	payload := map[string]any{
		"title":   "Omakase at Sumi",
		"slug":    "omakase-at-sumi",
		"content": map[string]any{"type": "doc"},
		"type":    "review",
	}

	rec := env.do(t, "POST", "/api/articles", payload, env.admin)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	payload["title"] = "Another title"
	rec = env.do(t, "POST", "/api/articles", payload, env.admin)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}

	problem := decodeProblem(t, rec)
	if problem.Code != "DUPLICATE_SLUG" {
		t.Fatalf("expected DUPLICATE_SLUG code, got %+v", problem)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "problem+json") {
		t.Fatalf("expected problem content type, got %q", ct)
	}
}

func TestUpdateArticleReplacesRestaurantsInSubmittedOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := env.seedRestaurants(t, "published", "published", "published")

	rec := env.do(t, "POST", "/api/articles", map[string]any{
		"title":   "Best ramen",
		"slug":    "best-ramen",
		"content": map[string]any{"type": "doc"},
		"type":    "list",
		"restaurants": []map[string]any{
			{"id": ids[0], "description": "first"},
			{"id": ids[1], "description": "second"},
		},
	}, env.admin)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeArticle(t, rec)

	rec = env.do(t, "PATCH", "/api/articles/"+itoa(created.ID), map[string]any{
		"restaurants": []map[string]any{
			{"id": ids[2], "description": "now first", "name": "ignored extra field"},
			{"id": ids[0], "description": "now second"},
		},
	}, env.admin)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated := decodeArticle(t, rec)
	if len(updated.Restaurants) != 2 {
		t.Fatalf("expected 2 associations, got %+v", updated.Restaurants)
	}
	if updated.Restaurants[0].ID != ids[2] || updated.Restaurants[1].ID != ids[0] {
		t.Fatalf("expected order [%d %d], got %+v", ids[2], ids[0], updated.Restaurants)
	}
	if updated.Restaurants[0].Description != "now first" {
		t.Fatalf("expected description to be replaced, got %q", updated.Restaurants[0].Description)
	}
	if updated.Restaurants[0].Restaurant == nil {
		t.Fatalf("expected restaurant row to be attached")
	}

	rec = env.do(t, "PATCH", "/api/articles/"+itoa(created.ID), map[string]any{"title": "Best ramen, revisited"}, env.admin)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if kept := decodeArticle(t, rec); len(kept.Restaurants) != 2 {
		t.Fatalf("expected omitted restaurants to leave associations untouched, got %+v", kept.Restaurants)
	}

	rec = env.do(t, "PATCH", "/api/articles/"+itoa(created.ID), map[string]any{"restaurants": []any{}}, env.admin)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if cleared := decodeArticle(t, rec); len(cleared.Restaurants) != 0 {
		t.Fatalf("expected empty list to clear associations, got %+v", cleared.Restaurants)
	}
}

func TestAdminMutationsRejectAnonymousAndReaders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := env.seedRestaurants(t, "draft")
	existing, err := env.articles.Create(context.Background(), env.adminID, article.Draft{
		Title:   "Izakaya crawl",
		Slug:    "izakaya-crawl",
		Content: map[string]any{"type": "doc"},
		Type:    "essay",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{"POST", "/api/articles", map[string]any{"title": "x", "slug": "x", "content": "x", "type": "review"}},
		{"PATCH", "/api/articles/" + itoa(existing.ID), map[string]any{"title": "hijacked"}},
		{"DELETE", "/api/articles/" + itoa(existing.ID), nil},
		{"POST", "/api/restaurants", map[string]any{"name": "Intruder"}},
		{"PATCH", "/api/restaurants/" + itoa(ids[0]), map[string]any{"name": "hijacked"}},
		{"PATCH", "/api/restaurants/" + itoa(ids[0]) + "/status", map[string]any{"status": "published"}},
		{"GET", "/api/admin/stats", nil},
		{"GET", "/api/newsletters", nil},
		// Invalid bodies must still be rejected on access, not validation.
		{"POST", "/api/articles", map[string]any{"type": "poem"}},
	}

	for _, cookie := range []*stdhttp.Cookie{nil, env.reader} {
		for _, req := range requests {
			rec := env.do(t, req.method, req.path, req.body, cookie)
			if rec.Code != stdhttp.StatusForbidden {
				t.Fatalf("%s %s (cookie=%v): expected 403, got %d: %s", req.method, req.path, cookie != nil, rec.Code, rec.Body.String())
			}
			if problem := decodeProblem(t, rec); problem.Code != "FORBIDDEN" {
				t.Fatalf("%s %s: expected FORBIDDEN code, got %+v", req.method, req.path, problem)
			}
		}
	}

	stored, err := env.articles.GetByID(context.Background(), article.Viewer{IsAdmin: true}, existing.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if stored.Title != "Izakaya crawl" {
		t.Fatalf("expected article to be untouched, got title %q", stored.Title)
	}

	counts, err := env.articles.Count(context.Background())
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if counts.Total != 1 {
		t.Fatalf("expected 1 article, got %d", counts.Total)
	}

	place, err := env.restaurants.Get(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if place.Name != "Restaurant 1" || place.Status != restaurant.StatusDraft {
		t.Fatalf("expected restaurant to be untouched, got %+v", place)
	}

	all, err := env.restaurants.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 restaurant, got %d", len(all))
	}
}

func TestUserRoutesRequireSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for _, path := range []string{"/api/user", "/api/bookmarks"} {
		rec := env.do(t, "GET", path, nil, nil)
		if rec.Code != stdhttp.StatusUnauthorized {
			t.Fatalf("GET %s: expected 401, got %d", path, rec.Code)
		}
		if problem := decodeProblem(t, rec); problem.Code != "UNAUTHORIZED" {
			t.Fatalf("GET %s: expected UNAUTHORIZED code, got %+v", path, problem)
		}
	}

	forged := &stdhttp.Cookie{Name: session.CookieName, Value: "not-a-token"}
	if rec := env.do(t, "GET", "/api/user", nil, forged); rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected forged cookie to be treated as anonymous, got %d", rec.Code)
	}
}

func TestRemovingMissingBookmarkSucceeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, "DELETE", "/api/bookmarks/9999", nil, env.reader)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBookmarkLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	published, err := env.articles.Create(context.Background(), env.adminID, article.Draft{
		Title:     "Kaiseki in Kyoto",
		Slug:      "kaiseki-in-kyoto",
		Content:   map[string]any{"type": "doc"},
		Type:      "review",
		Published: true,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	body := map[string]any{"articleId": published.ID}

	rec := env.do(t, "POST", "/api/bookmarks", body, env.reader)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/bookmarks", body, env.reader)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected repeated bookmark to return 200, got %d", rec.Code)
	}

	rec = env.do(t, "POST", "/api/bookmarks", map[string]any{"articleId": 4242}, env.reader)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected unknown article to return 404, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/bookmarks", nil, env.reader)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var listed []bookmarkView
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || listed[0].Article == nil || listed[0].Article.Slug != "kaiseki-in-kyoto" {
		t.Fatalf("unexpected bookmarks %+v", listed)
	}

	rec = env.do(t, "DELETE", "/api/bookmarks/"+itoa(published.ID), nil, env.reader)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/bookmarks", nil, env.reader)
	decodeJSON(t, rec, &listed)
	if len(listed) != 0 {
		t.Fatalf("expected no bookmarks after removal, got %+v", listed)
	}
}

func TestBookmarksHideUnpublishedArticlesFromReaders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	embargoed, err := env.articles.Create(ctx, env.adminID, article.Draft{
		Title:   "Embargoed opening",
		Slug:    "embargoed-opening",
		Content: map[string]any{"type": "doc", "text": "embargoed tasting notes"},
		Type:    "review",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	rec := env.do(t, "POST", "/api/bookmarks", map[string]any{"articleId": embargoed.ID}, env.reader)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected draft article to be unbookmarkable by readers, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "embargoed tasting notes") {
		t.Fatalf("expected draft content not to be echoed, got %s", rec.Body.String())
	}

	live, err := env.articles.Create(ctx, env.adminID, article.Draft{
		Title:     "Soon withdrawn",
		Slug:      "soon-withdrawn",
		Content:   map[string]any{"type": "doc", "text": "withdrawn tasting notes"},
		Type:      "review",
		Published: true,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if rec := env.do(t, "POST", "/api/bookmarks", map[string]any{"articleId": live.ID}, env.reader); rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	unpublish := false
	if _, err := env.articles.Update(ctx, live.ID, article.Patch{Published: &unpublish}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	rec = env.do(t, "GET", "/api/bookmarks", nil, env.reader)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "withdrawn tasting notes") {
		t.Fatalf("expected unpublished article to be hidden, got %s", rec.Body.String())
	}
	var listed []bookmarkView
	decodeJSON(t, rec, &listed)
	if len(listed) != 0 {
		t.Fatalf("expected no visible bookmarks, got %+v", listed)
	}

	rec = env.do(t, "POST", "/api/bookmarks", map[string]any{"articleId": live.ID}, env.reader)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected re-bookmarking a withdrawn article to return 404, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/bookmarks", map[string]any{"articleId": embargoed.ID}, env.admin)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected admin to bookmark a draft, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPublishedRestaurantsExcludeOtherStatuses(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedRestaurants(t, "published", "draft", "unpublished", "deleted", "published")

	rec := env.do(t, "GET", "/api/restaurants/published", nil, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var listed []restaurant.Restaurant
	decodeJSON(t, rec, &listed)
	if len(listed) != 2 {
		t.Fatalf("expected 2 published restaurants, got %d", len(listed))
	}
	for _, r := range listed {
		if r.Status != restaurant.StatusPublished {
			t.Fatalf("expected only published restaurants, got %q", r.Status)
		}
	}

	rec = env.do(t, "GET", "/api/restaurants?status=draft", nil, nil)
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || listed[0].Status != restaurant.StatusDraft {
		t.Fatalf("expected status filter to return the draft, got %+v", listed)
	}

	rec = env.do(t, "GET", "/api/restaurants", nil, nil)
	decodeJSON(t, rec, &listed)
	if len(listed) != 5 {
		t.Fatalf("expected all 5 restaurants, got %d", len(listed))
	}
}

func TestRestaurantAdminRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/restaurants", map[string]any{
		"name":         "Sushi Tetsu",
		"address":      "12 Jerusalem Passage, London",
		"cuisine_type": "sushi",
		"price_range":  "luxury",
	}, env.admin)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created restaurant.Restaurant
	decodeJSON(t, rec, &created)
	if created.Status != restaurant.StatusDraft || created.Latitude != restaurant.DefaultLatitude {
		t.Fatalf("expected defaults to be applied, got %+v", created)
	}

	rec = env.do(t, "PATCH", "/api/restaurants/"+itoa(created.ID), map[string]any{"phone": "+44 20 7000 0000"}, env.admin)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "PATCH", "/api/restaurants/"+itoa(created.ID)+"/status", map[string]any{"status": "published"}, env.admin)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated restaurant.Restaurant
	decodeJSON(t, rec, &updated)
	if updated.Status != restaurant.StatusPublished || updated.Phone != "+44 20 7000 0000" || updated.CuisineType != restaurant.CuisineSushi {
		t.Fatalf("unexpected restaurant after updates: %+v", updated)
	}

	rec = env.do(t, "PATCH", "/api/restaurants/"+itoa(created.ID), map[string]any{"latitude": "123.4"}, env.admin)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected out of range latitude to return 400, got %d", rec.Code)
	}

	rec = env.do(t, "PATCH", "/api/restaurants/9999/status", map[string]any{"status": "published"}, env.admin)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected missing restaurant to return 404, got %d", rec.Code)
	}
}

func TestArticleContentRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	content := `{"type":"doc","content":[{"type":"heading","attrs":{"level":2,"id":12345678901234567890},"content":[{"type":"text","text":"寿司の夜"}]},{"type":"paragraph","content":[{"type":"text","marks":[{"type":"bold"}],"text":"Toro & uni <3"},{"type":"text","text":" 0.1"}]}]}`
	payload := `{"title":"Sushi night","slug":"sushi-night","type":"review","published":true,"content":` + content + `}`

	rec := env.doRaw(t, "POST", "/api/articles", payload, env.admin, nil)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/articles/sushi-night", nil, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var fetched struct {
		Content json.RawMessage `json:"content"`
	}
	decodeJSON(t, rec, &fetched)

	if !reflect.DeepEqual(decodeNumbers(t, []byte(content)), decodeNumbers(t, fetched.Content)) {
		t.Fatalf("content changed on round trip:\nsent: %s\ngot:  %s", content, fetched.Content)
	}
}

func TestArticleStringContentIsStoredVerbatim(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	serialised := `{"type":"doc","content":[]}`

	rec := env.do(t, "POST", "/api/articles", map[string]any{
		"title":     "Pre-serialised",
		"slug":      "pre-serialised",
		"content":   serialised,
		"type":      "essay",
		"published": true,
	}, env.admin)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var stored article.Article
	if err := env.db.Where("slug = ?", "pre-serialised").First(&stored).Error; err != nil {
		t.Fatalf("loading stored article failed: %v", err)
	}
	if stored.Content != serialised {
		t.Fatalf("expected content stored verbatim, got %q", stored.Content)
	}

	created := decodeArticle(t, rec)
	if doc, ok := created.Content.(map[string]any); !ok || doc["type"] != "doc" {
		t.Fatalf("expected content to be returned as a document, got %#v", created.Content)
	}
}

func TestArticleVisibility(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, draft := range []article.Draft{
		{Title: "Live", Slug: "live", Content: "{}", Type: "review", Published: true},
		{Title: "Hidden", Slug: "hidden", Content: "{}", Type: "list"},
	} {
		if _, err := env.articles.Create(context.Background(), env.adminID, draft); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	var listed []articleView

	rec := env.do(t, "GET", "/api/articles", nil, nil)
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || listed[0].Slug != "live" {
		t.Fatalf("expected anonymous list to contain only published articles, got %+v", listed)
	}
	if listed[0].Author == nil || listed[0].Author.Username != "editor" {
		t.Fatalf("expected author to be attached, got %+v", listed[0].Author)
	}

	rec = env.do(t, "GET", "/api/articles", nil, env.admin)
	decodeJSON(t, rec, &listed)
	if len(listed) != 2 {
		t.Fatalf("expected admin list to contain both articles, got %d", len(listed))
	}

	rec = env.do(t, "GET", "/api/articles?type=list", nil, env.admin)
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || listed[0].Slug != "hidden" {
		t.Fatalf("expected type filter to return the list article, got %+v", listed)
	}

	if rec := env.do(t, "GET", "/api/articles/hidden", nil, env.reader); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected unpublished article to be hidden from readers, got %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/articles/hidden", nil, env.admin); rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected admin to see unpublished article, got %d", rec.Code)
	}
}

func TestArticleViewsOnlyEmbedPublishedRestaurantsForReaders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := env.seedRestaurants(t, "published", "draft")

	if _, err := env.articles.Create(context.Background(), env.adminID, article.Draft{
		Title:     "Two counters",
		Slug:      "two-counters",
		Content:   "{}",
		Type:      "list",
		Published: true,
		Restaurants: []article.RestaurantLink{
			{RestaurantID: ids[0], Description: "open now"},
			{RestaurantID: ids[1], Description: "opening soon"},
		},
	}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	rec := env.do(t, "GET", "/api/articles/two-counters", nil, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	public := decodeArticle(t, rec)
	if len(public.Restaurants) != 2 {
		t.Fatalf("expected both links to be listed, got %+v", public.Restaurants)
	}
	if public.Restaurants[0].Restaurant == nil || public.Restaurants[0].Restaurant.ID != ids[0] {
		t.Fatalf("expected published restaurant to be embedded, got %+v", public.Restaurants[0])
	}
	if public.Restaurants[1].Restaurant != nil {
		t.Fatalf("expected draft restaurant to be withheld, got %+v", public.Restaurants[1].Restaurant)
	}
	if public.Restaurants[1].ID != ids[1] || public.Restaurants[1].Description != "opening soon" {
		t.Fatalf("expected draft link metadata to remain, got %+v", public.Restaurants[1])
	}

	rec = env.do(t, "GET", "/api/articles", nil, env.reader)
	var listed []articleView
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || len(listed[0].Restaurants) != 2 || listed[0].Restaurants[1].Restaurant != nil {
		t.Fatalf("expected list view to withhold the draft restaurant, got %+v", listed)
	}

	rec = env.do(t, "GET", "/api/articles/two-counters", nil, env.admin)
	admin := decodeArticle(t, rec)
	if len(admin.Restaurants) != 2 || admin.Restaurants[1].Restaurant == nil {
		t.Fatalf("expected admin to see every restaurant, got %+v", admin.Restaurants)
	}
}

func TestDeleteArticle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	created, err := env.articles.Create(context.Background(), env.adminID, article.Draft{
		Title: "Gone soon", Slug: "gone-soon", Content: "{}", Type: "essay",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if rec := env.do(t, "DELETE", "/api/articles/"+itoa(created.ID), nil, env.admin); rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, "DELETE", "/api/articles/"+itoa(created.ID), nil, env.admin); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected second delete to return 404, got %d", rec.Code)
	}
}

func TestSchemaValidationErrorsAreBadRequests(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/articles", map[string]any{
		"title":   "Bad type",
		"slug":    "bad-type",
		"content": "{}",
		"type":    "poem",
	}, env.admin)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/articles", map[string]any{
		"title":   "Bad slug",
		"slug":    "bad slug",
		"content": "{}",
		"type":    "review",
	}, env.admin)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if problem := decodeProblem(t, rec); problem.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT code, got %+v", problem)
	}
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/register", map[string]any{
		"username": "hanako",
		"password": "matcha-latte",
		"email":    "hanako@example.com",
	}, nil)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	registered := sessionCookie(t, rec)

	var me user.User
	rec = env.do(t, "GET", "/api/user", nil, registered)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	decodeJSON(t, rec, &me)
	if me.Username != "hanako" || me.IsAdmin {
		t.Fatalf("unexpected current user %+v", me)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("expected password to be omitted from user payload")
	}

	rec = env.do(t, "POST", "/api/register", map[string]any{
		"username": "hanako",
		"password": "another",
		"email":    "other@example.com",
	}, nil)
	if rec.Code != stdhttp.StatusBadRequest || decodeProblem(t, rec).Code != "USERNAME_TAKEN" {
		t.Fatalf("expected USERNAME_TAKEN, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/login", map[string]any{"username": "hanako", "password": "wrong"}, nil)
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if problem := decodeProblem(t, rec); problem.Detail != "ユーザー名またはパスワードが正しくありません" {
		t.Fatalf("expected japanese message by default, got %q", problem.Detail)
	}

	rec = env.do(t, "POST", "/api/login", map[string]any{"username": "hanako", "password": "matcha-latte"}, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	loggedIn := sessionCookie(t, rec)

	rec = env.do(t, "POST", "/api/admin/login", map[string]any{"username": "hanako", "password": "matcha-latte"}, nil)
	if rec.Code != stdhttp.StatusForbidden || decodeProblem(t, rec).Code != "NOT_ADMIN" {
		t.Fatalf("expected NOT_ADMIN, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/admin/login", map[string]any{"username": "editor", "password": "correct-horse"}, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected admin login to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/logout", nil, loggedIn)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if cleared := sessionCookie(t, rec); cleared.MaxAge >= 0 {
		t.Fatalf("expected logout to expire the cookie, got %+v", cleared)
	}

	if rec := env.do(t, "GET", "/api/user", nil, loggedIn); rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected revoked session to be anonymous, got %d", rec.Code)
	}
}

func TestErrorsFollowAcceptLanguage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.doRaw(t, "GET", "/api/user", "", nil, map[string]string{"Accept-Language": "en-GB,en;q=0.8"})
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if problem := decodeProblem(t, rec); problem.Detail != "You need to sign in first." {
		t.Fatalf("expected english message, got %q", problem.Detail)
	}
	if lang := rec.Header().Get("Content-Language"); lang != "en" {
		t.Fatalf("expected Content-Language en, got %q", lang)
	}
}

func TestNewsletterSubscription(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/newsletter", map[string]any{"email": "Reader@Example.com"}, nil)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/newsletter", map[string]any{"email": "reader@example.com"}, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected repeated subscription to return 200, got %d", rec.Code)
	}

	rec = env.do(t, "POST", "/api/newsletter", map[string]any{"email": "not-an-email"}, nil)
	if rec.Code != stdhttp.StatusBadRequest || decodeProblem(t, rec).Code != "INVALID_EMAIL" {
		t.Fatalf("expected INVALID_EMAIL, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/newsletters", nil, env.admin)
	var listed []subscriptionView
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || listed[0].Email != "reader@example.com" {
		t.Fatalf("unexpected subscriptions %+v", listed)
	}
}

func TestAdminStatsAndExcerpt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedRestaurants(t, "published", "draft")
	if _, err := env.articles.Create(context.Background(), env.adminID, article.Draft{
		Title: "Counted", Slug: "counted", Content: "{}", Type: "review", Published: true,
	}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	rec := env.do(t, "GET", "/api/admin/stats", nil, env.admin)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var stats struct {
		Articles struct {
			Total     int64 `json:"total"`
			Published int64 `json:"published"`
		} `json:"articles"`
		Restaurants map[string]int64 `json:"restaurants"`
		Users       int64            `json:"users"`
	}
	decodeJSON(t, rec, &stats)
	if stats.Articles.Total != 1 || stats.Articles.Published != 1 {
		t.Fatalf("unexpected article counts %+v", stats.Articles)
	}
	if stats.Restaurants["published"] != 1 || stats.Restaurants["draft"] != 1 || stats.Restaurants["deleted"] != 0 {
		t.Fatalf("unexpected restaurant counts %+v", stats.Restaurants)
	}
	if stats.Users != 2 {
		t.Fatalf("expected 2 users, got %d", stats.Users)
	}

	rec = env.do(t, "POST", "/api/admin/excerpt", map[string]any{"title": "Counted"}, env.admin)
	if rec.Code != stdhttp.StatusServiceUnavailable || decodeProblem(t, rec).Code != "LLM_UNAVAILABLE" {
		t.Fatalf("expected LLM_UNAVAILABLE, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(opts *Options) {
		opts.RateLimiter = RateLimiterSettings{Burst: 2, RequestsPerSecond: 0.01, ClientTTL: time.Minute}
	})

	body := map[string]any{"username": "nobody", "password": "nothing"}
	for i := 0; i < 2; i++ {
		if rec := env.do(t, "POST", "/api/login", body, nil); rec.Code != stdhttp.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec := env.do(t, "POST", "/api/login", body, nil)
	if rec.Code != stdhttp.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if rec := env.do(t, "GET", "/api/articles", nil, nil); rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected read endpoints not to be limited, got %d", rec.Code)
	}
}

func TestRateLimiterIgnoresForwardedHeadersByDefault(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(opts *Options) {
		opts.RateLimiter = RateLimiterSettings{Burst: 1, RequestsPerSecond: 0.01, ClientTTL: time.Minute}
	})

	body := `{"username":"nobody","password":"nothing"}`
	for i, forwarded := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		rec := env.doRaw(t, "POST", "/api/login", body, nil, map[string]string{
			"X-Forwarded-For": forwarded,
			"X-Real-IP":       forwarded,
		})
		want := stdhttp.StatusTooManyRequests
		if i == 0 {
			want = stdhttp.StatusUnauthorized
		}
		if rec.Code != want {
			t.Fatalf("attempt %d from %s: expected %d, got %d", i+1, forwarded, want, rec.Code)
		}
	}
}

func TestRateLimiterUsesForwardedHeadersBehindTrustedProxy(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(opts *Options) {
		opts.RateLimiter = RateLimiterSettings{Burst: 1, RequestsPerSecond: 0.01, ClientTTL: time.Minute}
		opts.TrustProxy = true
	})

	body := `{"username":"nobody","password":"nothing"}`
	for _, forwarded := range []string{"203.0.113.1", "203.0.113.2, 10.0.0.1"} {
		rec := env.doRaw(t, "POST", "/api/login", body, nil, map[string]string{"X-Forwarded-For": forwarded})
		if rec.Code != stdhttp.StatusUnauthorized {
			t.Fatalf("expected distinct forwarded clients to be limited separately, got %d for %s", rec.Code, forwarded)
		}
	}

	rec := env.doRaw(t, "POST", "/api/login", body, nil, map[string]string{"X-Forwarded-For": "203.0.113.1"})
	if rec.Code != stdhttp.StatusTooManyRequests {
		t.Fatalf("expected repeated forwarded client to be limited, got %d", rec.Code)
	}
}

func TestRegisterRejectsPasswordsBeyondBcryptLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for name, password := range map[string]string{
		"too many characters":    strings.Repeat("a", 80),
		"too many encoded bytes": strings.Repeat("é", 40),
	} {
		rec := env.do(t, "POST", "/api/register", map[string]any{
			"username": "longpass",
			"email":    "longpass@example.com",
			"password": password,
		}, nil)
		if rec.Code != stdhttp.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d: %s", name, rec.Code, rec.Body.String())
		}
		if problem := decodeProblem(t, rec); problem.Code != "INVALID_INPUT" {
			t.Fatalf("%s: expected INVALID_INPUT code, got %+v", name, problem)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, "GET", "/healthz", nil, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	rec = env.do(t, "GET", "/metrics", nil, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "washoku_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestSPAShellAndStaticFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	index := `<!doctype html><html><head><title>Washoku</title></head><body><div id="root"></div></body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0o644); err != nil {
		t.Fatalf("writing index.html failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatalf("creating assets dir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log('hi')"), 0o644); err != nil {
		t.Fatalf("writing asset failed: %v", err)
	}

	env := newTestEnv(t, func(opts *Options) {
		opts.StaticDir = dir
		opts.MapsAPIKey = "maps-key"
	})

	rec := env.do(t, "GET", "/restaurants/42", nil, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != htmlContentType {
		t.Fatalf("expected html content type, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="washoku-config"`) || !strings.Contains(body, "maps-key") {
		t.Fatalf("expected runtime config in shell, got %q", body)
	}
	if strings.Index(body, "washoku-config") > strings.Index(body, "</head>") {
		t.Fatalf("expected config to be injected into the head, got %q", body)
	}

	rec = env.do(t, "GET", "/assets/app.js", nil, nil)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), "console.log") {
		t.Fatalf("expected static asset to be served, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/unknown", nil, nil)
	if rec.Code != stdhttp.StatusNotFound || decodeProblem(t, rec).Code != "NOT_FOUND" {
		t.Fatalf("expected unknown API path to return a 404 problem, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/robots.txt", nil, nil)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), "Disallow: /api/") {
		t.Fatalf("expected robots.txt, got %d", rec.Code)
	}
}

func TestSPAShellWithoutBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.doRaw(t, "GET", "/", "", nil, map[string]string{"Accept-Language": "en"})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<html lang="en">`) || !strings.Contains(body, `<div id="root">`) {
		t.Fatalf("expected bare shell document, got %q", body)
	}
}

func TestNewServerRequiresServices(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(Options{}); err == nil {
		t.Fatalf("expected error when services are missing")
	}
}

func newTestEnv(t *testing.T, modifiers ...func(*Options)) *testEnv {
	t.Helper()

	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gormDB, err := db.Open(db.Options{DSN: filepath.Join(t.TempDir(), "washoku.db")})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(gormDB); err != nil {
			t.Errorf("closing database failed: %v", err)
		}
	})

	if err := migrations.Apply(ctx, gormDB, logger); err != nil {
		t.Fatalf("migrations.Apply returned error: %v", err)
	}

	userRepo, err := user.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("user.NewRepository returned error: %v", err)
	}
	users, err := user.NewService(userRepo, logger, nil)
	if err != nil {
		t.Fatalf("user.NewService returned error: %v", err)
	}

	restaurantRepo, err := restaurant.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("restaurant.NewRepository returned error: %v", err)
	}
	restaurants, err := restaurant.NewService(restaurantRepo, logger, nil)
	if err != nil {
		t.Fatalf("restaurant.NewService returned error: %v", err)
	}

	articleRepo, err := article.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("article.NewRepository returned error: %v", err)
	}
	articles, err := article.NewService(articleRepo, nil, logger, nil)
	if err != nil {
		t.Fatalf("article.NewService returned error: %v", err)
	}

	bookmarkRepo, err := bookmark.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("bookmark.NewRepository returned error: %v", err)
	}
	bookmarks, err := bookmark.NewService(bookmarkRepo, logger, nil)
	if err != nil {
		t.Fatalf("bookmark.NewService returned error: %v", err)
	}

	newsletterRepo, err := newsletter.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("newsletter.NewRepository returned error: %v", err)
	}
	subscriptions, err := newsletter.NewService(newsletterRepo, logger, nil)
	if err != nil {
		t.Fatalf("newsletter.NewService returned error: %v", err)
	}

	sessions, err := session.NewManager(session.Options{
		Store:  session.NewMemoryStore(),
		Secret: "server-test-session-secret",
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("session.NewManager returned error: %v", err)
	}

	opts := Options{
		Articles:    articles,
		Restaurants: restaurants,
		Bookmarks:   bookmarks,
		Newsletter:  subscriptions,
		Users:       users,
		Sessions:    sessions,
		Database:    gormDB,
		Logger:      logger,
		RateLimiter: RateLimiterSettings{Burst: 100, RequestsPerSecond: 100, ClientTTL: time.Minute},
	}
	for _, modify := range modifiers {
		modify(&opts)
	}

	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	t.Cleanup(srv.Close)

	admin, err := users.EnsureAdmin(ctx, "editor", "editor@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	reader, err := users.Register(ctx, "reader", "reader@example.com", "green-tea")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	return &testEnv{
		server:      srv,
		db:          gormDB,
		articles:    articles,
		restaurants: restaurants,
		users:       users,
		sessions:    sessions,
		admin:       startSession(t, sessions, admin.ID),
		reader:      startSession(t, sessions, reader.ID),
		adminID:     admin.ID,
	}
}

func startSession(t *testing.T, sessions *session.Manager, userID uint) *stdhttp.Cookie {
	t.Helper()

	cookie, _, err := sessions.Start(context.Background(), userID)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	return cookie
}

func (e *testEnv) seedRestaurants(t *testing.T, statuses ...string) []uint {
	t.Helper()

	ids := make([]uint, 0, len(statuses))
	for i, status := range statuses {
		created, err := e.restaurants.Create(context.Background(), restaurant.Draft{
			Name:    "Restaurant " + itoa(uint(i+1)),
			Address: "1 Dean Street, London",
			Status:  status,
		})
		if err != nil {
			t.Fatalf("restaurant Create returned error: %v", err)
		}
		ids = append(ids, created.ID)
	}
	return ids
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *stdhttp.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	payload := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body failed: %v", err)
		}
		payload = string(encoded)
	}
	return e.doRaw(t, method, path, payload, cookie, nil)
}

func (e *testEnv) doRaw(t *testing.T, method, path, body string, cookie *stdhttp.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decoding response failed: %v (body %q)", err, rec.Body.String())
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problemBody {
	t.Helper()

	var problem problemBody
	decodeJSON(t, rec, &problem)
	return problem
}

func decodeArticle(t *testing.T, rec *httptest.ResponseRecorder) articleView {
	t.Helper()

	var view articleView
	decodeJSON(t, rec, &view)
	return view
}

func decodeNumbers(t *testing.T, data []byte) any {
	t.Helper()

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		t.Fatalf("decoding %s failed: %v", data, err)
	}
	return value
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *stdhttp.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName {
			return cookie
		}
	}
	t.Fatalf("expected %s cookie in response", session.CookieName)
	return nil
}

func itoa(value uint) string {
	return strconv.FormatUint(uint64(value), 10)
}
