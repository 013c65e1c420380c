package http

import (
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/article"
	"washoku/app/internal/bookmark"
	"washoku/app/internal/newsletter"
	"washoku/app/internal/restaurant"
	"washoku/app/internal/session"
	"washoku/app/internal/user"
)

const siteName = "Washoku Magazine"

// Options configures the HTTP server wiring.
type Options struct {
	Articles    article.Service
	Restaurants restaurant.Service
	Bookmarks   bookmark.Service
	Newsletter  newsletter.Service
	Users       user.Service
	Sessions    *session.Manager
	Database    *gorm.DB
	Logger      *logrus.Logger
	SentryHub   *sentry.Hub
	RateLimiter RateLimiterSettings

	// CORSOrigins enables cross-origin requests with credentials from the
	// listed origins. Empty disables CORS handling.
	CORSOrigins []string
	// StaticDir holds the built SPA. Empty serves only the HTML shell.
	StaticDir  string
	MapsAPIKey string
	// TrustProxy keys the rate limiter on forwarded client addresses instead
	// of the connection's remote address.
	TrustProxy bool
}

// RateLimiterSettings configures the limiter applied to credential endpoints.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the REST API via Huma and serves the SPA.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	handler     stdhttp.Handler
	articles    article.Service
	restaurants restaurant.Service
	bookmarks   bookmark.Service
	newsletter  newsletter.Service
	users       user.Service
	sessions    *session.Manager
	db          *gorm.DB
	logger      *logrus.Logger
	sentry      *sentry.Hub
	rateLimiter *RateLimiter
	metrics     *metrics
	staticDir   string
	mapsAPIKey  string
	trustProxy  bool
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	switch {
	case opts.Articles == nil:
		return nil, eris.New("article service is required")
	case opts.Restaurants == nil:
		return nil, eris.New("restaurant service is required")
	case opts.Bookmarks == nil:
		return nil, eris.New("bookmark service is required")
	case opts.Newsletter == nil:
		return nil, eris.New("newsletter service is required")
	case opts.Users == nil:
		return nil, eris.New("user service is required")
	case opts.Sessions == nil:
		return nil, eris.New("session manager is required")
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig(siteName, "1.0.0")
	config.Info.Description = "Editorial, restaurant directory and account API for the washoku magazine."
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"session": {Type: "apiKey", In: "cookie", Name: session.CookieName},
	}

	api := humago.New(mux, config)

	srv := &Server{
		api:         api,
		mux:         mux,
		articles:    opts.Articles,
		restaurants: opts.Restaurants,
		bookmarks:   opts.Bookmarks,
		newsletter:  opts.Newsletter,
		users:       opts.Users,
		sessions:    opts.Sessions,
		db:          opts.Database,
		logger:      opts.Logger,
		sentry:      opts.SentryHub,
		rateLimiter: NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL),
		metrics:     newMetrics(opts.Database),
		staticDir:   opts.StaticDir,
		mapsAPIKey:  opts.MapsAPIKey,
		trustProxy:  opts.TrustProxy,
	}

	srv.registerMiddlewares()
	srv.registerRoutes()

	srv.handler = mux
	if len(opts.CORSOrigins) > 0 {
		srv.handler = cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		})(mux)
	}

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.handler
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.loggingMiddleware(),
		s.localeMiddleware(),
		s.sessionMiddleware(),
		s.accessMiddleware(),
		s.rateLimitMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerArticleRoutes()
	s.registerRestaurantRoutes()
	s.registerBookmarkRoutes()
	s.registerNewsletterRoutes()
	s.registerAuthRoutes()
	s.registerAdminRoutes()
	s.registerHealthRoute()

	s.mux.Handle("GET /metrics", s.metrics.handler())
	s.registerStaticRoutes()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.handler.ServeHTTP(w, r)
}
