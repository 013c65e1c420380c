package bootstrap

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"washoku/app/internal/article"
	"washoku/app/internal/bookmark"
	"washoku/app/internal/config"
	"washoku/app/internal/db"
	apphttp "washoku/app/internal/http"
	"washoku/app/internal/llm"
	applog "washoku/app/internal/log"
	"washoku/app/internal/migrations"
	"washoku/app/internal/newsletter"
	"washoku/app/internal/restaurant"
	"washoku/app/internal/session"
	"washoku/app/internal/user"
)

type Dependencies struct {
	Config    *config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

type Result struct {
	HTTPServer *apphttp.Server
	Database   *gorm.DB
	Cleanup    func() error
}

// Build opens the database, applies migrations and wires every service into
// the HTTP transport.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	if deps.Config == nil {
		return Result{}, eris.New("config is required")
	}
	if deps.Logger == nil {
		return Result{}, eris.New("logger is required")
	}
	cfg := deps.Config

	gormDB, err := db.Open(db.Options{
		DSN:            cfg.DatabaseURL,
		Logger:         applog.NewGormLogger(deps.Logger),
		ConnectTimeout: cfg.DBConnectTimeout,
		MaxOpenConns:   cfg.DBMaxOpenConns,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "opening database")
	}

	closeOnError := func(wrapper error) (Result, error) {
		if closeErr := db.Close(gormDB); closeErr != nil {
			deps.Logger.WithError(closeErr).Error("closing database after bootstrap failure")
		}
		return Result{}, wrapper
	}

	if err := migrations.Apply(ctx, gormDB, deps.Logger); err != nil {
		return closeOnError(eris.Wrap(err, "running migrations"))
	}

	userRepo, err := user.NewRepository(gormDB, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating user repository"))
	}
	users, err := user.NewService(userRepo, deps.Logger, deps.SentryHub)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating user service"))
	}

	if cfg.Admin.Enabled() {
		admin, err := users.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return closeOnError(eris.Wrap(err, "seeding bootstrap admin"))
		}
		deps.Logger.WithField("username", admin.Username).Info("bootstrap admin ready")
	}

	restaurantRepo, err := restaurant.NewRepository(gormDB, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating restaurant repository"))
	}
	restaurants, err := restaurant.NewService(restaurantRepo, deps.Logger, deps.SentryHub)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating restaurant service"))
	}

	drafter, err := buildExcerptDrafter(cfg, deps.Logger)
	if err != nil {
		return closeOnError(err)
	}

	articleRepo, err := article.NewRepository(gormDB, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating article repository"))
	}
	articles, err := article.NewService(articleRepo, drafter, deps.Logger, deps.SentryHub)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating article service"))
	}

	bookmarkRepo, err := bookmark.NewRepository(gormDB, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating bookmark repository"))
	}
	bookmarks, err := bookmark.NewService(bookmarkRepo, deps.Logger, deps.SentryHub)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating bookmark service"))
	}

	newsletterRepo, err := newsletter.NewRepository(gormDB, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating newsletter repository"))
	}
	subscriptions, err := newsletter.NewService(newsletterRepo, deps.Logger, deps.SentryHub)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating newsletter service"))
	}

	sessions, err := buildSessions(ctx, cfg, gormDB, deps.Logger)
	if err != nil {
		return closeOnError(err)
	}

	httpServer, err := apphttp.NewServer(apphttp.Options{
		Articles:    articles,
		Restaurants: restaurants,
		Bookmarks:   bookmarks,
		Newsletter:  subscriptions,
		Users:       users,
		Sessions:    sessions,
		Database:    gormDB,
		Logger:      deps.Logger,
		SentryHub:   deps.SentryHub,
		RateLimiter: apphttp.RateLimiterSettings{
			Burst:             cfg.RateLimit.Burst,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		MapsAPIKey:  cfg.MapsAPIKey,
		TrustProxy:  cfg.TrustProxy,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "initialising http server"))
	}

	cleanup := func() error {
		httpServer.Close()
		return db.Close(gormDB)
	}

	return Result{
		HTTPServer: httpServer,
		Database:   gormDB,
		Cleanup:    cleanup,
	}, nil
}

// buildExcerptDrafter returns a nil drafter when no LLM credentials are set;
// the excerpt endpoint then answers 503.
func buildExcerptDrafter(cfg *config.Config, logger *logrus.Logger) (llm.ExcerptDrafter, error) {
	client, err := llm.NewClient(llm.ClientOptions{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMEndpoint,
		Logger:  logger,
	})
	if eris.Is(err, llm.ErrNotConfigured) {
		logger.Info("LLM_API_KEY not set; excerpt drafting disabled")
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "creating llm client")
	}

	if len(cfg.LLMModels) == 0 {
		return nil, eris.New("LLM_MODELS must include at least one model name when LLM_API_KEY is set")
	}

	drafter, err := llm.NewExcerptDrafter(llm.ExcerptOptions{
		Client: client,
		Model:  cfg.LLMModels[0],
	})
	if err != nil {
		return nil, eris.Wrap(err, "initialising excerpt drafter")
	}

	logger.WithFields(logrus.Fields{
		"model":    cfg.LLMModels[0],
		"base_url": client.BaseURL(),
	}).Info("excerpt drafting enabled")

	return drafter, nil
}

func buildSessions(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, logger *logrus.Logger) (*session.Manager, error) {
	var store session.Store
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		store = session.NewMemoryStore()
	default:
		gormStore, err := session.NewGormStore(gormDB, logger)
		if err != nil {
			return nil, eris.Wrap(err, "creating session store")
		}
		store = gormStore
	}

	manager, err := session.NewManager(session.Options{
		Store:  store,
		Secret: cfg.SessionSecret,
		TTL:    cfg.SessionTTL,
		Secure: cfg.IsProduction(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "creating session manager")
	}

	purged, err := manager.PurgeExpired(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "purging expired sessions")
	}
	if purged > 0 {
		logger.WithField("count", purged).Info("purged expired sessions")
	}

	return manager, nil
}
