package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/congo-pay/authflow/internal/auth"
	"github.com/congo-pay/authflow/internal/config"
	"github.com/congo-pay/authflow/internal/events"
	"github.com/congo-pay/authflow/internal/identity"
	"github.com/congo-pay/authflow/internal/middleware"
	"github.com/congo-pay/authflow/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Postgres *pgxpool.Pool
	Mongo    *mongo.Database
	Cache    *redis.Client
	Logger   *slog.Logger
	Email    notification.Notifier
	Voice    notification.Notifier
	Events   events.Publisher
	// Repository overrides store selection. Used by tests.
	Repository identity.Repository
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	repo, err := newRepository(d)
	if err != nil {
		return err
	}
	if d.Email == nil {
		d.Email = notification.NewLoggerNotifier(d.Logger, "email")
	}
	if d.Voice == nil {
		d.Voice = notification.NewLoggerNotifier(d.Logger, "voice")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.FrontendURL != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     d.Cfg.FrontendURL,
			AllowMethods:     "GET,POST,PUT,DELETE",
			AllowCredentials: true,
		}))
	}
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	identitySvc := identity.NewService(repo, d.Email, d.Voice, identity.Settings{
		CodeTTL:            d.Cfg.OTPTTL,
		ResetTTL:           d.Cfg.ResetTokenTTL,
		MaxPendingAttempts: d.Cfg.MaxPendingAttempts,
		ResetURLBase:       d.Cfg.FrontendURL,
		NotifyTimeout:      d.Cfg.NotifyTimeout,
	}).WithLogger(d.Logger).WithEvents(d.Events)

	authSvc := auth.NewService(auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.SessionTTL), auth.NewRevoker(d.Cache), identitySvc)
	accountHandler := auth.NewHandler(identitySvc, authSvc, auth.CookieSettings{
		TTL:    d.Cfg.CookieTTL(),
		Secure: !d.Cfg.IsDev(),
	}, d.Logger)

	profiles, err := middleware.NewProfileCache()
	if err != nil {
		return fmt.Errorf("profile cache: %w", err)
	}
	app.Hooks().OnShutdown(func() error {
		profiles.Close()
		return nil
	})

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, accountHandler, AccountGuards{
		Session: middleware.Session(authSvc, profiles, d.Logger),
		Login:   middleware.RateLimit(d.Cache, "login", d.Cfg.RateLimitPerMinute),
		Verify:  middleware.RateLimit(d.Cache, "otp", d.Cfg.RateLimitPerMinute),
		Replay:  middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	})

	return nil
}

// newRepository picks the user store: MongoDB, then PostgreSQL, then memory
// in development.
func newRepository(d Deps) (identity.Repository, error) {
	switch {
	case d.Repository != nil:
		return d.Repository, nil
	case d.Mongo != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return identity.NewMongoRepository(ctx, d.Mongo)
	case d.Postgres != nil:
		return identity.NewPostgresRepository(d.Postgres), nil
	case d.Cfg.IsDev():
		d.Logger.Warn("no database configured, users are kept in memory")
		return identity.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("a database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
}
