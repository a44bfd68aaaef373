package api

import (
	"context"
	"time"

	"github.com/beunreal/story-service/internal/metrics"
	"github.com/beunreal/story-service/internal/middleware"
	"github.com/beunreal/story-service/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

const (
	multipartOverhead = 1 << 20
	maxJSONBody       = 16 << 10
)

type Deps struct {
	Service  *service.StoryService
	Verifier middleware.TokenVerifier
	Logger   *zap.Logger

	MaxUploadBytes    int64
	RequestsPerMinute int
	// CreateLimiter, when set, guards story creation per user.
	CreateLimiter fiber.Handler

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer builds the fiber app. ctx bounds background work such as the
// rate limiter's visitor sweep.
func NewServer(ctx context.Context, d Deps) *fiber.App {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	app := fiber.New(fiber.Config{
		AppName:      "story-service",
		BodyLimit:    int(d.MaxUploadBytes) + multipartOverhead,
		ReadTimeout:  d.ReadTimeout,
		WriteTimeout: d.WriteTimeout,
		ErrorHandler: ErrorHandler(d.Logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(metrics.Middleware())
	app.Use(middleware.ZapLogger(d.Logger))
	if d.RequestsPerMinute > 0 {
		app.Use(middleware.NewIPRateLimiter(ctx, d.RequestsPerMinute, d.Logger).Handler())
	}

	h := NewHandler(d.Service, d.MaxUploadBytes)
	app.Get("/healthz", h.Health)
	app.Get("/readyz", h.Ready)
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api", middleware.JWT(d.Verifier, d.Logger))
	stories := api.Group("/stories")

	create := []fiber.Handler{}
	if d.CreateLimiter != nil {
		create = append(create, d.CreateLimiter)
	}
	create = append(create, h.CreateStory)
	stories.Post("/", create...)

	stories.Get("/nearby", h.Nearby)
	stories.Get("/user/:userId", h.UserStories)
	stories.Post("/reactions", limitBody(maxJSONBody), h.ToggleReaction)
	stories.Post("/comments", limitBody(maxJSONBody), h.AddComment)
	stories.Get("/:id", h.GetStory)
	stories.Get("/:id/reactions", h.Reactions)
	stories.Get("/:id/comments", h.Comments)
	stories.Delete("/:id", h.DeleteStory)

	return app
}
