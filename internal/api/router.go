package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/audit"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/database"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/ws"
)

// Queue is what the HTTP layer needs from the queue repository
type Queue interface {
	handler.Enqueuer
	handler.QueueReader
}

// Dependencies are built once in main and injected. Nil Hub disables the
// live feed route; nil Guard hides dispatch markers.
type Dependencies struct {
	DB               database.Pinger
	Queue            Queue
	Runner           handler.Runner
	Guard            handler.DispatchLookup
	Hub              *ws.Hub
	Audit            audit.Logger
	Secrets          handler.SecretFunc
	TriggerTokenHash string
	IngestLimit      middleware.RateLimiterConfig
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Webhook Processor",
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var db database.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")

	// Provider deliveries authenticate by signature, not by trigger token
	r.rateLimiter = middleware.NewRateLimiter(r.deps.IngestLimit)
	secrets := r.deps.Secrets
	if secrets == nil {
		secrets = func(string) string { return "" }
	}
	var feed handler.Broadcaster
	if r.deps.Hub != nil {
		feed = r.deps.Hub
	}
	ingestHandler := handler.NewIngestHandler(r.deps.Queue, secrets, r.deps.Audit, feed, r.logger)
	v1.Post("/ingest/:source", r.rateLimiter.Handler(), ingestHandler.Ingest)

	auth := middleware.Auth(r.deps.TriggerTokenHash)

	processHandler := handler.NewProcessHandler(r.deps.Runner, r.logger)
	queueHandler := handler.NewQueueHandler(r.deps.Queue, r.deps.Guard, r.logger)

	ops := v1.Group("/webhooks", auth)
	ops.Post("/process", processHandler.Process)
	ops.Get("/process", processHandler.Process)
	ops.Post("/sweep", processHandler.Sweep)
	ops.Get("/queue/stats", queueHandler.Stats)
	ops.Get("/events/:event_id", queueHandler.GetEvent)

	if r.deps.Hub != nil {
		v1.Get("/ws", auth, ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
