package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mraprguild/vaultlink/internal/app/repository"
	"github.com/mraprguild/vaultlink/internal/app/service"
	inthttp "github.com/mraprguild/vaultlink/internal/http/handler"
	"github.com/mraprguild/vaultlink/internal/http/middleware"
)

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	Logger    *zap.Logger
	Redis     *redis.Client
	Shortener *service.Shortener
	Uploader  *service.Uploader
	Retriever *service.Retriever
	Stats     *service.StatsAggregator
	Users     repository.UserRepository
	Secret    []byte
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		// Chunk append bodies stay within one chunk plus headroom.
		BodyLimit: 2 << 20,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:    s.deps.Logger,
		Shortener: s.deps.Shortener,
		Uploader:  s.deps.Uploader,
		Retriever: s.deps.Retriever,
		Stats:     s.deps.Stats,
		Users:     s.deps.Users,
		Secret:    s.deps.Secret,
	})
	apiHandler.Register(s.app)

	// Registered last: the bare /:code route must not shadow /api.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:    s.deps.Logger,
		Shortener: s.deps.Shortener,
	})
	redirectHandler.Register(s.app)
}
