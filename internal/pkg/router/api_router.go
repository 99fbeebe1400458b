package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/nebulanotes/nebula/app/controllers"
	"github.com/nebulanotes/nebula/internal/pkg/cache"
	"github.com/nebulanotes/nebula/internal/pkg/env"
	"github.com/nebulanotes/nebula/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Public routes
	v1.Post("/auth/register", controllers.HandleRegister)
	v1.Post("/auth/login", controllers.HandleLogin)
	v1.Get("/plans", controllers.HandleListPlans)

	// Provider webhooks carry their own verification, not user auth.
	v1.Post("/webhooks/billing/:provider", controllers.HandleBillingWebhook)

	// Authenticated routes
	auth := v1.Group("", middleware.RequireAuth())

	auth.Post("/subscription/validate-receipt", controllers.HandleValidateReceipt)
	auth.Post("/subscription/refresh", controllers.HandleRefreshValidation)
	auth.Post("/subscription/cancel", controllers.HandleCancelSubscription)
	auth.Post("/subscription/resubscribe", controllers.HandleResubscribe)
	auth.Get("/subscription", controllers.HandleGetSubscription)

	auth.Get("/quota", controllers.HandleGetQuota)

	auth.Post("/notes", controllers.HandleCreateNote)
	auth.Get("/notes", controllers.HandleListNotes)

	auth.Post("/tasks", controllers.HandleCreateTask)
	auth.Get("/tasks", controllers.HandleListTasks)
	auth.Post("/tasks/:id/complete", controllers.HandleCompleteTask)

	auth.Post("/galaxies", controllers.HandleCreateGalaxy)
	auth.Get("/galaxies", controllers.HandleListGalaxies)

	auth.Post("/insights", controllers.HandleCreateInsight)
}

// newLimiterStorage backs the rate limiter with Redis so counters survive
// restarts and are shared across instances. Configuration is derived from the
// cache client when present.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")

	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	// Database 1 keeps limiter counters apart from cache entries (DB 0).
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
