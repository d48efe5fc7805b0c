package router

import (
	"strconv"
	"time"

	"github.com/StakeSubHQ/StakeSub/app/controllers"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	controllers.InitializeBillingController()

	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Client-facing endpoints share a Redis-backed rate limit. Processor
	// callbacks are deliberately outside it; dropping a webhook delivery
	// costs a reconciliation.
	api := app.Group("", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Post("/verify-user", controllers.HandleVerifyUser)
	api.Post("/apply-promo", controllers.HandleApplyPromo)
	api.Post("/get-adjusted-prices", controllers.HandleAdjustedPrices)
	api.Post("/create-invoice", controllers.HandleCreateInvoice)
	api.Post("/request-trial", controllers.HandleRequestTrial)

	app.Post("/plisio-callback", controllers.ProcessorCallbackHandler("plisio"))
	app.Post("/cryptomus-callback", controllers.ProcessorCallbackHandler("cryptomus"))
}

func newLimiterStorage() *redis.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})
}
