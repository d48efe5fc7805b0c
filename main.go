package main

import (
	"fmt"
	"log"

	"github.com/StakeSubHQ/StakeSub/internal/pkg/cache"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/database"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/env"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/router"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000")))
	_ = database.CloseDatabase()
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "StakeSub",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app)

	return app
}
