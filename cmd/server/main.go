package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/saeid-a/CoachLiveBack/internal/config"
	"github.com/saeid-a/CoachLiveBack/internal/database"
	"github.com/saeid-a/CoachLiveBack/internal/metrics"
	"github.com/saeid-a/CoachLiveBack/internal/realtime"
	"github.com/saeid-a/CoachLiveBack/internal/routes"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.AppEnv == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DBUrl == "" {
		logger.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB()
	logger.Info("connected to PostgreSQL")

	metrics.Register()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, realtime events stay local", zap.Error(err))
		}
	}

	hub := realtime.NewHub(logger)
	go hub.Run()
	broadcaster := realtime.NewBroadcaster(hub, rdb, logger)
	go broadcaster.Subscribe(context.Background())
	registry := realtime.NewRegistry()

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, database.DB, routes.Deps{
		Hub:         hub,
		Broadcaster: broadcaster,
		Registry:    registry,
		Redis:       rdb,
		Logger:      logger,
	})

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}
