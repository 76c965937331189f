package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/saeid-a/CoachLiveBack/internal/config"
	"github.com/saeid-a/CoachLiveBack/internal/gateway"
	"github.com/saeid-a/CoachLiveBack/internal/handlers"
	"github.com/saeid-a/CoachLiveBack/internal/middleware"
	"github.com/saeid-a/CoachLiveBack/internal/notify"
	"github.com/saeid-a/CoachLiveBack/internal/realtime"
	"github.com/saeid-a/CoachLiveBack/internal/repository"
	"github.com/saeid-a/CoachLiveBack/internal/services"
	"go.uber.org/zap"
)

// Deps carries the process-wide pieces main wires before routing: the
// running hub, the broadcaster bridging instances over Redis, and the
// presence registry the termination service evicts.
type Deps struct {
	Hub         *realtime.Hub
	Broadcaster *realtime.Broadcaster
	Registry    *realtime.Registry
	Redis       *redis.Client
	Logger      *zap.Logger
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, deps Deps) {
	userRepo := repository.NewUserRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	gw := gateway.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.MinChargeMinor, deps.Logger)
	engine := services.NewSettlementEngine(gw, deps.Logger)
	notifier := notify.NewAMQPDispatcher(cfg.AmqpURL, deps.Logger)

	lifecycleService := services.NewLifecycleService(
		db, bookingRepo, sessionRepo, segmentRepo, paymentRepo, userRepo,
		gw, deps.Broadcaster, cfg.JWTSecret, deps.Logger,
	)
	overtimeService := services.NewOvertimeService(
		db, sessionRepo, bookingRepo, segmentRepo, paymentRepo,
		gw, deps.Broadcaster, cfg.GraceMinutes, deps.Logger,
	)
	terminationService := services.NewTerminationService(
		db, sessionRepo, bookingRepo, segmentRepo, paymentRepo,
		engine, deps.Broadcaster, notifier, deps.Registry, deps.Logger,
	)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(lifecycleService, terminationService)
	overtimeHandler := handlers.NewOvertimeHandler(overtimeService)
	liveHandler := handlers.NewLiveHandler(
		lifecycleService, terminationService,
		deps.Hub, deps.Registry, deps.Broadcaster,
		cfg.JWTSecret, deps.Logger,
	)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("", sessionHandler.Request)
	sessions.Get("", sessionHandler.List)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Post("/:id/accept", sessionHandler.Accept)
	sessions.Post("/:id/decline", sessionHandler.Decline)
	sessions.Post("/:id/cancel", sessionHandler.Cancel)
	sessions.Post("/:id/authorize", sessionHandler.AuthorizeBase)
	sessions.Get("/:id/credential", sessionHandler.Credential)
	sessions.Post("/:id/end", sessionHandler.End)
	sessions.Post("/:id/peer-disconnect", sessionHandler.ReportPeerDisconnect)

	sessions.Post("/:id/overtime", overtimeHandler.Request)
	sessions.Post("/:id/overtime/respond", overtimeHandler.Respond)
	sessions.Get("/:id/overtime/pending", overtimeHandler.Pending)

	api.Use("/v1/rooms/ws", liveHandler.WebSocketAuth)
	api.Get("/v1/rooms/ws", websocket.New(liveHandler.HandleWebSocket))
}
