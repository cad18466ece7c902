// @title ServiPay API
// @version 1.0
// @description Эскроу-бэкенд маркетплейса услуг: удержание средств, журнал операций, выплаты и споры
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"servipay/config"
	"servipay/internal/db"
	"servipay/internal/escrow"
	"servipay/internal/gateway"
	"servipay/internal/handlers"
	"servipay/internal/models"
	"servipay/internal/scheduler"
	"servipay/internal/services/storage"

	docs "servipay/docs"
)

func main() {
	// 1. Загружаем конфиг из .env / окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// 1.1 Определяем режим запуска (dev/prod)
	env := os.Getenv("APP_ENV")
	if env == "prod" || env == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 2. Открываем GORM-подключение
	gormDB, err := db.NewDB(cfg.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	// 3. Собираем зависимости: провайдеры, движок, хранилище, автоматика
	gateways := gateway.NewRegistry(cfg.Gateways)
	engine := escrow.NewEngine(gormDB, gateways)

	store, err := storage.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	var claims scheduler.ClaimSet
	if cfg.RedisAddr != "" {
		claims = scheduler.NewRedisClaims(
			redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
			cfg.Scheduler.ClaimCooldown,
		)
	}
	sched := scheduler.New(gormDB, engine, cfg.Scheduler, claims)
	sched.Start()
	defer sched.Stop()

	docs.SwaggerInfo.BasePath = "/"

	// 4. Создаём Gin-роутер и регистрируем маршруты
	r := gin.Default()
	r.Use(cors.Default())
	r.GET("/health", handlers.Health(gormDB))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// вебхуки провайдеров — без аутентификации, подпись проверяется внутри
	r.POST("/webhooks/:provider", handlers.GatewayWebhook(cfg, engine))

	auth := r.Group("/auth")
	auth.POST("/register", handlers.Register(gormDB, cfg.TokenTypeTTL))
	auth.POST("/login", handlers.Login(gormDB, cfg.TokenTypeTTL))
	auth.POST("/refresh", handlers.Refresh(gormDB, cfg.TokenTypeTTL))
	auth.Use(handlers.AuthMiddleware(gormDB))
	auth.GET("/profile", handlers.Profile(gormDB))
	auth.POST("/logout", handlers.Logout(gormDB))
	auth.POST("/2fa/enable", handlers.Enable2FA(gormDB))
	auth.POST("/payout-destination", handlers.SetPayoutDestination(gormDB))

	api := r.Group("/")
	api.Use(handlers.AuthMiddleware(gormDB))

	api.GET("/bookings", handlers.ListBookings(gormDB))
	api.POST("/bookings", handlers.CreateBooking(gormDB))
	api.GET("/bookings/:id", handlers.GetBooking(gormDB))
	api.POST("/bookings/:id/confirm", handlers.ConfirmBooking(gormDB))
	api.POST("/bookings/:id/complete", handlers.CompleteBooking(gormDB))
	api.POST("/bookings/:id/cancel", handlers.CancelBooking(gormDB))

	api.GET("/escrows", handlers.ListEscrows(gormDB))
	api.POST("/escrows", handlers.CreateEscrow(engine))
	api.GET("/escrows/:id", handlers.GetEscrow(gormDB))
	api.GET("/escrows/:id/transactions", handlers.ListEscrowTransactions(gormDB))
	api.GET("/escrows/:id/payouts", handlers.ListEscrowPayouts(gormDB))
	api.POST("/escrows/:id/approve", handlers.ApproveEscrow(engine))
	api.POST("/escrows/:id/capture", handlers.CaptureEscrow(engine))
	api.POST("/escrows/:id/refund", handlers.RefundEscrow(engine))
	api.POST("/escrows/:id/payout", handlers.RequestPayout(engine))
	api.POST("/escrows/:id/proof-of-work", handlers.UploadProofOfWork(engine, store))
	api.POST("/escrows/:id/dispute", handlers.OpenDispute(engine))

	api.GET("/notifications", handlers.ListNotifications(gormDB))
	api.PATCH("/notifications/:id/read", handlers.ReadNotification(gormDB))
	api.GET("/ws/notifications", handlers.NotificationsWS(gormDB))

	admin := r.Group("/admin")
	admin.Use(handlers.AuthMiddleware(gormDB), handlers.RequireRole(models.RoleAdmin))
	admin.GET("/escrows/stats", handlers.EscrowStats(engine))
	admin.POST("/escrows/:id/resolve", handlers.ResolveDispute(gormDB, engine))

	// 5. Запускаем сервер
	addr := ":" + cfg.Port
	log.Printf("listening on %s …", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
