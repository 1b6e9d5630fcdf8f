package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	jobHandler *handlers.JobHandler,
	quoteHandler *handlers.QuoteHandler,
	paymentHandler *handlers.PaymentHandler,
	payoutHandler *handlers.PayoutHandler,
	reviewHandler *handlers.ReviewHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Вебхук шлюза аутентифицируется подписью, а не JWT.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		webhooks.POST("/gateway", paymentHandler.Webhook)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/users/:id/reviews", middleware.UUIDValidator("id"), reviewHandler.ListForUser)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.POST("/jobs", jobHandler.Create)
		protected.GET("/jobs/my", jobHandler.ListMy)
		protected.GET("/jobs/:id", middleware.UUIDValidator("id"), jobHandler.Get)
		protected.POST("/jobs/:id/start", middleware.UUIDValidator("id"), jobHandler.Start)
		protected.POST("/jobs/:id/complete", middleware.UUIDValidator("id"), jobHandler.Complete)
		protected.POST("/jobs/:id/dispute", middleware.UUIDValidator("id"), jobHandler.OpenDispute)

		protected.POST("/jobs/:id/quotes", middleware.UUIDValidator("id"), quoteHandler.Submit)
		protected.GET("/jobs/:id/quotes", middleware.UUIDValidator("id"), quoteHandler.List)
		protected.POST("/quotes/:id/accept", middleware.UUIDValidator("id"), quoteHandler.Accept)
		protected.POST("/quotes/:id/reject", middleware.UUIDValidator("id"), quoteHandler.Reject)

		// Эскроу
		protected.POST("/jobs/:id/escrow/checkout", middleware.UUIDValidator("id"), paymentHandler.Checkout)
		protected.POST("/jobs/:id/escrow/release", middleware.UUIDValidator("id"), paymentHandler.Release)
		protected.GET("/payments/checkout/:sessionId", paymentHandler.Poll)

		// Отзывы
		protected.POST("/jobs/:id/reviews", middleware.UUIDValidator("id"), reviewHandler.Create)

		// Вывод средств
		protected.POST("/payouts", payoutHandler.Request)
		protected.GET("/payouts", payoutHandler.ListMy)
		protected.GET("/payouts/balance", payoutHandler.Balance)
		protected.GET("/payouts/:id", middleware.UUIDValidator("id"), payoutHandler.Get)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
	}

	// Администрирование: модерация заявок, споры, выплаты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/jobs/pending", jobHandler.ListPendingValidation)
		admin.POST("/jobs/:id/approve", middleware.UUIDValidator("id"), jobHandler.Approve)
		admin.POST("/jobs/:id/reject", middleware.UUIDValidator("id"), jobHandler.Reject)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), jobHandler.ResolveDispute)
		admin.POST("/payouts/:id/process", middleware.UUIDValidator("id"), payoutHandler.Process)
	}

	return r
}
