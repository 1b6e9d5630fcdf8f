package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/marketplace-backend/internal/http/router"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/scheduler"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	jobRepo := repository.NewJobRepository(dbConn)
	quoteRepo := repository.NewQuoteRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	transactionRepo := repository.NewTransactionRepository(dbConn)
	payoutRepo := repository.NewPayoutRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Платёжный шлюз. Без API ключа оркестратор работает в режиме
	// симуляции и фондирует эскроу без внешнего вызова.
	var gatewayClient gateway.Client
	if cfg.GatewayEnabled() {
		gatewayClient = gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	} else {
		log.Printf("main: GATEWAY_API_KEY не задан, платежи работают в режиме симуляции")
	}

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo)
	escrowService := service.NewEscrowService(jobRepo, paymentRepo, transactionRepo, gatewayClient, notificationService, cfg.Currency, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	jobService := service.NewJobService(jobRepo, disputeRepo, escrowService, userRepo, notificationService)
	quoteService := service.NewQuoteService(quoteRepo, jobRepo, notificationService)
	payoutService := service.NewPayoutService(payoutRepo)
	reviewService := service.NewReviewService(reviewRepo, jobRepo)

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGo(hub.Run)
	escrowService.SetHub(hub)
	jobService.SetHub(hub)
	quoteService.SetHub(hub)

	// Планировщик сверок.
	sweeper := scheduler.New(cfg, jobRepo, quoteRepo, payoutRepo, disputeRepo, escrowService, userRepo, notificationService)
	goroutine.SafeGoWithContext(ctx, sweeper.Run)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	jobHandler := httpHandlers.NewJobHandler(jobService)
	quoteHandler := httpHandlers.NewQuoteHandler(quoteService)
	paymentHandler := httpHandlers.NewPaymentHandler(escrowService, cfg.GatewayWebhookSecret, cfg.GatewayEnabled())
	payoutHandler := httpHandlers.NewPayoutHandler(payoutService)
	reviewHandler := httpHandlers.NewReviewHandler(reviewService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, jobHandler, quoteHandler, paymentHandler, payoutHandler, reviewHandler, notificationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
