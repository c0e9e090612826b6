package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/crypto-shop/internal/app"
	"github.com/linemk/crypto-shop/internal/app/handlers"
	"github.com/linemk/crypto-shop/internal/config"
	"github.com/linemk/crypto-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/crypto-shop/internal/lib/logger"
	"github.com/linemk/crypto-shop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/crypto-shop/internal/payment"
	"github.com/linemk/crypto-shop/internal/service"
	"github.com/linemk/crypto-shop/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	// объект приложения: конфиг, БД, redis, шина событий, провайдеры
	application, err := app.NewApp(initCtx, log, cfg)
	initCancel()
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB, log, productRepo)
	eventRepo := storage.NewPaymentEventRepository(application.DB)
	sessions := storage.NewSessionStore(application.Redis)

	tokenTTL := time.Duration(cfg.JWT.TokenTTL) * time.Minute
	authService := service.NewAuthService(log, userRepo, sessions, cfg.JWT.Secret, tokenTTL)
	productService := service.NewProductService(log, productRepo)
	eventLog := service.NewEventLog(log, eventRepo, application.Publisher)
	orderService := service.NewOrderService(log, orderRepo, application.Providers, eventLog, service.OrderConfig{
		TTL:             cfg.Orders.TTL,
		MaxQuantity:     cfg.Orders.MaxQuantity,
		DefaultCurrency: cfg.Orders.DefaultCurrency,
		Currencies:      cfg.Orders.Currencies,
		DefaultProvider: payment.ProviderID(cfg.Orders.DefaultProvider),
	})

	router.Get("/healthz", handlers.HealthHandler(log, application.DB))

	router.Post("/api/register", handlers.RegisterHandler(log, authService))
	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(log, authService))
	router.Get("/api/products", handlers.ProductsHandler(log, productService))

	// уведомления провайдеров: аутентификация только по подписи
	router.Post("/webhook/{provider}", handlers.WebhookHandler(log, orderService))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(cfg.JWT.Secret, sessions))
		r.Post("/api/logout", handlers.LogoutHandler(log, authService))
		// покупка товара: заказ + счёт у провайдера
		r.Post("/api/buy/{productID}", handlers.BuyHandler(log, orderService, cfg.HTTPServer.TrustProxy))
		r.Get("/api/orders/{orderID}", handlers.OrderHandler(log, orderService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server",
			slog.String("address", cfg.HTTPServer.Address),
			slog.Any("providers", application.Providers.IDs()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
