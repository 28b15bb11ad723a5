package router

import (
	"context"
	"net/http"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/stripeclient"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the full stack and returns the root handler together with the
// connection pool so main can close it on shutdown.
func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	// 1. Open DB connection pool
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Payment processor client
	provider := stripeclient.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret, logger)

	// 3. Repositories & services & handlers
	userRepo := repository.NewUserRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	purchaseRepo := repository.NewPurchaseRepo(pool)

	userSvc := service.NewUserService(userRepo, logger)
	subSvc := service.NewSubscriptionService(subRepo, logger)
	paymentSvc := service.NewPaymentService(cfg, provider, userRepo, subSvc, logger)
	processor := service.NewWebhookProcessor(provider, userRepo, subSvc, purchaseRepo, logger)

	secureCookies := cfg.Environment != "development"
	userHandler := handler.NewUserHandler(userSvc, subSvc, cfg.JWTSecret, secureCookies, logger)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, logger)
	webhookHandler := handler.NewWebhookHandler(processor, logger)

	// 4. Middleware & routes
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	mux := http.NewServeMux()
	userHandler.RegisterRoutes(mux, authMiddleware)
	paymentHandler.RegisterRoutes(mux, authMiddleware)
	webhookHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Stripe Payment Server is running"))
	})

	// 5. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}
