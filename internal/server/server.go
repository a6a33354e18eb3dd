package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"perfume-store/internal/config"
	"perfume-store/internal/metrics"
	custommiddleware "perfume-store/internal/middleware"
	"perfume-store/internal/realtime"
	"perfume-store/internal/repository"
	"perfume-store/internal/service"
	"perfume-store/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) *Server {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Rate limiting fails open and the feed degrades; the API still serves
		logger.Warn("Redis is not reachable", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	// Create router
	router := newRouter(cfg, logger, httpMetrics)

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if err := db.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "down"
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			body["redis"] = "down"
		}
		custommiddleware.RespondWithJSON(w, status, body)
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Change feed
	feed := realtime.NewFeed(redisClient, logger)

	// Initialize repositories
	profileRepo := repository.NewProfileRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	perfumeRepo := repository.NewPerfumeRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	favoriteRepo := repository.NewFavoriteRepository(db)
	cartRepo := repository.NewCartRepository(db)

	// Initialize services
	links := service.CheckoutLinks{
		Phone:           cfg.Checkout.WhatsAppPhone,
		InstagramHandle: cfg.Checkout.InstagramHandle,
	}
	sessionService := service.NewSessionService(profileRepo, refreshTokenRepo, feed, service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	}, logger)
	catalogService := service.NewCatalogService(perfumeRepo, favoriteRepo, reviewRepo, logger)
	reviewService := service.NewReviewService(reviewRepo, perfumeRepo, feed, metrics.New(registry, "reviews"), logger)
	favoritesLedger := service.NewFavoritesLedger(favoriteRepo, feed, metrics.New(registry, "favorites"), logger)
	cartLedger := service.NewCartLedger(cartRepo, perfumeRepo, links, feed, metrics.New(registry, "cart"), logger)
	adminService := service.NewAdminService(
		perfumeRepo,
		profileRepo,
		service.NewRedisConfirmationStore(redisClient),
		service.AdminConfig{
			DeleteConfirmationTTL: cfg.Admin.DeleteConfirmationTTL,
			ImageMaxBytes:         cfg.Admin.ImageMaxBytes,
		},
		metrics.New(registry, "admin"),
		logger,
	)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(sessionService, logger)
	optionalAuth := custommiddleware.OptionalAuth(sessionService, logger)
	requireAdmin := custommiddleware.RequireAdmin(sessionService, logger)
	authLimiter := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.AuthRequests,
		Window:            cfg.RateLimit.AuthWindow,
		KeyPrefix:         "ratelimit:auth",
	}, logger)

	// Initialize handlers
	sessionHandler := transport.NewSessionHandler(sessionService, logger)
	profileHandler := transport.NewProfileHandler(sessionService, links, logger)
	catalogHandler := transport.NewCatalogHandler(catalogService, reviewService, logger)
	favoriteHandler := transport.NewFavoriteHandler(favoritesLedger, logger)
	cartStream := transport.NewCartStream(cartLedger, feed, cfg.Server.AllowedOrigins, logger)
	cartHandler := transport.NewCartHandler(cartLedger, cartStream, logger)
	adminHandler := transport.NewAdminHandler(adminService, cfg.Admin.ImageMaxBytes, logger)

	// Register routes
	sessionHandler.RegisterRoutes(router, authMiddleware, authLimiter)
	profileHandler.RegisterRoutes(router, authMiddleware)
	catalogHandler.RegisterRoutes(router, optionalAuth, authMiddleware)
	favoriteHandler.RegisterRoutes(router, authMiddleware)
	cartHandler.RegisterRoutes(router, authMiddleware)
	adminHandler.RegisterRoutes(router, authMiddleware, requireAdmin)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	return server
}

// newRouter returns a router carrying the middleware every route shares.
// Wrapped writers must keep http.Hijacker for the cart stream.
func newRouter(cfg *config.Config, logger *zap.Logger, httpMetrics *metrics.HTTPMetrics) *chi.Mux {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(httpMetrics.Middleware)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

	return router
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
