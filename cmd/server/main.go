package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/cache"
	"github.com/skyroute/booking-core/internal/config"
	"github.com/skyroute/booking-core/internal/database"
	"github.com/skyroute/booking-core/internal/events"
	"github.com/skyroute/booking-core/internal/handlers"
	"github.com/skyroute/booking-core/internal/metrics"
	"github.com/skyroute/booking-core/internal/middleware"
	"github.com/skyroute/booking-core/internal/services"
	"github.com/skyroute/booking-core/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SkyRoute booking core")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Metrics
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if !cfg.Metrics.Enabled {
		registerer = prometheus.NewRegistry()
	}
	appMetrics := metrics.NewMetrics(cfg.Metrics.Namespace, registerer)

	// Repositories
	flightRepo := database.NewFlightRepository(db)
	flightSeatRepo := database.NewFlightSeatRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	refundRepo := database.NewRefundRepository(db)

	var catalog services.FlightCatalog = flightRepo
	if cfg.Redis.Addr != "" {
		redisClient := cache.NewRedisClient(cfg.Redis)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, flight cache will fall through to the database")
		}
		cancel()

		catalog = cache.NewFlightCache(redisClient, flightRepo, cfg.Redis.FlightTTL, logger)
		logger.WithField("addr", cfg.Redis.Addr).Info("Flight cache enabled")
	} else {
		logger.Info("REDIS_ADDR not set, flight cache disabled")
	}

	publisher := events.NewPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(db, logger)
	resolver := services.NewCancellationPolicyResolver(refundRepo)
	gateway := services.NewPaymentGateway(&cfg.Payment, logger)

	seatInventory := services.NewSeatInventoryService(flightSeatRepo, services.SeatInventoryConfig{
		HoldWindow:     cfg.Booking.SeatHoldWindow,
		SweepBatchSize: cfg.Booking.SweepBatchSize,
	}, appMetrics, logger)

	lifecycle := services.NewBookingLifecycleService(
		catalog,
		bookingRepo,
		paymentRepo,
		refundRepo,
		seatInventory,
		resolver,
		gateway,
		publisher,
		appMetrics,
		services.BookingLifecycleConfig{
			BookingHoldWindow:  cfg.Booking.BookingHoldWindow,
			PaymentTimeout:     cfg.Payment.Timeout,
			ReconcileBatchSize: cfg.Booking.SweepBatchSize,
		},
		logger,
	)

	// Background jobs
	holdExpiration := services.NewHoldExpirationService(seatInventory, cfg.Booking.HoldSweepInterval, logger)
	holdExpiration.Start()
	logger.WithField("interval", cfg.Booking.HoldSweepInterval).Info("Seat hold sweeper started")

	schedule := services.DefaultCronSchedule()
	schedule.Reconcile = cfg.Booking.ReconcileSchedule
	schedule.AuditRetention = cfg.Booking.AuditRetention
	cronService := services.NewCronService(lifecycle, auditService, schedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Cron service started")

	bookingHandler := handlers.NewBookingHandler(lifecycle, auditService, logger)
	logger.Info("Services initialized")

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Instrument(appMetrics))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/api/v1")
	bookingHandler.RegisterRoutes(v1, middleware.AuthMiddleware(jwtService, logger), cfg.Booking.ReviewerRoles)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	holdExpiration.Stop()
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *database.PostgresDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context(), 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
