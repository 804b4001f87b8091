package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	checkin_db "ms-checkin/internal/checkin/db"
	rediswrap "ms-checkin/internal/checkin/redis"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/token"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	logger.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established")
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if !cfg.Redis.Enabled {
		logger.Warn("REDIS", "Redis disabled, live counters and token cache unavailable")
		return bunDB, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Redis connection error, continuing without it: %v", err))
		return bunDB, nil
	}

	logger.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return bunDB, redisClient
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Check-In Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	if cfg.Auth.OIDCIssuer == "" {
		logger.Fatal("CONFIG", "OIDC_ISSUER not set")
	}

	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	logger.LogDatabase("MIGRATE", "postgresql", "All pending migrations applied")

	store := &checkin_db.DB{Bun: bunDB}

	var stats *rediswrap.Stats
	if redisClient != nil {
		stats = rediswrap.NewStats(redisClient, logger)
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ScanRecorded, cfg.Kafka.Topics.CheckedIn)
		defer producer.Close()
		logger.LogKafka("INIT", cfg.Kafka.Topics.ScanRecorded, "Kafka producer initialized successfully")

		requiredTopics := []string{cfg.Kafka.Topics.ScanRecorded, cfg.Kafka.Topics.CheckedIn}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.LogKafka("ENSURE", strings.Join(requiredTopics, ","), "Required topics ensured successfully")
		}
	} else {
		logger.Warn("KAFKA", "Kafka disabled, scan events will not be streamed")
	}

	emitter := sse.NewScanEventEmitter()

	recorder := audit.NewRecorder(store, logger)
	if producer != nil {
		recorder.Events = producer
	}
	recorder.Feed = emitter
	if stats != nil {
		recorder.Stats = stats
	}

	authenticator := token.NewAuthenticator(cfg.Token.SigningSecret, store, cfg.Token.TTL)
	engine := checkin.NewEngine(store)
	service := checkin.NewService(authenticator, store, engine, recorder, logger)

	handler := &checkin_api.Handler{
		Service:  service,
		Issuer:   authenticator,
		DB:       store,
		Stats:    stats,
		Logger:   logger,
		TokenTTL: cfg.Token.TTL,
	}
	sseHandler := checkin_api.NewSSEHandler(logger, emitter)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	// --- Public Routes (kiosk scanners) ---
	r.Post("/api/attendance/check-in", handler.CheckIn)
	r.Get("/api/attendance/live", sseHandler.HandleLiveScans)
	logger.Info("ROUTER", "Public check-in endpoints registered under /api/attendance")

	// --- Protected Routes (staff roster view) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
		logger.Info("AUTH", "OIDC middleware applied to staff API routes")

		r.Route("/api/guests/{guestID}", func(r chi.Router) {
			r.Get("/qr-token", handler.QRToken)
			r.Get("/qr.png", handler.QRImage)
			r.Post("/qr-secret/rotate", handler.RotateSecret)
		})
		r.Get("/api/attendance/stats", handler.AttendanceStats)
		logger.Info("ROUTER", "Staff routes registered under /api/guests and /api/attendance/stats")
	})

	// No WriteTimeout: the live scan feed holds its response open.
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Check-In Service running on %s", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Check-In Service shutdown complete")
	}
}
