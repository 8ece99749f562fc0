package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shenikar/emergency_dispatch/internal/auth"
	"github.com/shenikar/emergency_dispatch/internal/config"
	"github.com/shenikar/emergency_dispatch/internal/geo"
	v1 "github.com/shenikar/emergency_dispatch/internal/handler/http/v1"
	"github.com/shenikar/emergency_dispatch/internal/handler/ws"
	"github.com/shenikar/emergency_dispatch/internal/push"
	"github.com/shenikar/emergency_dispatch/internal/repository"
	"github.com/shenikar/emergency_dispatch/internal/service"
	"github.com/shenikar/emergency_dispatch/pkg/logger"
	"github.com/shenikar/emergency_dispatch/pkg/postgres"
	redisclient "github.com/shenikar/emergency_dispatch/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/emergency_dispatch/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// tokenTTL - срок жизни токенов, выпускаемых JWTManager
const tokenTTL = 24 * time.Hour

// @title Emergency Dispatch API
// @version 1.0
// @description Emergency reporting, nearby responder alerts and live incident updates.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Шлюз live-событий; межсерверная пересылка через Redis Pub/Sub по флагу
	var relay push.Relay
	if cfg.RedisRelayEnabled {
		relay = push.NewRedisRelay(redisClient, push.DefaultRelayChannel, log)
	}
	gateway := push.NewGateway(relay, log)
	gateway.Start(ctx)

	// Внешние геосервисы с ограничением по времени и circuit breaker
	mapbox := geo.NewMapboxClient(cfg.MapboxBaseURL, cfg.MapboxAccessToken, nil, geo.DefaultBreakerConfig)
	lookups := geo.NewBestEffort(mapbox, cfg.LookupTimeout, log)

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret, tokenTTL)
	if err != nil {
		log.Fatalf("Failed to init JWT manager: %v", err)
	}

	// Инициализация репозиториев
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.IncidentCacheTTL)
	userRepo := repository.NewUserRepository(dbpool)
	notificationRepo := repository.NewNotificationRepository(dbpool)

	// Инициализация сервисов
	dispatchService := service.NewDispatchService(incidentRepo, userRepo, notificationRepo, gateway, lookups,
		service.DispatchConfig{
			RadiusMeters:      cfg.DispatchRadiusMeters,
			LocationFreshness: cfg.LocationFreshness,
		}, log)
	incidentService := service.NewIncidentService(incidentRepo, userRepo, notificationRepo, gateway, lookups, log)
	notificationService := service.NewNotificationService(notificationRepo, log)
	presenceService := service.NewPresenceService(userRepo, jwtManager, log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(dispatchService, incidentService, notificationService, presenceService, log)
	wsHandler := ws.NewHandler(gateway, presenceService, dispatchService, cfg.WSAllowedOrigins, log)

	// Настройка Gin роутера
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log))
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	wsHandler.RegisterRoutes(router)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Live-соединения не отслеживаются http.Server после upgrade, закрываем их отдельно
	cancel()
	gateway.Close()
	if err := wsHandler.Wait(shutdownCtx); err != nil {
		log.Errorf("Live sessions were not drained: %v", err)
	}

	log.Info("Server gracefully stopped")
}
