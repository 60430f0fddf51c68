package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"grandbazar/category-service/internal/app/category/config"
	"grandbazar/category-service/internal/app/category/handler"
	"grandbazar/category-service/internal/app/category/processor"
	"grandbazar/category-service/internal/app/category/repository"
	"grandbazar/category-service/internal/app/category/service"
	"grandbazar/category-service/internal/app/category/util"
	"grandbazar/pkg/logger"
)

func main() {
	logger.Init("category-service", os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	// === ПОДКЛЮЧЕНИЕ К POSTGRESQL ===
	// Пул pgx для дерева категорий и gorm для read-only чтения каталога товаров
	db, err := connectDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgresql")
	}
	defer db.Close()
	logger.Info().Msg("connected to postgresql")

	gormDB, err := gorm.Open(gormpostgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open gorm connection")
	}

	// === ПОДКЛЮЧЕНИЕ К MONGODB ===
	// MongoDB хранит append-only журнал изменений категорий
	mongoCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer mongoClient.Disconnect(ctx)
	logger.Info().Msg("connected to mongodb")

	// === ПОДКЛЮЧЕНИЕ К REDIS ===
	// Redis кеширует собранное дерево категорий
	redisClient, err := util.NewRedisClient(cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info().Msg("connected to redis")

	// === ИНИЦИАЛИЗАЦИЯ KAFKA PRODUCER ===
	// События CATEGORY_METRICS_INVALIDATED уходят в топик category_events,
	// consumer этого же сервиса подписан на него вместе с product_events
	kafkaProducer := util.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.CategoryTopic)
	defer kafkaProducer.Close()

	// === ИНИЦИАЛИЗАЦИЯ СЛОЯ РЕПОЗИТОРИЕВ ===
	categoryRepo := repository.NewCategoryRepository(db)
	auditRepo := repository.NewAuditRepository(mongoClient.Database(cfg.Mongo.DBName))
	productReader := repository.NewProductReader(gormDB)

	// === ИНИЦИАЛИЗАЦИЯ БИЗНЕС-ЛОГИКИ ===
	resolver := service.NewSubtreeResolver(categoryRepo)
	treeService := service.NewTreeService(categoryRepo, productReader, resolver)
	metricsService := service.NewMetricsService(categoryRepo, productReader, resolver, cfg.Worker.RecomputeTimeout)
	categoryService := service.NewCategoryService(
		treeService,
		metricsService,
		categoryRepo,
		auditRepo,
		redisClient,
		kafkaProducer,
	)

	// === ЗАПУСК ФОНОВЫХ ОБРАБОТЧИКОВ ===
	// Consumer превращает события инвалидации в пересчеты метрик,
	// cron-задание чинит дрейф структурных инвариантов
	consumer := processor.NewKafkaConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.CategoryTopic,
		cfg.Kafka.ProductTopic,
		cfg.Kafka.GroupID,
		metricsService,
	)
	consumer.Start(ctx)

	scheduler := processor.NewReconciliationScheduler(treeService, metricsService, categoryRepo)
	if err := scheduler.Start(ctx, cfg.Worker.CronSchedule); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reconciliation scheduler")
	}

	// === НАСТРОЙКА HTTP СЕРВЕРА ===
	categoryHandler := handler.NewCategoryHandler(categoryService)
	authMiddleware := handler.NewAuthMiddleware(cfg.JWT.Secret)
	router := handler.SetupRoutes(categoryHandler, authMiddleware)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Address()).Msg("starting category service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// === GRACEFUL SHUTDOWN ===
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down category service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	consumer.Stop()
	scheduler.Stop()
	// Дожидаемся запущенных пересчетов, чтобы не бросать метрики на полпути
	metricsService.Wait()

	logger.Info().Msg("category service stopped gracefully")
}

// connectDB устанавливает соединение с PostgreSQL через pgx connection pool
// Retry logic с 10 попытками для устойчивости при запуске в Docker
func connectDB(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	var pool *pgxpool.Pool
	for i := 0; i < 10; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn().Err(err).Int("attempt", i+1).Msg("failed to connect to database, retrying")
		time.Sleep(3 * time.Second)
	}

	return nil, err
}
