package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит все настройки приложения Category Service
// Включает конфигурацию HTTP сервера, PostgreSQL, MongoDB, Redis, Kafka,
// JWT и фонового воркера пересчета метрик
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Worker   WorkerConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig - настройки подключения к PostgreSQL
// Хранит дерево категорий; каталог товаров читается из той же БД read-only
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// MongoConfig - настройки MongoDB для append-only журнала изменений
type MongoConfig struct {
	URI    string
	DBName string
}

// RedisConfig - настройки Redis для кеширования дерева категорий
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// KafkaConfig - настройки Kafka
// CategoryTopic - события инвалидации метрик, публикуемые этим сервисом
// ProductTopic - внешние события изменения товаров
type KafkaConfig struct {
	Brokers       []string
	CategoryTopic string
	ProductTopic  string
	GroupID       string
}

// JWTConfig - настройки проверки JWT токенов
// Секрет должен совпадать с Auth Service
type JWTConfig struct {
	Secret string
}

// WorkerConfig - настройки воркера пересчета метрик
type WorkerConfig struct {
	RecomputeTimeout time.Duration // Таймаут одного каскадного пересчета
	CronSchedule     string        // Расписание фоновой сверки инвариантов
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
	}

	recomputeTimeout, err := time.ParseDuration(getEnv("RECOMPUTE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECOMPUTE_TIMEOUT value: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8084"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "category_service"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Mongo: MongoConfig{
			URI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
			DBName: getEnv("MONGO_DB", "category_service"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			CategoryTopic: getEnv("KAFKA_CATEGORY_TOPIC", "category_events"),
			ProductTopic:  getEnv("KAFKA_PRODUCT_TOPIC", "product_events"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "category-metrics-worker"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		},
		Worker: WorkerConfig{
			RecomputeTimeout: recomputeTimeout,
			// По умолчанию сверка каждую ночь в 03:00
			CronSchedule: getEnv("RECONCILE_SCHEDULE", "0 3 * * *"),
		},
	}, nil
}

// DSN возвращает строку подключения к PostgreSQL в формате libpq
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL возвращает строку подключения к PostgreSQL в формате URL для pgx
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Address возвращает адрес сервера в формате host:port
func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

// Address возвращает адрес Redis в формате host:port
func (c *RedisConfig) Address() string {
	return c.Host + ":" + c.Port
}

// getEnv получает значение переменной окружения или значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
