package util

import (
	"context"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
)

// TreeCache интерфейс для кеша собранного дерева категорий
// Используется для dependency injection и упрощения тестирования
type TreeCache interface {
	SetTree(ctx context.Context, tree []entity.CategoryTreeNode, ttl time.Duration) error
	GetTree(ctx context.Context) ([]entity.CategoryTreeNode, error)
	DeleteTree(ctx context.Context) error
	Close() error
}

// MessagePublisher интерфейс для отправки событий в очередь (Kafka)
// Используется для dependency injection и упрощения тестирования
type MessagePublisher interface {
	PublishMessage(ctx context.Context, key string, value []byte) error
	Close() error
}
