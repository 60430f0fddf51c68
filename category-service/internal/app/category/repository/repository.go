package repository

import (
	"context"
	"errors"

	"grandbazar/category-service/internal/app/category/entity"

	"github.com/google/uuid"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrSlugAlreadyTaken = errors.New("category with this slug already exists")
)

// CategoryRepository - единственный компонент, выполняющий чтение и запись
// записей категорий. Слой service никогда не пишет level/path/metrics напрямую,
// только через UpdateStructure/UpdateMetrics
type CategoryRepository interface {
	Create(ctx context.Context, category *entity.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Category, error)
	GetBySlugs(ctx context.Context, slugs []string) ([]entity.Category, error)
	GetAll(ctx context.Context) ([]entity.Category, error)
	GetChildren(ctx context.Context, parentID uuid.UUID) ([]entity.Category, error)
	GetRoots(ctx context.Context) ([]entity.Category, error)
	CountChildren(ctx context.Context, id uuid.UUID) (int64, error)
	Update(ctx context.Context, category *entity.Category) error
	// UpdateStructure применяет батч пересчитанных level/path атомарно
	// в одной транзакции: либо все потомки обновлены, либо никто
	UpdateStructure(ctx context.Context, updates []entity.StructureUpdate) error
	UpdateMetrics(ctx context.Context, id uuid.UUID, metrics *entity.CategoryMetrics) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditRepository - append-only журнал изменений категорий
// Записи никогда не редактируются и не удаляются
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	GetByCategoryID(ctx context.Context, categoryID uuid.UUID) ([]entity.AuditEntry, error)
}

// ProductReader - read-only интерфейс внешнего коллаборатора Product
// Каталог товаров принадлежит другому сервису, здесь только агрегатные запросы
type ProductReader interface {
	CountByCategoryIDs(ctx context.Context, ids []uuid.UUID) (*entity.ProductCounts, error)
	AggregateByCategoryIDs(ctx context.Context, ids []uuid.UUID) (*entity.ProductAggregates, error)
	CountDirectByCategoryID(ctx context.Context, id uuid.UUID) (int64, error)
}
