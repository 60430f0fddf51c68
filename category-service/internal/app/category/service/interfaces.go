package service

import (
	"context"

	"grandbazar/category-service/internal/app/category/entity"

	"github.com/google/uuid"
)

// TreeManager - операции над структурой дерева категорий
type TreeManager interface {
	CreateNode(ctx context.Context, name string, parentID *uuid.UUID) (*entity.Category, error)
	MoveNode(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*entity.Category, error)
	DeleteNode(ctx context.Context, id uuid.UUID) error
	ReconcileStructure(ctx context.Context) (int, error)
}

// MetricsAggregator - пересчет rollup-метрик категорий
type MetricsAggregator interface {
	Recompute(ctx context.Context, id uuid.UUID) error
	Trigger(id uuid.UUID)
	Wait()
}

// CategoryServiceInterface - публичный фасад подсистемы категорий
type CategoryServiceInterface interface {
	CreateCategory(ctx context.Context, req *entity.CreateCategoryRequest, actor string) (*entity.Category, error)
	MoveCategory(ctx context.Context, id uuid.UUID, req *entity.MoveCategoryRequest, actor string) (*entity.Category, error)
	RenameCategory(ctx context.Context, id uuid.UUID, req *entity.RenameCategoryRequest, actor string) (*entity.Category, error)
	UpdateCategoryStatus(ctx context.Context, id uuid.UUID, req *entity.UpdateCategoryStatusRequest, actor string) (*entity.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID, actor string) error
	GetCategory(ctx context.Context, id uuid.UUID) (*entity.Category, error)
	GetChildren(ctx context.Context, id uuid.UUID) ([]entity.Category, error)
	GetTree(ctx context.Context, rootID *uuid.UUID) ([]entity.CategoryTreeNode, error)
	GetBreadcrumb(ctx context.Context, id uuid.UUID) ([]entity.Category, error)
	GetMetrics(ctx context.Context, id uuid.UUID) (*entity.CategoryMetrics, error)
	GetAuditLog(ctx context.Context, id uuid.UUID) ([]entity.AuditEntry, error)
}
