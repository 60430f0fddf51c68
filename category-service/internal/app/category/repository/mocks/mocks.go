package mocks

import (
	"context"
	"time"

	"grandbazar/category-service/internal/app/category/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockCategoryRepository мок для CategoryRepository
type MockCategoryRepository struct {
	mock.Mock
}

func (m *MockCategoryRepository) Create(ctx context.Context, category *entity.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *MockCategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Category), args.Error(1)
}

func (m *MockCategoryRepository) GetBySlugs(ctx context.Context, slugs []string) ([]entity.Category, error) {
	args := m.Called(ctx, slugs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Category), args.Error(1)
}

func (m *MockCategoryRepository) GetAll(ctx context.Context) ([]entity.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Category), args.Error(1)
}

func (m *MockCategoryRepository) GetChildren(ctx context.Context, parentID uuid.UUID) ([]entity.Category, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Category), args.Error(1)
}

func (m *MockCategoryRepository) GetRoots(ctx context.Context) ([]entity.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Category), args.Error(1)
}

func (m *MockCategoryRepository) CountChildren(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCategoryRepository) Update(ctx context.Context, category *entity.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *MockCategoryRepository) UpdateStructure(ctx context.Context, updates []entity.StructureUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

func (m *MockCategoryRepository) UpdateMetrics(ctx context.Context, id uuid.UUID, metrics *entity.CategoryMetrics) error {
	args := m.Called(ctx, id, metrics)
	return args.Error(0)
}

func (m *MockCategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAuditRepository мок для AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByCategoryID(ctx context.Context, categoryID uuid.UUID) ([]entity.AuditEntry, error) {
	args := m.Called(ctx, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AuditEntry), args.Error(1)
}

// MockProductReader мок для ProductReader
type MockProductReader struct {
	mock.Mock
}

func (m *MockProductReader) CountByCategoryIDs(ctx context.Context, ids []uuid.UUID) (*entity.ProductCounts, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ProductCounts), args.Error(1)
}

func (m *MockProductReader) AggregateByCategoryIDs(ctx context.Context, ids []uuid.UUID) (*entity.ProductAggregates, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ProductAggregates), args.Error(1)
}

func (m *MockProductReader) CountDirectByCategoryID(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

// MockTreeCache мок для TreeCache (Redis)
type MockTreeCache struct {
	mock.Mock
}

func (m *MockTreeCache) SetTree(ctx context.Context, tree []entity.CategoryTreeNode, ttl time.Duration) error {
	args := m.Called(ctx, tree, ttl)
	return args.Error(0)
}

func (m *MockTreeCache) GetTree(ctx context.Context) ([]entity.CategoryTreeNode, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.CategoryTreeNode), args.Error(1)
}

func (m *MockTreeCache) DeleteTree(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTreeCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockMessagePublisher мок для MessagePublisher (Kafka)
type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) PublishMessage(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTreeManager мок для TreeManager
type MockTreeManager struct {
	mock.Mock
}

func (m *MockTreeManager) CreateNode(ctx context.Context, name string, parentID *uuid.UUID) (*entity.Category, error) {
	args := m.Called(ctx, name, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Category), args.Error(1)
}

func (m *MockTreeManager) MoveNode(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*entity.Category, error) {
	args := m.Called(ctx, id, newParentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Category), args.Error(1)
}

func (m *MockTreeManager) DeleteNode(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTreeManager) ReconcileStructure(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Get(0).(int), args.Error(1)
}

// MockMetricsAggregator мок для MetricsAggregator
type MockMetricsAggregator struct {
	mock.Mock
}

func (m *MockMetricsAggregator) Recompute(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMetricsAggregator) Trigger(id uuid.UUID) {
	m.Called(id)
}

func (m *MockMetricsAggregator) Wait() {
	m.Called()
}
