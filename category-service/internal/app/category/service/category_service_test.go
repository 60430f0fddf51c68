package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/repository"
	"grandbazar/category-service/internal/app/category/repository/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type facadeDeps struct {
	tree         *mocks.MockTreeManager
	aggregator   *mocks.MockMetricsAggregator
	categoryRepo *mocks.MockCategoryRepository
	auditRepo    *mocks.MockAuditRepository
	cache        *mocks.MockTreeCache
	publisher    *mocks.MockMessagePublisher
}

func newFacade() (*CategoryService, *facadeDeps) {
	deps := &facadeDeps{
		tree:         new(mocks.MockTreeManager),
		aggregator:   new(mocks.MockMetricsAggregator),
		categoryRepo: new(mocks.MockCategoryRepository),
		auditRepo:    new(mocks.MockAuditRepository),
		cache:        new(mocks.MockTreeCache),
		publisher:    new(mocks.MockMessagePublisher),
	}
	service := NewCategoryService(deps.tree, deps.aggregator, deps.categoryRepo, deps.auditRepo, deps.cache, deps.publisher)
	return service, deps
}

func newActiveCategory(name, slug string) *entity.Category {
	return &entity.Category{
		ID:     uuid.New(),
		Name:   name,
		Slug:   slug,
		Status: entity.StatusActive,
		Settings: entity.CategorySettings{
			IsActive:      true,
			IsVisible:     true,
			AllowProducts: true,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestCategoryService_CreateCategory_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	created := newActiveCategory("Electronics", "electronics")
	deps.tree.On("CreateNode", ctx, "Electronics", (*uuid.UUID)(nil)).Return(created, nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)
	deps.publisher.On("PublishMessage", ctx, created.ID.String(), mock.AnythingOfType("[]uint8")).Return(nil)

	req := &entity.CreateCategoryRequest{Name: "Electronics"}

	// Act
	category, err := service.CreateCategory(ctx, req, "admin@grandbazar.ru")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, created.ID, category.ID)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionCreated &&
			e.CategoryID == created.ID.String() &&
			e.PerformedBy == "admin@grandbazar.ru" &&
			e.Changes.Created != nil
	}))
	deps.cache.AssertExpectations(t)
	deps.publisher.AssertExpectations(t)
}

func TestCategoryService_CreateCategory_AuditFailureIgnored(t *testing.T) {
	// Arrange - журнал недоступен, операция все равно должна пройти
	ctx := context.Background()
	service, deps := newFacade()

	created := newActiveCategory("Books", "books")
	deps.tree.On("CreateNode", ctx, "Books", (*uuid.UUID)(nil)).Return(created, nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(errors.New("mongo down"))
	deps.cache.On("DeleteTree", ctx).Return(nil)
	deps.publisher.On("PublishMessage", ctx, created.ID.String(), mock.AnythingOfType("[]uint8")).Return(nil)

	// Act
	category, err := service.CreateCategory(ctx, &entity.CreateCategoryRequest{Name: "Books"}, "admin")

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, category)
}

func TestCategoryService_CreateCategory_TreeError(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	deps.tree.On("CreateNode", ctx, "Electronics", (*uuid.UUID)(nil)).
		Return(nil, fmt.Errorf("%w: slug already taken", ErrConflict))

	// Act
	category, err := service.CreateCategory(ctx, &entity.CreateCategoryRequest{Name: "Electronics"}, "admin")

	// Assert - журнал и кеш не трогаются при отказе
	assert.Nil(t, category)
	assert.ErrorIs(t, err, ErrConflict)
	deps.auditRepo.AssertNotCalled(t, "Append")
	deps.cache.AssertNotCalled(t, "DeleteTree")
}

func TestCategoryService_MoveCategory_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	oldParentID := uuid.New()
	before := newActiveCategory("Phones", "phones")
	before.ParentID = &oldParentID
	before.Level = 1
	before.Path = "electronics"

	moved := *before
	moved.ParentID = nil
	moved.Level = 0
	moved.Path = ""

	deps.categoryRepo.On("GetByID", ctx, before.ID).Return(before, nil)
	deps.tree.On("MoveNode", ctx, before.ID, (*uuid.UUID)(nil)).Return(&moved, nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)
	deps.publisher.On("PublishMessage", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("[]uint8")).Return(nil)

	req := &entity.MoveCategoryRequest{NewParentID: nil, Reason: "restructuring"}

	// Act
	result, err := service.MoveCategory(ctx, before.ID, req, "manager")

	// Assert - перемещение фиксируется как updated с payload reparented
	require.NoError(t, err)
	assert.Nil(t, result.ParentID)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionUpdated &&
			e.Reason == "restructuring" &&
			e.Changes.Reparented != nil &&
			e.Changes.Reparented.OldPath == "electronics" &&
			e.Changes.Reparented.NewPath == ""
	}))
	// Инвалидация для узла и для старого родителя
	deps.publisher.AssertNumberOfCalls(t, "PublishMessage", 2)
}

func TestCategoryService_MoveCategory_NotFound(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	id := uuid.New()
	deps.categoryRepo.On("GetByID", ctx, id).Return(nil, repository.ErrCategoryNotFound)

	// Act
	result, err := service.MoveCategory(ctx, id, &entity.MoveCategoryRequest{}, "manager")

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNotFound)
	deps.tree.AssertNotCalled(t, "MoveNode")
}

func TestCategoryService_RenameCategory_SlugUnchanged(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Electronics", "electronics")
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.categoryRepo.On("Update", ctx, category).Return(nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)

	req := &entity.RenameCategoryRequest{Name: "Consumer Electronics"}

	// Act
	renamed, err := service.RenameCategory(ctx, category.ID, req, "manager")

	// Assert - имя меняется, slug остается прежним
	require.NoError(t, err)
	assert.Equal(t, "Consumer Electronics", renamed.Name)
	assert.Equal(t, "electronics", renamed.Slug)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionUpdated &&
			e.Changes.Renamed != nil &&
			e.Changes.Renamed.OldName == "Electronics" &&
			e.Changes.Renamed.NewName == "Consumer Electronics"
	}))
	// Переименование не меняет структуру и не инвалидирует метрики
	deps.publisher.AssertNotCalled(t, "PublishMessage")
}

func TestCategoryService_UpdateCategoryStatus_Archive(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Old Stock", "old-stock")
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.categoryRepo.On("Update", ctx, category).Return(nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)

	archived := entity.StatusArchived
	req := &entity.UpdateCategoryStatusRequest{Status: &archived, Reason: "season ended"}

	// Act
	updated, err := service.UpdateCategoryStatus(ctx, category.ID, req, "admin")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, entity.StatusArchived, updated.Status)
	assert.False(t, updated.Settings.IsActive)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionArchived && e.Changes.Status != nil
	}))
}

func TestCategoryService_UpdateCategoryStatus_RestoreFromArchive(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Old Stock", "old-stock")
	category.Status = entity.StatusArchived
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.categoryRepo.On("Update", ctx, category).Return(nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)

	active := entity.StatusActive
	req := &entity.UpdateCategoryStatusRequest{Status: &active}

	// Act
	_, err := service.UpdateCategoryStatus(ctx, category.ID, req, "admin")

	// Assert - возврат из архива фиксируется как restored, не activated
	require.NoError(t, err)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionRestored
	}))
}

func TestCategoryService_UpdateCategoryStatus_VisibilityToggle(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Electronics", "electronics")
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.categoryRepo.On("Update", ctx, category).Return(nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)

	hidden := false
	req := &entity.UpdateCategoryStatusRequest{IsVisible: &hidden}

	// Act
	updated, err := service.UpdateCategoryStatus(ctx, category.ID, req, "manager")

	// Assert
	require.NoError(t, err)
	assert.False(t, updated.Settings.IsVisible)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionMadeHidden && e.Changes.Visibility != nil
	}))
}

func TestCategoryService_UpdateCategoryStatus_NoChangeNoAudit(t *testing.T) {
	// Arrange - статус совпадает с текущим, запись в журнал не нужна
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Electronics", "electronics")
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.categoryRepo.On("Update", ctx, category).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)

	active := entity.StatusActive
	req := &entity.UpdateCategoryStatusRequest{Status: &active}

	// Act
	_, err := service.UpdateCategoryStatus(ctx, category.ID, req, "admin")

	// Assert
	require.NoError(t, err)
	deps.auditRepo.AssertNotCalled(t, "Append")
}

func TestCategoryService_DeleteCategory_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	parentID := uuid.New()
	category := newActiveCategory("Leaf", "leaf")
	category.ParentID = &parentID

	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.tree.On("DeleteNode", ctx, category.ID).Return(nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)
	deps.publisher.On("PublishMessage", ctx, parentID.String(), mock.AnythingOfType("[]uint8")).Return(nil)

	// Act
	err := service.DeleteCategory(ctx, category.ID, "admin")

	// Assert - запись deleted переживает узел, метрики родителя инвалидируются
	require.NoError(t, err)
	deps.auditRepo.AssertCalled(t, "Append", ctx, mock.MatchedBy(func(e *entity.AuditEntry) bool {
		return e.Action == entity.AuditActionDeleted && e.CategoryID == category.ID.String()
	}))
	deps.publisher.AssertExpectations(t)
}

func TestCategoryService_DeleteCategory_IntegrityViolation(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Parent", "parent")
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.tree.On("DeleteNode", ctx, category.ID).Return(fmt.Errorf("%w: has children", ErrIntegrity))

	// Act
	err := service.DeleteCategory(ctx, category.ID, "admin")

	// Assert
	assert.ErrorIs(t, err, ErrIntegrity)
	deps.auditRepo.AssertNotCalled(t, "Append")
}

func TestCategoryService_GetTree_CacheHit(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	cached := []entity.CategoryTreeNode{
		{Category: *newActiveCategory("Electronics", "electronics"), Children: []entity.CategoryTreeNode{}},
	}
	deps.cache.On("GetTree", ctx).Return(cached, nil)

	// Act
	tree, err := service.GetTree(ctx, nil)

	// Assert - БД не трогается при попадании в кеш
	require.NoError(t, err)
	assert.Len(t, tree, 1)
	deps.categoryRepo.AssertNotCalled(t, "GetAll")
}

func TestCategoryService_GetTree_CacheMiss(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	root := newActiveCategory("Electronics", "electronics")
	child := newActiveCategory("Phones", "phones")
	child.ParentID = &root.ID
	child.Level = 1
	child.Path = "electronics"

	deps.cache.On("GetTree", ctx).Return(nil, errors.New("cache miss"))
	deps.categoryRepo.On("GetAll", ctx).Return([]entity.Category{*root, *child}, nil)
	deps.cache.On("SetTree", ctx, mock.AnythingOfType("[]entity.CategoryTreeNode"), time.Hour).Return(nil)

	// Act
	tree, err := service.GetTree(ctx, nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, child.ID, tree[0].Children[0].Category.ID)
	deps.cache.AssertCalled(t, "SetTree", ctx, mock.AnythingOfType("[]entity.CategoryTreeNode"), time.Hour)
}

func TestCategoryService_GetTree_SubtreeNotCached(t *testing.T) {
	// Arrange - запрос поддерева идет мимо кеша
	ctx := context.Background()
	service, deps := newFacade()

	root := newActiveCategory("Electronics", "electronics")
	deps.categoryRepo.On("GetAll", ctx).Return([]entity.Category{*root}, nil)

	// Act
	tree, err := service.GetTree(ctx, &root.ID)

	// Assert
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, root.ID, tree[0].Category.ID)
	deps.cache.AssertNotCalled(t, "GetTree")
	deps.cache.AssertNotCalled(t, "SetTree")
}

func TestCategoryService_GetBreadcrumb_Success(t *testing.T) {
	// Arrange - узел на уровне 2: electronics/phones/smartphones
	ctx := context.Background()
	service, deps := newFacade()

	electronics := newActiveCategory("Electronics", "electronics")
	phones := newActiveCategory("Phones", "phones")
	phones.Path = "electronics"
	phones.Level = 1
	node := newActiveCategory("Smartphones", "smartphones")
	node.Path = "electronics/phones"
	node.Level = 2

	deps.categoryRepo.On("GetByID", ctx, node.ID).Return(node, nil)
	// Предки возвращаются в произвольном порядке, breadcrumb упорядочен по path
	deps.categoryRepo.On("GetBySlugs", ctx, []string{"electronics", "phones"}).
		Return([]entity.Category{*phones, *electronics}, nil)

	// Act
	breadcrumb, err := service.GetBreadcrumb(ctx, node.ID)

	// Assert
	require.NoError(t, err)
	require.Len(t, breadcrumb, 3)
	assert.Equal(t, electronics.ID, breadcrumb[0].ID)
	assert.Equal(t, phones.ID, breadcrumb[1].ID)
	assert.Equal(t, node.ID, breadcrumb[2].ID)
}

func TestCategoryService_GetBreadcrumb_Root(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	root := newActiveCategory("Electronics", "electronics")
	deps.categoryRepo.On("GetByID", ctx, root.ID).Return(root, nil)

	// Act
	breadcrumb, err := service.GetBreadcrumb(ctx, root.ID)

	// Assert - для корня breadcrumb состоит из него самого
	require.NoError(t, err)
	require.Len(t, breadcrumb, 1)
	assert.Equal(t, root.ID, breadcrumb[0].ID)
	deps.categoryRepo.AssertNotCalled(t, "GetBySlugs")
}

func TestCategoryService_GetMetrics_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Electronics", "electronics")
	category.Metrics = entity.CategoryMetrics{TotalProducts: 42, PopularityScore: 77}
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)

	// Act
	metrics, err := service.GetMetrics(ctx, category.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(42), metrics.TotalProducts)
	assert.Equal(t, 77, metrics.PopularityScore)
}

func TestCategoryService_GetAuditLog_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, deps := newFacade()

	category := newActiveCategory("Electronics", "electronics")
	entries := []entity.AuditEntry{
		{CategoryID: category.ID.String(), Action: entity.AuditActionCreated},
		{CategoryID: category.ID.String(), Action: entity.AuditActionUpdated},
	}
	deps.categoryRepo.On("GetByID", ctx, category.ID).Return(category, nil)
	deps.auditRepo.On("GetByCategoryID", ctx, category.ID).Return(entries, nil)

	// Act
	log, err := service.GetAuditLog(ctx, category.ID)

	// Assert
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, entity.AuditActionCreated, log[0].Action)
}

func TestCategoryService_PublishFailure_TriggersDirectRecompute(t *testing.T) {
	// Arrange - Kafka недоступна, пересчет запускается напрямую
	ctx := context.Background()
	service, deps := newFacade()

	created := newActiveCategory("Electronics", "electronics")
	deps.tree.On("CreateNode", ctx, "Electronics", (*uuid.UUID)(nil)).Return(created, nil)
	deps.auditRepo.On("Append", ctx, mock.AnythingOfType("*entity.AuditEntry")).Return(nil)
	deps.cache.On("DeleteTree", ctx).Return(nil)
	deps.publisher.On("PublishMessage", ctx, created.ID.String(), mock.AnythingOfType("[]uint8")).
		Return(errors.New("kafka unavailable"))
	deps.aggregator.On("Trigger", created.ID).Return()

	// Act
	category, err := service.CreateCategory(ctx, &entity.CreateCategoryRequest{Name: "Electronics"}, "admin")

	// Assert - операция успешна несмотря на сбой публикации
	require.NoError(t, err)
	assert.NotNil(t, category)
	deps.aggregator.AssertCalled(t, "Trigger", created.ID)
}

func TestBuildTree_HiddenParentHidesSubtree(t *testing.T) {
	// Arrange - скрытый родитель прячет видимого ребенка
	root := newActiveCategory("Electronics", "electronics")
	hidden := newActiveCategory("Internal", "internal")
	hidden.Settings.IsVisible = false
	visibleChild := newActiveCategory("Drafts", "drafts")
	visibleChild.ParentID = &hidden.ID
	visibleChild.Level = 1
	visibleChild.Path = "internal"

	// Act
	tree := buildTree([]entity.Category{*root, *hidden, *visibleChild}, nil)

	// Assert
	require.Len(t, tree, 1)
	assert.Equal(t, root.ID, tree[0].Category.ID)
}

func TestBuildTree_InactiveExcluded(t *testing.T) {
	// Arrange
	active := newActiveCategory("Electronics", "electronics")
	inactive := newActiveCategory("Closed", "closed")
	inactive.Status = entity.StatusInactive
	archived := newActiveCategory("Legacy", "legacy")
	archived.Status = entity.StatusArchived

	// Act
	tree := buildTree([]entity.Category{*active, *inactive, *archived}, nil)

	// Assert
	require.Len(t, tree, 1)
	assert.Equal(t, active.ID, tree[0].Category.ID)
}
