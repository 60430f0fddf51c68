package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/repository"
	"grandbazar/category-service/internal/app/category/util"
	"grandbazar/pkg/logger"

	"github.com/google/uuid"
)

const treeCacheTTL = time.Hour

// CategoryService - фасад подсистемы категорий
// Композирует менеджер дерева, журнал изменений, Redis кеш дерева
// и публикацию событий инвалидации метрик в Kafka.
// Структурная операция: валидация и запись дерева -> запись в журнал ->
// асинхронный пересчет метрик через событие. Пересчет никогда не выполняется
// синхронно внутри запроса: create/move возвращаются сразу, метрики
// устаканиваются вскоре после
type CategoryService struct {
	tree         TreeManager
	aggregator   MetricsAggregator
	categoryRepo repository.CategoryRepository
	auditRepo    repository.AuditRepository
	cache        util.TreeCache
	publisher    util.MessagePublisher
}

// NewCategoryService создает новый фасад категорий с внедрением зависимостей
func NewCategoryService(
	tree TreeManager,
	aggregator MetricsAggregator,
	categoryRepo repository.CategoryRepository,
	auditRepo repository.AuditRepository,
	cache util.TreeCache,
	publisher util.MessagePublisher,
) *CategoryService {
	return &CategoryService{
		tree:         tree,
		aggregator:   aggregator,
		categoryRepo: categoryRepo,
		auditRepo:    auditRepo,
		cache:        cache,
		publisher:    publisher,
	}
}

// CreateCategory создает категорию, пишет журнал и запускает пересчет метрик
func (s *CategoryService) CreateCategory(ctx context.Context, req *entity.CreateCategoryRequest, actor string) (*entity.Category, error) {
	category, err := s.tree.CreateNode(ctx, req.Name, req.ParentID)
	if err != nil {
		return nil, err
	}

	var parentID *string
	if category.ParentID != nil {
		str := category.ParentID.String()
		parentID = &str
	}
	s.appendAudit(ctx, &entity.AuditEntry{
		CategoryID:  category.ID.String(),
		Action:      entity.AuditActionCreated,
		PerformedBy: actor,
		Changes: entity.AuditChanges{
			Created: &entity.CreatedChanges{
				Name:     category.Name,
				Slug:     category.Slug,
				ParentID: parentID,
				Level:    category.Level,
			},
		},
	})

	s.invalidateTreeCache(ctx)
	s.publishInvalidation(ctx, category.ID)

	return category, nil
}

// MoveCategory переносит категорию под нового родителя
// Пересчет метрик запускается для обеих затронутых цепочек предков:
// новой (через сам узел) и старой (через прежнего родителя)
func (s *CategoryService) MoveCategory(ctx context.Context, id uuid.UUID, req *entity.MoveCategoryRequest, actor string) (*entity.Category, error) {
	before, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	category, err := s.tree.MoveNode(ctx, id, req.NewParentID)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &entity.AuditEntry{
		CategoryID:  category.ID.String(),
		Action:      entity.AuditActionUpdated,
		PerformedBy: actor,
		Reason:      req.Reason,
		Changes: entity.AuditChanges{
			Reparented: &entity.ReparentedChanges{
				OldParentID: uuidToString(before.ParentID),
				NewParentID: uuidToString(category.ParentID),
				OldPath:     before.Path,
				NewPath:     category.Path,
			},
		},
	})

	s.invalidateTreeCache(ctx)
	s.publishInvalidation(ctx, category.ID)
	if before.ParentID != nil {
		s.publishInvalidation(ctx, *before.ParentID)
	}

	return category, nil
}

// RenameCategory меняет отображаемое имя категории
// Slug после создания неизменен: он встроен в path всех потомков,
// поэтому переименование не каскадирует
func (s *CategoryService) RenameCategory(ctx context.Context, id uuid.UUID, req *entity.RenameCategoryRequest, actor string) (*entity.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	oldName := category.Name
	category.Name = req.Name

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to rename category: %w", err)
	}

	s.appendAudit(ctx, &entity.AuditEntry{
		CategoryID:  category.ID.String(),
		Action:      entity.AuditActionUpdated,
		PerformedBy: actor,
		Reason:      req.Reason,
		Changes: entity.AuditChanges{
			Renamed: &entity.RenamedChanges{OldName: oldName, NewName: req.Name},
		},
	})

	s.invalidateTreeCache(ctx)

	return category, nil
}

// UpdateCategoryStatus выполняет административные переходы статуса и видимости
// Переходы active <-> inactive/archived не охраняются; физическое удаление
// охраняется отдельно в DeleteCategory
func (s *CategoryService) UpdateCategoryStatus(ctx context.Context, id uuid.UUID, req *entity.UpdateCategoryStatusRequest, actor string) (*entity.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := category.Status
	oldVisible := category.Settings.IsVisible

	if req.Status != nil {
		category.Status = *req.Status
		category.Settings.IsActive = *req.Status == entity.StatusActive
	}
	if req.IsVisible != nil {
		category.Settings.IsVisible = *req.IsVisible
	}

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to update category status: %w", err)
	}

	if req.Status != nil && *req.Status != oldStatus {
		s.appendAudit(ctx, &entity.AuditEntry{
			CategoryID:  category.ID.String(),
			Action:      statusAuditAction(oldStatus, *req.Status),
			PerformedBy: actor,
			Reason:      req.Reason,
			Changes: entity.AuditChanges{
				Status: &entity.StatusChanges{OldStatus: oldStatus, NewStatus: *req.Status},
			},
		})
	}
	if req.IsVisible != nil && *req.IsVisible != oldVisible {
		action := entity.AuditActionMadeHidden
		if *req.IsVisible {
			action = entity.AuditActionMadeVisible
		}
		s.appendAudit(ctx, &entity.AuditEntry{
			CategoryID:  category.ID.String(),
			Action:      action,
			PerformedBy: actor,
			Reason:      req.Reason,
			Changes: entity.AuditChanges{
				Visibility: &entity.VisibilityChanges{OldVisible: oldVisible, NewVisible: *req.IsVisible},
			},
		})
	}

	s.invalidateTreeCache(ctx)

	return category, nil
}

// DeleteCategory физически удаляет лист без товаров
// Запись журнала переживает удаление узла: история хранится отдельно
func (s *CategoryService) DeleteCategory(ctx context.Context, id uuid.UUID, actor string) error {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return err
	}

	if err := s.tree.DeleteNode(ctx, id); err != nil {
		return err
	}

	s.appendAudit(ctx, &entity.AuditEntry{
		CategoryID:  id.String(),
		Action:      entity.AuditActionDeleted,
		PerformedBy: actor,
	})

	s.invalidateTreeCache(ctx)
	if category.ParentID != nil {
		s.publishInvalidation(ctx, *category.ParentID)
	}

	return nil
}

// GetCategory получает категорию по ID
func (s *CategoryService) GetCategory(ctx context.Context, id uuid.UUID) (*entity.Category, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return category, nil
}

// GetChildren получает прямых детей узла
func (s *CategoryService) GetChildren(ctx context.Context, id uuid.UUID) ([]entity.Category, error) {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return nil, err
	}

	children, err := s.categoryRepo.GetChildren(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}

	return children, nil
}

// GetTree возвращает вложенное дерево видимых активных категорий
// Полное дерево кешируется в Redis на час, инвалидация при любой
// структурной записи
func (s *CategoryService) GetTree(ctx context.Context, rootID *uuid.UUID) ([]entity.CategoryTreeNode, error) {
	if rootID == nil {
		tree, err := s.cache.GetTree(ctx)
		if err == nil && len(tree) > 0 {
			return tree, nil
		}
	}

	all, err := s.categoryRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}

	tree := buildTree(all, rootID)

	if rootID == nil {
		if err := s.cache.SetTree(ctx, tree, treeCacheTTL); err != nil {
			// Данные получены из БД, проблемы с кешем не критичны
			logger.Warn().Err(err).Msg("failed to cache category tree")
		}
	}

	return tree, nil
}

// GetBreadcrumb возвращает цепочку от корня до узла, выведенную из path
func (s *CategoryService) GetBreadcrumb(ctx context.Context, id uuid.UUID) ([]entity.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	if category.Path == "" {
		return []entity.Category{*category}, nil
	}

	slugs := strings.Split(category.Path, "/")
	ancestors, err := s.categoryRepo.GetBySlugs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve breadcrumb: %w", err)
	}

	bySlug := make(map[string]entity.Category, len(ancestors))
	for _, a := range ancestors {
		bySlug[a.Slug] = a
	}

	breadcrumb := make([]entity.Category, 0, len(slugs)+1)
	for _, slug := range slugs {
		ancestor, ok := bySlug[slug]
		if !ok {
			// Расхождение path с реальными узлами чинит фоновая сверка
			logger.Warn().Str("slug", slug).Str("category_id", id.String()).
				Msg("breadcrumb slug not found, path drift suspected")
			continue
		}
		breadcrumb = append(breadcrumb, ancestor)
	}

	return append(breadcrumb, *category), nil
}

// GetMetrics возвращает метрики узла
// Значения могут быть устаревшими (пересчет асинхронный), но присутствуют всегда
func (s *CategoryService) GetMetrics(ctx context.Context, id uuid.UUID) (*entity.CategoryMetrics, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	return &category.Metrics, nil
}

// GetAuditLog возвращает историю изменений узла в порядке добавления
func (s *CategoryService) GetAuditLog(ctx context.Context, id uuid.UUID) ([]entity.AuditEntry, error) {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return nil, err
	}

	entries, err := s.auditRepo.GetByCategoryID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}

	return entries, nil
}

// appendAudit пишет запись журнала best-effort
// Журнал существует для трассируемости и никогда не валит структурную
// операцию, которую фиксирует: сбой только логируется
func (s *CategoryService) appendAudit(ctx context.Context, entry *entity.AuditEntry) {
	entry.PerformedAt = time.Now()
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		logger.Error().Err(err).
			Str("category_id", entry.CategoryID).
			Str("action", string(entry.Action)).
			Msg("failed to append audit entry")
	}
}

// publishInvalidation публикует событие CATEGORY_METRICS_INVALIDATED
// Ключ - ID категории для партиционирования. При недоступности Kafka
// пересчет запускается напрямую, чтобы метрики не зависли устаревшими
func (s *CategoryService) publishInvalidation(ctx context.Context, id uuid.UUID) {
	event := entity.CategoryEvent{
		EventType:  entity.EventCategoryMetricsInvalidated,
		CategoryID: id,
		Timestamp:  time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal invalidation event")
		s.aggregator.Trigger(id)
		return
	}

	if err := s.publisher.PublishMessage(ctx, id.String(), data); err != nil {
		logger.Error().Err(err).Str("category_id", id.String()).
			Msg("failed to publish invalidation event, falling back to direct recompute")
		s.aggregator.Trigger(id)
	}
}

// invalidateTreeCache сбрасывает кеш дерева после структурной записи
func (s *CategoryService) invalidateTreeCache(ctx context.Context) {
	if err := s.cache.DeleteTree(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate tree cache")
	}
}

// buildTree собирает вложенную структуру из плоского списка
// Включаются только активные видимые узлы; скрытый родитель скрывает
// все свое поддерево. Порядок детей определен сортировкой выборки
// (sort_order, затем имя)
func buildTree(all []entity.Category, rootID *uuid.UUID) []entity.CategoryTreeNode {
	byID := make(map[uuid.UUID]entity.Category)
	childIndex := make(map[uuid.UUID][]entity.Category)
	var roots []entity.Category

	// Порядок выборки (sort_order, затем имя) сохраняется в списках детей
	for _, c := range all {
		if c.Status != entity.StatusActive || !c.Settings.IsVisible {
			continue
		}
		byID[c.ID] = c
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			childIndex[*c.ParentID] = append(childIndex[*c.ParentID], c)
		}
	}

	var build func(c entity.Category) entity.CategoryTreeNode
	build = func(c entity.Category) entity.CategoryTreeNode {
		node := entity.CategoryTreeNode{Category: c, Children: []entity.CategoryTreeNode{}}
		for _, child := range childIndex[c.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	if rootID != nil {
		root, ok := byID[*rootID]
		if !ok {
			// Запрошенный корень скрыт, неактивен или скрыт его предок
			return []entity.CategoryTreeNode{}
		}
		return []entity.CategoryTreeNode{build(root)}
	}

	tree := make([]entity.CategoryTreeNode, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, build(root))
	}

	return tree
}

// statusAuditAction выбирает действие журнала для перехода статуса
func statusAuditAction(from, to entity.CategoryStatus) entity.AuditAction {
	switch {
	case to == entity.StatusArchived:
		return entity.AuditActionArchived
	case to == entity.StatusActive && from == entity.StatusArchived:
		return entity.AuditActionRestored
	case to == entity.StatusActive:
		return entity.AuditActionActivated
	case to == entity.StatusInactive:
		return entity.AuditActionDeactivated
	default:
		return entity.AuditActionUpdated
	}
}

// uuidToString конвертирует опциональный UUID в опциональную строку для журнала
func uuidToString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	str := id.String()
	return &str
}
