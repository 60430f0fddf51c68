package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/repository"
	"grandbazar/pkg/logger"

	"github.com/google/uuid"
)

// TreeService поддерживает структурные инварианты дерева категорий:
// level == parent.level + 1, path == parent.path + "/" + parent.slug,
// глубина не больше entity.MaxDepth, отсутствие циклов.
// Level и path денормализованы ради O(1) чтения цепочки предков,
// ценой каскадной перезаписи потомков при перемещении
type TreeService struct {
	categoryRepo  repository.CategoryRepository
	productReader repository.ProductReader
	resolver      *SubtreeResolver
}

// NewTreeService создает новый менеджер дерева категорий
func NewTreeService(
	categoryRepo repository.CategoryRepository,
	productReader repository.ProductReader,
	resolver *SubtreeResolver,
) *TreeService {
	return &TreeService{
		categoryRepo:  categoryRepo,
		productReader: productReader,
		resolver:      resolver,
	}
}

// CreateNode создает узел категории с вычисленными level и path
// Для корня level=0 и path="", для ребенка поля выводятся из родителя
func (s *TreeService) CreateNode(ctx context.Context, name string, parentID *uuid.UUID) (*entity.Category, error) {
	slug, err := Slugify(name)
	if err != nil {
		return nil, err
	}

	level := 0
	path := ""

	if parentID != nil {
		parent, err := s.categoryRepo.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, repository.ErrCategoryNotFound) {
				return nil, fmt.Errorf("%w: parent category does not exist", ErrValidation)
			}
			return nil, fmt.Errorf("failed to get parent category: %w", err)
		}

		level = parent.Level + 1
		path = parent.FullPath()

		if level > entity.MaxDepth {
			return nil, fmt.Errorf("%w: max depth exceeded", ErrValidation)
		}
	}

	now := time.Now()
	category := &entity.Category{
		ID:       uuid.New(),
		Name:     name,
		Slug:     slug,
		ParentID: parentID,
		Level:    level,
		Path:     path,
		Status:   entity.StatusActive,
		Settings: entity.CategorySettings{
			IsActive:      true,
			IsVisible:     true,
			AllowProducts: true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrSlugAlreadyTaken) {
			return nil, fmt.Errorf("%w: slug %q already taken", ErrConflict, slug)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	return category, nil
}

// MoveNode переносит узел под нового родителя
// Смена родителя меняет цепочку предков каждого потомка, поэтому level и path
// пересчитываются для всего поддерева и применяются одной транзакцией.
// Перемещение отклоняется, если новый родитель лежит внутри переносимого
// поддерева (цикл) или если любой потомок превысил бы максимальную глубину
func (s *TreeService) MoveNode(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*entity.Category, error) {
	node, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	descendants, err := s.resolver.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}

	newLevel := 0
	newPath := ""

	if newParentID != nil {
		if *newParentID == id {
			return nil, fmt.Errorf("%w: category cannot be its own parent", ErrValidation)
		}
		for _, d := range descendants {
			if d.ID == *newParentID {
				return nil, fmt.Errorf("%w: move would create a cycle", ErrValidation)
			}
		}

		parent, err := s.categoryRepo.GetByID(ctx, *newParentID)
		if err != nil {
			if errors.Is(err, repository.ErrCategoryNotFound) {
				return nil, fmt.Errorf("%w: new parent category does not exist", ErrValidation)
			}
			return nil, fmt.Errorf("failed to get new parent: %w", err)
		}

		newLevel = parent.Level + 1
		newPath = parent.FullPath()
	}

	// Глубина проверяется для самого глубокого потомка: его относительная
	// глубина сохраняется при переносе
	maxRelative := 0
	for _, d := range descendants {
		if rel := d.Level - node.Level; rel > maxRelative {
			maxRelative = rel
		}
	}
	if newLevel+maxRelative > entity.MaxDepth {
		return nil, fmt.Errorf("%w: max depth exceeded", ErrValidation)
	}

	updates := rebuildStructure(node, descendants, newParentID, newLevel, newPath)

	if err := s.categoryRepo.UpdateStructure(ctx, updates); err != nil {
		return nil, fmt.Errorf("failed to move category: %w", err)
	}

	node.ParentID = newParentID
	node.Level = newLevel
	node.Path = newPath

	return node, nil
}

// DeleteNode удаляет узел категории
// Удаление разрешено только для листа без товаров: узел с детьми
// или с напрямую привязанными товарами удалить нельзя
func (s *TreeService) DeleteNode(ctx context.Context, id uuid.UUID) error {
	childCount, err := s.categoryRepo.CountChildren(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count children: %w", err)
	}
	if childCount > 0 {
		return fmt.Errorf("%w: category has %d child categories", ErrIntegrity, childCount)
	}

	productCount, err := s.productReader.CountDirectByCategoryID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if productCount > 0 {
		return fmt.Errorf("%w: category has %d products", ErrIntegrity, productCount)
	}

	if err := s.categoryRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}

	return nil
}

// ReconcileStructure перепроверяет денормализованные level и path всех узлов
// и чинит расхождения. Запасной путь восстановления после частично
// применившегося перемещения: UpdateStructure транзакционен, но фоновая
// сверка дешево гарантирует, что дрейф не живет дольше одного прогона
func (s *TreeService) ReconcileStructure(ctx context.Context) (int, error) {
	all, err := s.categoryRepo.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load categories for reconciliation: %w", err)
	}

	childIndex := make(map[uuid.UUID][]*entity.Category)
	var roots []*entity.Category
	for i := range all {
		c := &all[i]
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			childIndex[*c.ParentID] = append(childIndex[*c.ParentID], c)
		}
	}

	var repairs []entity.StructureUpdate
	visited := make(map[uuid.UUID]bool, len(all))

	// BFS от корней: ожидаемые level/path выводятся заново из цепочки родителей
	type frame struct {
		node  *entity.Category
		level int
		path  string
	}
	var queue []frame
	for _, root := range roots {
		queue = append(queue, frame{node: root, level: 0, path: ""})
	}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		visited[f.node.ID] = true

		if f.node.Level != f.level || f.node.Path != f.path {
			logger.Warn().
				Str("category_id", f.node.ID.String()).
				Int("stored_level", f.node.Level).
				Int("expected_level", f.level).
				Str("stored_path", f.node.Path).
				Str("expected_path", f.path).
				Msg("structure drift detected, repairing")
			repairs = append(repairs, entity.StructureUpdate{
				ID:       f.node.ID,
				ParentID: f.node.ParentID,
				Level:    f.level,
				Path:     f.path,
			})
		}

		childPath := f.path
		if childPath == "" {
			childPath = f.node.Slug
		} else {
			childPath = childPath + "/" + f.node.Slug
		}
		for _, child := range childIndex[f.node.ID] {
			queue = append(queue, frame{node: child, level: f.level + 1, path: childPath})
		}
	}

	// Узлы, недостижимые от корней, указывают на пропавшего родителя или цикл;
	// чинить их автоматикой опасно, только сигнализируем
	for i := range all {
		if !visited[all[i].ID] {
			logger.Error().
				Str("category_id", all[i].ID.String()).
				Msg("category unreachable from roots, manual intervention required")
		}
	}

	if len(repairs) == 0 {
		return 0, nil
	}

	if err := s.categoryRepo.UpdateStructure(ctx, repairs); err != nil {
		return 0, fmt.Errorf("failed to apply structure repairs: %w", err)
	}

	return len(repairs), nil
}

// rebuildStructure пересчитывает level/path для узла и всех его потомков
// BFS гарантирует, что новый полный путь родителя известен до обработки детей
func rebuildStructure(
	node *entity.Category,
	descendants []entity.Category,
	newParentID *uuid.UUID,
	newLevel int,
	newPath string,
) []entity.StructureUpdate {
	childIndex := make(map[uuid.UUID][]*entity.Category)
	for i := range descendants {
		d := &descendants[i]
		if d.ParentID != nil {
			childIndex[*d.ParentID] = append(childIndex[*d.ParentID], d)
		}
	}

	updates := []entity.StructureUpdate{{
		ID:       node.ID,
		ParentID: newParentID,
		Level:    newLevel,
		Path:     newPath,
	}}

	type frame struct {
		id    uuid.UUID
		slug  string
		level int
		path  string
	}
	queue := []frame{{id: node.ID, slug: node.Slug, level: newLevel, path: newPath}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		childPath := f.slug
		if f.path != "" {
			childPath = f.path + "/" + f.slug
		}

		for _, child := range childIndex[f.id] {
			parentID := f.id
			updates = append(updates, entity.StructureUpdate{
				ID:       child.ID,
				ParentID: &parentID,
				Level:    f.level + 1,
				Path:     childPath,
			})
			queue = append(queue, frame{id: child.ID, slug: child.Slug, level: f.level + 1, path: childPath})
		}
	}

	return updates
}
