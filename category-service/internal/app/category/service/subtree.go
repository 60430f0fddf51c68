package service

import (
	"context"
	"fmt"
	"strings"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/repository"

	"github.com/google/uuid"
)

// SubtreeResolver вычисляет множество потомков узла
// Вместо сопоставления строковых префиксов path (и связанных с этим проблем
// экранирования) потомки находятся явным BFS обходом по parent_id индексу.
// Результат эквивалентен выборке узлов, чей path равен fullPath
// или начинается с fullPath + "/"
type SubtreeResolver struct {
	categoryRepo repository.CategoryRepository
}

// NewSubtreeResolver создает новый резолвер поддеревьев
func NewSubtreeResolver(categoryRepo repository.CategoryRepository) *SubtreeResolver {
	return &SubtreeResolver{categoryRepo: categoryRepo}
}

// Descendants возвращает всех потомков узла в BFS порядке
// Сам узел и его предки в результат никогда не входят
func (r *SubtreeResolver) Descendants(ctx context.Context, id uuid.UUID) ([]entity.Category, error) {
	var descendants []entity.Category

	queue := []uuid.UUID{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := r.categoryRepo.GetChildren(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subtree of %s: %w", id, err)
		}

		for _, child := range children {
			descendants = append(descendants, child)
			queue = append(queue, child.ID)
		}
	}

	return descendants, nil
}

// DescendantIDs возвращает идентификаторы всех потомков узла
func (r *SubtreeResolver) DescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	descendants, err := r.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(descendants))
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}

	return ids, nil
}

// IsPathUnder проверяет принадлежность candidatePath поддереву с корнем fullPath
// Единственное место сопоставления путей: точное равенство или префикс
// с разделителем, без regex и без экранирования
func IsPathUnder(candidatePath, fullPath string) bool {
	if candidatePath == fullPath {
		return true
	}
	return strings.HasPrefix(candidatePath, fullPath+"/")
}
