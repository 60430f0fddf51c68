package repository

import (
	"context"
	"errors"
	"fmt"

	"grandbazar/category-service/internal/app/category/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// categoryColumns - полный список колонок таблицы categories в порядке сканирования
const categoryColumns = `
	id, name, slug, parent_id, level, path, status,
	is_active, is_visible, allow_products, sort_order,
	total_products, active_products, total_manufacturers, total_revenue,
	average_product_price, total_orders, total_subcategories, popularity_score,
	metrics_computed_at, created_at, updated_at`

type categoryRepository struct {
	db *pgxpool.Pool // Пул соединений с PostgreSQL для работы с категориями
}

// NewCategoryRepository создает новый репозиторий категорий
func NewCategoryRepository(db *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{db: db}
}

// Create создает новый узел категории в PostgreSQL
// Глобальная уникальность slug обеспечивается UNIQUE constraint
func (r *categoryRepository) Create(ctx context.Context, category *entity.Category) error {
	query := `
		INSERT INTO categories (
			id, name, slug, parent_id, level, path, status,
			is_active, is_visible, allow_products, sort_order,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		category.ID, category.Name, category.Slug, category.ParentID,
		category.Level, category.Path, category.Status,
		category.Settings.IsActive, category.Settings.IsVisible,
		category.Settings.AllowProducts, category.Settings.SortOrder,
		category.CreatedAt, category.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation на slug
			return ErrSlugAlreadyTaken
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	return nil
}

// GetByID получает категорию по ID
func (r *categoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	category, err := scanCategory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category by id: %w", err)
	}

	return category, nil
}

// GetBySlugs получает категории по набору slug за один запрос
// Используется для построения хлебных крошек из денормализованного path
func (r *categoryRepository) GetBySlugs(ctx context.Context, slugs []string) ([]entity.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE slug = ANY($1)`

	rows, err := r.db.Query(ctx, query, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories by slugs: %w", err)
	}
	defer rows.Close()

	return collectCategories(rows)
}

// GetAll получает все категории отсортированные по level и sort_order
// Порядок по level гарантирует, что родители идут раньше детей
func (r *categoryRepository) GetAll(ctx context.Context) ([]entity.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories ORDER BY level ASC, sort_order ASC, name ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	return collectCategories(rows)
}

// GetChildren получает прямых детей узла
// Дети обнаруживаются запросом по parent_id, обратный список не хранится
func (r *categoryRepository) GetChildren(ctx context.Context, parentID uuid.UUID) ([]entity.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id = $1 ORDER BY sort_order ASC, name ASC`

	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	defer rows.Close()

	return collectCategories(rows)
}

// GetRoots получает корневые категории (parent_id IS NULL)
func (r *categoryRepository) GetRoots(ctx context.Context) ([]entity.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id IS NULL ORDER BY sort_order ASC, name ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get root categories: %w", err)
	}
	defer rows.Close()

	return collectCategories(rows)
}

// CountChildren возвращает количество прямых детей узла
func (r *categoryRepository) CountChildren(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM categories WHERE parent_id = $1`
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return count, nil
}

// Update обновляет имя, статус и настройки категории
// Структурные поля (parent_id/level/path) меняются только через UpdateStructure
func (r *categoryRepository) Update(ctx context.Context, category *entity.Category) error {
	query := `
		UPDATE categories
		SET name = $1, status = $2,
			is_active = $3, is_visible = $4, allow_products = $5, sort_order = $6,
			updated_at = NOW()
		WHERE id = $7
	`

	result, err := r.db.Exec(ctx, query,
		category.Name, category.Status,
		category.Settings.IsActive, category.Settings.IsVisible,
		category.Settings.AllowProducts, category.Settings.SortOrder,
		category.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

// UpdateStructure применяет батч пересчитанных parent_id/level/path
// в одной транзакции. Перемещение поддерева затрагивает каждого потомка,
// поэтому обновления должны примениться все вместе или никак
func (r *categoryRepository) UpdateStructure(ctx context.Context, updates []entity.StructureUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin structure transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE categories
		SET parent_id = $1, level = $2, path = $3, updated_at = NOW()
		WHERE id = $4
	`

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(query, u.ParentID, u.Level, u.Path, u.ID)
	}

	results := tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to apply structure update: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close structure batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit structure transaction: %w", err)
	}

	return nil
}

// UpdateMetrics сохраняет пересчитанные метрики узла
// Запись одного узла атомарна, last-write-wins для конкурентных пересчетов
func (r *categoryRepository) UpdateMetrics(ctx context.Context, id uuid.UUID, metrics *entity.CategoryMetrics) error {
	query := `
		UPDATE categories
		SET total_products = $1, active_products = $2, total_manufacturers = $3,
			total_revenue = $4, average_product_price = $5, total_orders = $6,
			total_subcategories = $7, popularity_score = $8, metrics_computed_at = $9
		WHERE id = $10
	`

	result, err := r.db.Exec(ctx, query,
		metrics.TotalProducts, metrics.ActiveProducts, metrics.TotalManufacturers,
		metrics.TotalRevenue, metrics.AverageProductPrice, metrics.TotalOrders,
		metrics.TotalSubcategories, metrics.PopularityScore, metrics.ComputedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update metrics: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

// Delete удаляет категорию
// Проверки на детей и товары выполняются в service layer до вызова
func (r *categoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM categories WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

// scanCategory сканирует одну строку categories в entity.Category
func scanCategory(row pgx.Row) (*entity.Category, error) {
	var c entity.Category
	err := row.Scan(
		&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Level, &c.Path, &c.Status,
		&c.Settings.IsActive, &c.Settings.IsVisible, &c.Settings.AllowProducts, &c.Settings.SortOrder,
		&c.Metrics.TotalProducts, &c.Metrics.ActiveProducts, &c.Metrics.TotalManufacturers,
		&c.Metrics.TotalRevenue, &c.Metrics.AverageProductPrice, &c.Metrics.TotalOrders,
		&c.Metrics.TotalSubcategories, &c.Metrics.PopularityScore,
		&c.Metrics.ComputedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// collectCategories собирает все строки результата в слайс
func collectCategories(rows pgx.Rows) ([]entity.Category, error) {
	var categories []entity.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}
