package repository

import (
	"context"
	"fmt"

	"grandbazar/category-service/internal/app/category/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type productReader struct {
	db *gorm.DB
}

// NewProductReader создает read-only клиент каталога товаров
// Товары принадлежат product-сервису, здесь выполняются только
// агрегатные SELECT для пересчета метрик категорий
func NewProductReader(db *gorm.DB) ProductReader {
	return &productReader{db: db}
}

// CountByCategoryIDs считает общее и активное количество товаров
// по всем категориям из набора (узел + его потомки)
func (r *productReader) CountByCategoryIDs(ctx context.Context, ids []uuid.UUID) (*entity.ProductCounts, error) {
	if len(ids) == 0 {
		return &entity.ProductCounts{}, nil
	}

	var counts entity.ProductCounts
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'active') AS active
		FROM products
		WHERE category_id IN ?
	`, ids).Row().Scan(&counts.Total, &counts.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to count products by categories: %w", err)
	}

	return &counts, nil
}

// AggregateByCategoryIDs вычисляет агрегаты товаров по набору категорий:
// среднюю базовую цену, суммарную выручку, суммарные заказы
// и количество уникальных производителей
func (r *productReader) AggregateByCategoryIDs(ctx context.Context, ids []uuid.UUID) (*entity.ProductAggregates, error) {
	if len(ids) == 0 {
		return &entity.ProductAggregates{}, nil
	}

	var aggs entity.ProductAggregates
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COALESCE(AVG(price), 0)          AS avg_price,
			COALESCE(SUM(revenue), 0)        AS total_revenue,
			COALESCE(SUM(order_count), 0)    AS total_orders,
			COUNT(DISTINCT manufacturer_id)  AS distinct_manufacturers
		FROM products
		WHERE category_id IN ?
	`, ids).Row().Scan(
		&aggs.AvgPrice, &aggs.TotalRevenue, &aggs.TotalOrders, &aggs.DistinctManufacturers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate products by categories: %w", err)
	}

	return &aggs, nil
}

// CountDirectByCategoryID считает товары, привязанные напрямую к узлу
// Используется как guard перед удалением категории
func (r *productReader) CountDirectByCategoryID(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM products WHERE category_id = ?`, id,
	).Row().Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products in category: %w", err)
	}

	return count, nil
}
