package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/repository"
	"grandbazar/pkg/logger"
	"grandbazar/pkg/metrics"

	"github.com/google/uuid"
)

// recomputeState отслеживает один выполняющийся пересчет узла
// pending взводится, если во время пересчета пришел повторный триггер
type recomputeState struct {
	pending bool
}

// MetricsService пересчитывает rollup-метрики категорий
//
// Каждый пересчет - полный детерминированный расчет от исходных данных,
// никогда не инкрементальная дельта: конкурентные пересчеты одного узла
// гонятся по принципу last-write-wins, но последний писатель всегда
// записывает корректное абсолютное значение, а не накопленную ошибку.
// Метрики - eventually-consistent представление, не леджер
type MetricsService struct {
	categoryRepo  repository.CategoryRepository
	productReader repository.ProductReader
	resolver      *SubtreeResolver

	mu       sync.Mutex
	inflight map[uuid.UUID]*recomputeState
	wg       sync.WaitGroup

	recomputeTimeout time.Duration
}

// NewMetricsService создает новый агрегатор метрик
func NewMetricsService(
	categoryRepo repository.CategoryRepository,
	productReader repository.ProductReader,
	resolver *SubtreeResolver,
	recomputeTimeout time.Duration,
) *MetricsService {
	return &MetricsService{
		categoryRepo:     categoryRepo,
		productReader:    productReader,
		resolver:         resolver,
		inflight:         make(map[uuid.UUID]*recomputeState),
		recomputeTimeout: recomputeTimeout,
	}
}

// Recompute пересчитывает метрики узла и каскадом поднимается к предкам
//
// На каждом шаге вверх метрики предка пересчитываются его собственным
// (возросшим) поддеревом, а не повторной обработкой поддерева внука с нуля
// на каждом уровне. Стоимость ограничена глубиной дерева (MaxDepth).
// Сбой запроса к каталогу товаров прерывает пересчет узла: предыдущие
// значения остаются на месте - устаревшие, но не испорченные
func (s *MetricsService) Recompute(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	depth := 0

	current := id
	for {
		node, err := s.categoryRepo.GetByID(ctx, current)
		if err != nil {
			if errors.Is(err, repository.ErrCategoryNotFound) {
				// Узел мог быть удален между триггером и пересчетом
				return ErrNotFound
			}
			return fmt.Errorf("failed to load category for recompute: %w", err)
		}

		if err := s.recomputeNode(ctx, node); err != nil {
			metrics.RecordRecompute(time.Since(start), depth, "failed")
			return err
		}

		depth++
		if node.ParentID == nil {
			break
		}
		current = *node.ParentID
	}

	metrics.RecordRecompute(time.Since(start), depth, "success")
	return nil
}

// recomputeNode выполняет полный пересчет метрик одного узла
func (s *MetricsService) recomputeNode(ctx context.Context, node *entity.Category) error {
	descendantIDs, err := s.resolver.DescendantIDs(ctx, node.ID)
	if err != nil {
		return err
	}

	ids := append([]uuid.UUID{node.ID}, descendantIDs...)

	counts, err := s.productReader.CountByCategoryIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAggregation, err)
	}

	aggs, err := s.productReader.AggregateByCategoryIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAggregation, err)
	}

	childCount, err := s.categoryRepo.CountChildren(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("failed to count subcategories: %w", err)
	}

	m := &entity.CategoryMetrics{
		TotalProducts:       counts.Total,
		ActiveProducts:      counts.Active,
		TotalManufacturers:  aggs.DistinctManufacturers,
		TotalRevenue:        aggs.TotalRevenue,
		AverageProductPrice: aggs.AvgPrice,
		TotalOrders:         aggs.TotalOrders,
		TotalSubcategories:  childCount,
		PopularityScore:     PopularityScore(counts.Total, aggs.TotalRevenue, aggs.TotalOrders),
		ComputedAt:          time.Now(),
	}

	if err := s.categoryRepo.UpdateMetrics(ctx, node.ID, m); err != nil {
		return fmt.Errorf("failed to persist metrics: %w", err)
	}

	return nil
}

// Trigger запускает асинхронный пересчет узла с коалесингом:
// если пересчет этого узла уже выполняется, второй триггер не запускает
// конкурентный прогон, а помечает узел на однократный повтор после текущего.
// Ограничивает стоимость каскада при пачках обновлений товаров
func (s *MetricsService) Trigger(id uuid.UUID) {
	s.mu.Lock()
	if st, ok := s.inflight[id]; ok {
		st.pending = true
		s.mu.Unlock()
		metrics.RecordRecomputeCoalesced()
		return
	}
	st := &recomputeState{}
	s.inflight[id] = st
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(id, st)
}

// run выполняет пересчеты узла, пока не останется отложенных триггеров
func (s *MetricsService) run(id uuid.UUID, st *recomputeState) {
	defer s.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), s.recomputeTimeout)
		if err := s.Recompute(ctx, id); err != nil {
			// Структурную операцию, вызвавшую пересчет, не откатываем и не блокируем
			logger.Error().Err(err).Str("category_id", id.String()).Msg("metrics recompute failed")
		}
		cancel()

		s.mu.Lock()
		if st.pending {
			st.pending = false
			s.mu.Unlock()
			continue
		}
		delete(s.inflight, id)
		s.mu.Unlock()
		return
	}
}

// Wait дожидается завершения всех запущенных пересчетов
// Используется при graceful shutdown
func (s *MetricsService) Wait() {
	s.wg.Wait()
}

// PopularityScore вычисляет эвристику популярности категории
// Ограниченная (0-100) и монотонная по товарам, выручке и заказам:
// min(100, round(totalProducts*2 + totalRevenue/1000 + totalOrders*5))
func PopularityScore(totalProducts int64, totalRevenue float64, totalOrders int64) int {
	raw := float64(totalProducts)*2 + totalRevenue/1000 + float64(totalOrders)*5
	score := int(math.Round(raw))
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
