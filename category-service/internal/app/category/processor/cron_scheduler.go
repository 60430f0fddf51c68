package processor

import (
	"context"

	"grandbazar/category-service/internal/app/category/repository"
	"grandbazar/category-service/internal/app/category/service"
	"grandbazar/pkg/logger"

	"github.com/robfig/cron/v3"
)

// ReconciliationScheduler периодически сверяет денормализованные инварианты
// дерева (level/path каждого узла против его цепочки родителей) и чинит дрейф,
// затем освежает метрики поддеревьев от корней. Страховка на случай частично
// применившегося перемещения и пропущенных событий инвалидации
type ReconciliationScheduler struct {
	cron         *cron.Cron
	tree         service.TreeManager
	aggregator   service.MetricsAggregator
	categoryRepo repository.CategoryRepository
}

// NewReconciliationScheduler создает планировщик сверки
func NewReconciliationScheduler(
	tree service.TreeManager,
	aggregator service.MetricsAggregator,
	categoryRepo repository.CategoryRepository,
) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		cron:         cron.New(),
		tree:         tree,
		aggregator:   aggregator,
		categoryRepo: categoryRepo,
	}
}

// Start регистрирует задание сверки по cron-расписанию и запускает планировщик
func (s *ReconciliationScheduler) Start(ctx context.Context, schedule string) error {
	logger.Info().Str("schedule", schedule).Msg("starting reconciliation scheduler")

	_, err := s.cron.AddFunc(schedule, func() {
		s.runReconciliation(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop останавливает планировщик и дожидается текущего задания
func (s *ReconciliationScheduler) Stop() {
	logger.Info().Msg("stopping reconciliation scheduler")
	<-s.cron.Stop().Done()
	logger.Info().Msg("reconciliation scheduler stopped")
}

// runReconciliation выполняет один прогон сверки
// Для освежения метрик достаточно триггера по корням: каждый корень
// пересчитывается агрегатами своего полного поддерева
func (s *ReconciliationScheduler) runReconciliation(ctx context.Context) {
	logger.Info().Msg("reconciliation run started")

	repaired, err := s.tree.ReconcileStructure(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("structure reconciliation failed")
		return
	}
	if repaired > 0 {
		logger.Warn().Int("repaired", repaired).Msg("structure drift repaired")
	}

	roots, err := s.categoryRepo.GetRoots(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list roots for metrics refresh")
		return
	}
	for _, root := range roots {
		s.aggregator.Trigger(root.ID)
	}

	logger.Info().Int("repaired", repaired).Int("roots_refreshed", len(roots)).
		Msg("reconciliation run completed")
}
