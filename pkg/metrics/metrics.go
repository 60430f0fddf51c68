package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// HTTP Метрики
// =============================================================================

// HttpRequestsTotal - счётчик всех HTTP запросов
// Пример запроса PromQL: rate(http_requests_total{service="category-service"}[5m])
var HttpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	},
	[]string{"service", "method", "path", "status"},
)

// HttpRequestDuration - гистограмма времени ответа
var HttpRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"service", "method", "path"},
)

// =============================================================================
// Метрики пересчета rollup (MetricsAggregator)
// =============================================================================

// RecomputeDuration - длительность каскадного пересчета метрик узла
// Каскад ограничен глубиной дерева, но стоимость растет с размером поддеревьев
var RecomputeDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "category_recompute_duration_seconds",
		Help:    "Duration of category metrics recompute cascades",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"status"}, // success, failed
)

// RecomputeCascadeDepth - количество узлов, пересчитанных за один каскад
var RecomputeCascadeDepth = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "category_recompute_cascade_depth",
		Help:    "Number of ancestors recomputed per cascade",
		Buckets: []float64{1, 2, 3, 4, 5, 6},
	},
)

// RecomputeCoalesced - триггеры, слитые с уже выполняющимся пересчетом
// Рост счётчика при всплесках обновлений товаров - ожидаемое поведение
var RecomputeCoalesced = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "category_recompute_coalesced_total",
		Help: "Total number of recompute triggers coalesced into an in-flight run",
	},
)

// =============================================================================
// Redis Метрики
// =============================================================================

// TreeCacheHits - попадания в кеш дерева категорий
var TreeCacheHits = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "category_tree_cache_hits_total",
		Help: "Total number of category tree cache hits",
	},
)

// TreeCacheMisses - промахи кеша дерева категорий
var TreeCacheMisses = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "category_tree_cache_misses_total",
		Help: "Total number of category tree cache misses",
	},
)

// =============================================================================
// Kafka Метрики
// =============================================================================

// EventsConsumed - обработанные события инвалидации
var EventsConsumed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "category_events_consumed_total",
		Help: "Total number of invalidation events consumed",
	},
	[]string{"topic"},
)

// EventProcessingDuration - время обработки одного события
var EventProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "category_event_processing_duration_seconds",
		Help:    "Duration of invalidation event processing",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	},
	[]string{"topic"},
)
