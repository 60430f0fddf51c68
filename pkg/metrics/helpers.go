package metrics

import "time"

// RecordRecompute фиксирует один каскадный пересчет метрик
func RecordRecompute(duration time.Duration, cascadeDepth int, status string) {
	RecomputeDuration.WithLabelValues(status).Observe(duration.Seconds())
	RecomputeCascadeDepth.Observe(float64(cascadeDepth))
}

// RecordRecomputeCoalesced фиксирует триггер, слитый с выполняющимся пересчетом
func RecordRecomputeCoalesced() {
	RecomputeCoalesced.Inc()
}

// RecordCacheHit фиксирует попадание в кеш дерева
func RecordCacheHit() {
	TreeCacheHits.Inc()
}

// RecordCacheMiss фиксирует промах кеша дерева
func RecordCacheMiss() {
	TreeCacheMisses.Inc()
}

// RecordEventConsumed фиксирует обработанное событие инвалидации
func RecordEventConsumed(topic string, duration time.Duration) {
	EventsConsumed.WithLabelValues(topic).Inc()
	EventProcessingDuration.WithLabelValues(topic).Observe(duration.Seconds())
}
