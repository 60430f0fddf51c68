package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/service"
	"grandbazar/pkg/logger"
	"grandbazar/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer обрабатывает события, инвалидирующие метрики категорий:
// - category_events: CATEGORY_METRICS_INVALIDATED после структурных операций
// - product_events: изменения товаров (категория, цена, статус, выручка, заказы)
// Каждое событие превращается в триггер пересчета; коалесинг конкурентных
// триггеров для одного узла выполняет сам агрегатор
type KafkaConsumer struct {
	readers    []*kafka.Reader
	aggregator service.MetricsAggregator
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewKafkaConsumer создает consumer, подписанный на оба топика
func NewKafkaConsumer(
	brokers []string,
	categoryTopic string,
	productTopic string,
	groupID string,
	aggregator service.MetricsAggregator,
) *KafkaConsumer {
	newReader := func(topic string) *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
			// Настройки для автоматического коммита offset
			CommitInterval: time.Second,
			ReadBackoffMin: 100 * time.Millisecond,
			ReadBackoffMax: 1 * time.Second,
		})
	}

	return &KafkaConsumer{
		readers:    []*kafka.Reader{newReader(categoryTopic), newReader(productTopic)},
		aggregator: aggregator,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start запускает чтение обоих топиков в отдельных горутинах
func (c *KafkaConsumer) Start(ctx context.Context) {
	logger.Info().Msg("starting kafka consumer")

	go func() {
		defer close(c.doneChan)
		done := make(chan struct{}, len(c.readers))
		for _, reader := range c.readers {
			go func(r *kafka.Reader) {
				c.consume(ctx, r)
				done <- struct{}{}
			}(reader)
		}
		for range c.readers {
			<-done
		}
	}()
}

// Stop останавливает consumer и дожидается завершения обработки
func (c *KafkaConsumer) Stop() {
	logger.Info().Msg("stopping kafka consumer")
	close(c.stopChan)
	<-c.doneChan
	for _, reader := range c.readers {
		reader.Close()
	}
	logger.Info().Msg("kafka consumer stopped")
}

// consume читает и обрабатывает сообщения одного топика
func (c *KafkaConsumer) consume(ctx context.Context, reader *kafka.Reader) {
	topic := reader.Config().Topic

	for {
		select {
		case <-c.stopChan:
			return
		default:
			readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			message, err := reader.FetchMessage(readCtx)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Str("topic", topic).Msg("error fetching message")
				time.Sleep(time.Second)
				continue
			}

			start := time.Now()
			if err := c.processMessage(message); err != nil {
				logger.Error().Err(err).Str("topic", topic).Msg("error processing message")
				// Offset не коммитим - сообщение будет обработано повторно
				continue
			}
			metrics.RecordEventConsumed(topic, time.Since(start))

			if err := reader.CommitMessages(ctx, message); err != nil {
				logger.Error().Err(err).Str("topic", topic).Msg("error committing message")
			}
		}
	}
}

// processMessage превращает событие в триггеры пересчета
// Событие товара с переносом между категориями инвалидирует обе цепочки:
// старую и новую
func (c *KafkaConsumer) processMessage(message kafka.Message) error {
	var probe struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(message.Value, &probe); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch probe.EventType {
	case entity.EventCategoryMetricsInvalidated:
		var event entity.CategoryEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal category event: %w", err)
		}
		c.aggregator.Trigger(event.CategoryID)

	case entity.EventProductCreated, entity.EventProductUpdated, entity.EventProductDeleted:
		var event entity.ProductEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal product event: %w", err)
		}
		c.aggregator.Trigger(event.CategoryID)
		if event.OldCategoryID != nil && *event.OldCategoryID != event.CategoryID {
			c.aggregator.Trigger(*event.OldCategoryID)
		}

	default:
		logger.Debug().Str("event_type", probe.EventType).Msg("skipping unknown event type")
	}

	return nil
}
