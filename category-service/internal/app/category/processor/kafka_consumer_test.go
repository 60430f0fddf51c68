package processor

import (
	"encoding/json"
	"testing"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/repository/mocks"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

// ===================== NewKafkaConsumer Tests =====================

func TestNewKafkaConsumer(t *testing.T) {
	// Arrange
	aggregator := new(mocks.MockMetricsAggregator)

	// Act
	consumer := NewKafkaConsumer(
		[]string{"localhost:9092"},
		"category_events",
		"product_events",
		"category-metrics-worker",
		aggregator,
	)

	// Assert - по одному reader на каждый топик
	assert.NotNil(t, consumer)
	assert.Len(t, consumer.readers, 2)
	assert.NotNil(t, consumer.stopChan)
	assert.NotNil(t, consumer.doneChan)

	// Cleanup
	for _, reader := range consumer.readers {
		reader.Close()
	}
}

// ===================== processMessage Tests =====================

func TestKafkaConsumer_ProcessMessage_CategoryInvalidated(t *testing.T) {
	// Arrange
	aggregator := new(mocks.MockMetricsAggregator)
	consumer := &KafkaConsumer{aggregator: aggregator}

	categoryID := uuid.New()
	event := entity.CategoryEvent{
		EventType:  entity.EventCategoryMetricsInvalidated,
		CategoryID: categoryID,
		Timestamp:  time.Now(),
	}
	eventJSON, _ := json.Marshal(event)

	aggregator.On("Trigger", categoryID).Return()

	// Act
	err := consumer.processMessage(kafka.Message{Topic: "category_events", Value: eventJSON})

	// Assert
	assert.NoError(t, err)
	aggregator.AssertCalled(t, "Trigger", categoryID)
}

func TestKafkaConsumer_ProcessMessage_ProductCreated(t *testing.T) {
	// Arrange
	aggregator := new(mocks.MockMetricsAggregator)
	consumer := &KafkaConsumer{aggregator: aggregator}

	categoryID := uuid.New()
	event := entity.ProductEvent{
		EventType:  entity.EventProductCreated,
		ProductID:  uuid.New(),
		CategoryID: categoryID,
		Price:      499.99,
		Status:     "active",
		Timestamp:  time.Now(),
	}
	eventJSON, _ := json.Marshal(event)

	aggregator.On("Trigger", categoryID).Return()

	// Act
	err := consumer.processMessage(kafka.Message{Topic: "product_events", Value: eventJSON})

	// Assert
	assert.NoError(t, err)
	aggregator.AssertNumberOfCalls(t, "Trigger", 1)
}

func TestKafkaConsumer_ProcessMessage_ProductMovedBetweenCategories(t *testing.T) {
	// Arrange - перенос товара инвалидирует обе категории
	aggregator := new(mocks.MockMetricsAggregator)
	consumer := &KafkaConsumer{aggregator: aggregator}

	newCategoryID := uuid.New()
	oldCategoryID := uuid.New()
	event := entity.ProductEvent{
		EventType:     entity.EventProductUpdated,
		ProductID:     uuid.New(),
		CategoryID:    newCategoryID,
		OldCategoryID: &oldCategoryID,
		Timestamp:     time.Now(),
	}
	eventJSON, _ := json.Marshal(event)

	aggregator.On("Trigger", newCategoryID).Return()
	aggregator.On("Trigger", oldCategoryID).Return()

	// Act
	err := consumer.processMessage(kafka.Message{Topic: "product_events", Value: eventJSON})

	// Assert
	assert.NoError(t, err)
	aggregator.AssertCalled(t, "Trigger", newCategoryID)
	aggregator.AssertCalled(t, "Trigger", oldCategoryID)
}

func TestKafkaConsumer_ProcessMessage_ProductUpdatedSameCategory(t *testing.T) {
	// Arrange - OldCategoryID совпадает с текущей, второй триггер не нужен
	aggregator := new(mocks.MockMetricsAggregator)
	consumer := &KafkaConsumer{aggregator: aggregator}

	categoryID := uuid.New()
	event := entity.ProductEvent{
		EventType:     entity.EventProductUpdated,
		ProductID:     uuid.New(),
		CategoryID:    categoryID,
		OldCategoryID: &categoryID,
		Timestamp:     time.Now(),
	}
	eventJSON, _ := json.Marshal(event)

	aggregator.On("Trigger", categoryID).Return()

	// Act
	err := consumer.processMessage(kafka.Message{Value: eventJSON})

	// Assert
	assert.NoError(t, err)
	aggregator.AssertNumberOfCalls(t, "Trigger", 1)
}

func TestKafkaConsumer_ProcessMessage_InvalidJSON(t *testing.T) {
	// Arrange
	aggregator := new(mocks.MockMetricsAggregator)
	consumer := &KafkaConsumer{aggregator: aggregator}

	// Act
	err := consumer.processMessage(kafka.Message{Value: []byte("invalid json {{{")})

	// Assert
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
	aggregator.AssertNotCalled(t, "Trigger")
}

func TestKafkaConsumer_ProcessMessage_UnknownEventType(t *testing.T) {
	// Arrange - неизвестный тип события пропускается без ошибки
	aggregator := new(mocks.MockMetricsAggregator)
	consumer := &KafkaConsumer{aggregator: aggregator}

	eventJSON := []byte(`{"event_type": "WAREHOUSE_RESTOCKED"}`)

	// Act
	err := consumer.processMessage(kafka.Message{Value: eventJSON})

	// Assert
	assert.NoError(t, err)
	aggregator.AssertNotCalled(t, "Trigger")
}

// ===================== Start/Stop Tests =====================

func TestKafkaConsumer_StartStop(t *testing.T) {
	// Тест на graceful shutdown без реального Kafka
	// Arrange
	aggregator := new(mocks.MockMetricsAggregator)

	consumer := &KafkaConsumer{
		aggregator: aggregator,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}

	// Симулируем consume loop который сразу выходит
	go func() {
		<-consumer.stopChan
		close(consumer.doneChan)
	}()

	// Act
	close(consumer.stopChan)
	<-consumer.doneChan

	// Assert - consumer остановился без паники
	assert.NotNil(t, consumer)
}
