package repository

import (
	"context"
	"fmt"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type auditRepository struct {
	collection *mongo.Collection
}

// NewAuditRepository создает новый репозиторий журнала изменений
// Журнал хранится в MongoDB как insert-only коллекция: записи никогда
// не обновляются и не удаляются. Индекс по category_id + performed_at
// обеспечивает быструю выборку истории узла в порядке добавления
func NewAuditRepository(db *mongo.Database) AuditRepository {
	collection := db.Collection("category_audit")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "category_id", Value: 1},
			{Key: "performed_at", Value: 1},
		},
		Options: options.Index().SetName("category_performed_idx"),
	}

	if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		// Логируем, но не прерываем работу - индекс может уже существовать
		logger.Warn().Err(err).Msg("failed to create audit index")
	}

	return &auditRepository{collection: collection}
}

// Append добавляет неизменяемую запись в журнал категории
func (r *auditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid
	}

	return nil
}

// GetByCategoryID получает историю изменений узла в порядке добавления
func (r *auditRepository) GetByCategoryID(ctx context.Context, categoryID uuid.UUID) ([]entity.AuditEntry, error) {
	filter := bson.M{"category_id": categoryID.String()}
	opts := options.Find().SetSort(bson.D{{Key: "performed_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []entity.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	return entries, nil
}
