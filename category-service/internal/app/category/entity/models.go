package entity

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxDepth - максимальная глубина дерева категорий
// Уровень 0 - корневые категории, уровень 5 - самые глубокие
const MaxDepth = 5

// CategoryStatus - статус категории в жизненном цикле
type CategoryStatus string

const (
	StatusDraft    CategoryStatus = "draft"
	StatusActive   CategoryStatus = "active"
	StatusInactive CategoryStatus = "inactive"
	StatusArchived CategoryStatus = "archived"
)

// CategorySettings - настройки отображения и поведения категории
type CategorySettings struct {
	IsActive      bool `json:"is_active" db:"is_active"`
	IsVisible     bool `json:"is_visible" db:"is_visible"`
	AllowProducts bool `json:"allow_products" db:"allow_products"`
	SortOrder     int  `json:"sort_order" db:"sort_order"`
}

// CategoryMetrics - агрегированные метрики категории
// Полностью производные данные: пересчитываются агрегатором из товаров
// поддерева, никогда не редактируются вручную
type CategoryMetrics struct {
	TotalProducts       int64     `json:"total_products" db:"total_products"`
	ActiveProducts      int64     `json:"active_products" db:"active_products"`
	TotalManufacturers  int64     `json:"total_manufacturers" db:"total_manufacturers"`
	TotalRevenue        float64   `json:"total_revenue" db:"total_revenue"`
	AverageProductPrice float64   `json:"average_product_price" db:"average_product_price"`
	TotalOrders         int64     `json:"total_orders" db:"total_orders"`
	TotalSubcategories  int64     `json:"total_subcategories" db:"total_subcategories"`
	PopularityScore     int       `json:"popularity_score" db:"popularity_score"` // 0-100
	ComputedAt          time.Time `json:"computed_at" db:"metrics_computed_at"`
}

// Category представляет узел дерева категорий
// Level и Path - денормализованные поля для O(1) чтения цепочки предков,
// пересчитываются при создании и перемещении узла
type Category struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	Slug      string           `json:"slug" db:"slug"` // глобально уникальный, [a-z0-9-_]+
	ParentID  *uuid.UUID       `json:"parent_id" db:"parent_id"`
	Level     int              `json:"level" db:"level"` // 0 для корней, == parent.Level + 1
	Path      string           `json:"path" db:"path"`   // "electronics/phones", пустая строка для корней
	Status    CategoryStatus   `json:"status" db:"status"`
	Settings  CategorySettings `json:"settings"`
	Metrics   CategoryMetrics  `json:"metrics"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// IsRoot возвращает true для корневых категорий
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// FullPath возвращает полный путь узла включая собственный slug
// Используется как префикс пути для всех потомков
func (c *Category) FullPath() string {
	if c.Path == "" {
		return c.Slug
	}
	return c.Path + "/" + c.Slug
}

// StructureUpdate - пересчитанные структурные поля одного узла
// Батч таких обновлений применяется атомарно при перемещении поддерева
type StructureUpdate struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
	Level    int
	Path     string
}

// === AUDIT LOG ===

// AuditAction - действие администратора над категорией (закрытый набор)
type AuditAction string

const (
	AuditActionCreated     AuditAction = "created"
	AuditActionUpdated     AuditAction = "updated"
	AuditActionDeleted     AuditAction = "deleted"
	AuditActionActivated   AuditAction = "activated"
	AuditActionDeactivated AuditAction = "deactivated"
	AuditActionMadeVisible AuditAction = "made_visible"
	AuditActionMadeHidden  AuditAction = "made_hidden"
	AuditActionArchived    AuditAction = "archived"
	AuditActionRestored    AuditAction = "restored"
)

// AuditEntry - запись в журнале изменений категории
// Записи неизменяемы после добавления и упорядочены по времени добавления
type AuditEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CategoryID  string             `bson:"category_id" json:"category_id"`
	Action      AuditAction        `bson:"action" json:"action"`
	PerformedBy string             `bson:"performed_by" json:"performed_by"`
	PerformedAt time.Time          `bson:"performed_at" json:"performed_at"`
	Changes     AuditChanges       `bson:"changes" json:"changes"`
	Reason      string             `bson:"reason,omitempty" json:"reason,omitempty"`
}

// AuditChanges - типизированный payload изменений
// Заполняется ровно одно поле в зависимости от действия,
// вместо нетипизированного map[string]interface{}
type AuditChanges struct {
	Created    *CreatedChanges    `bson:"created,omitempty" json:"created,omitempty"`
	Renamed    *RenamedChanges    `bson:"renamed,omitempty" json:"renamed,omitempty"`
	Reparented *ReparentedChanges `bson:"reparented,omitempty" json:"reparented,omitempty"`
	Status     *StatusChanges     `bson:"status,omitempty" json:"status,omitempty"`
	Visibility *VisibilityChanges `bson:"visibility,omitempty" json:"visibility,omitempty"`
}

// CreatedChanges - начальное состояние при создании категории
type CreatedChanges struct {
	Name     string  `bson:"name" json:"name"`
	Slug     string  `bson:"slug" json:"slug"`
	ParentID *string `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Level    int     `bson:"level" json:"level"`
}

// RenamedChanges - смена имени категории
type RenamedChanges struct {
	OldName string `bson:"old_name" json:"old_name"`
	NewName string `bson:"new_name" json:"new_name"`
}

// ReparentedChanges - перемещение категории (записывается как действие updated)
type ReparentedChanges struct {
	OldParentID *string `bson:"old_parent_id,omitempty" json:"old_parent_id,omitempty"`
	NewParentID *string `bson:"new_parent_id,omitempty" json:"new_parent_id,omitempty"`
	OldPath     string  `bson:"old_path" json:"old_path"`
	NewPath     string  `bson:"new_path" json:"new_path"`
}

// StatusChanges - смена статуса категории
type StatusChanges struct {
	OldStatus CategoryStatus `bson:"old_status" json:"old_status"`
	NewStatus CategoryStatus `bson:"new_status" json:"new_status"`
}

// VisibilityChanges - смена видимости категории
type VisibilityChanges struct {
	OldVisible bool `bson:"old_visible" json:"old_visible"`
	NewVisible bool `bson:"new_visible" json:"new_visible"`
}

// === EXTERNAL PRODUCT COLLABORATOR ===

// ProductCounts - счётчики товаров по набору категорий
type ProductCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// ProductAggregates - агрегаты товаров по набору категорий
type ProductAggregates struct {
	AvgPrice              float64 `json:"avg_price"`
	TotalRevenue          float64 `json:"total_revenue"`
	TotalOrders           int64   `json:"total_orders"`
	DistinctManufacturers int64   `json:"distinct_manufacturers"`
}

// === EVENTS ===

const (
	// EventCategoryMetricsInvalidated публикуется после структурных изменений,
	// consumer запускает пересчет метрик для указанного узла
	EventCategoryMetricsInvalidated = "CATEGORY_METRICS_INVALIDATED"

	// События внешнего топика product_events
	EventProductCreated = "PRODUCT_CREATED"
	EventProductUpdated = "PRODUCT_UPDATED"
	EventProductDeleted = "PRODUCT_DELETED"
)

// CategoryEvent - событие инвалидации метрик категории для Kafka
type CategoryEvent struct {
	EventType  string    `json:"event_type"`
	CategoryID uuid.UUID `json:"category_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProductEvent - событие изменения товара из внешнего топика product_events
// OldCategoryID заполняется при переносе товара между категориями
type ProductEvent struct {
	EventType     string     `json:"event_type"`
	ProductID     uuid.UUID  `json:"product_id"`
	CategoryID    uuid.UUID  `json:"category_id"`
	OldCategoryID *uuid.UUID `json:"old_category_id,omitempty"`
	Price         float64    `json:"price"`
	Status        string     `json:"status"`
	Timestamp     time.Time  `json:"timestamp"`
}
