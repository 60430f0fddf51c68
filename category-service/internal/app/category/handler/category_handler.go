package handler

import (
	"errors"
	"net/http"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/category-service/internal/app/category/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CategoryHandler обрабатывает HTTP запросы подсистемы категорий
type CategoryHandler struct {
	categoryService service.CategoryServiceInterface
	validator       *validator.Validate
}

// NewCategoryHandler создает новый обработчик категорий
func NewCategoryHandler(categoryService service.CategoryServiceInterface) *CategoryHandler {
	return &CategoryHandler{
		categoryService: categoryService,
		validator:       validator.New(),
	}
}

// CreateCategory обрабатывает POST /categories
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req entity.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	category, err := h.categoryService.CreateCategory(c.Request.Context(), &req, actorFrom(c))
	if err != nil {
		respondServiceError(c, err, "Failed to create category")
		return
	}

	c.JSON(http.StatusCreated, category)
}

// MoveCategory обрабатывает POST /categories/{id}/move
func (h *CategoryHandler) MoveCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req entity.MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	category, err := h.categoryService.MoveCategory(c.Request.Context(), id, &req, actorFrom(c))
	if err != nil {
		respondServiceError(c, err, "Failed to move category")
		return
	}

	c.JSON(http.StatusOK, category)
}

// RenameCategory обрабатывает PUT /categories/{id}
func (h *CategoryHandler) RenameCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req entity.RenameCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	category, err := h.categoryService.RenameCategory(c.Request.Context(), id, &req, actorFrom(c))
	if err != nil {
		respondServiceError(c, err, "Failed to rename category")
		return
	}

	c.JSON(http.StatusOK, category)
}

// UpdateCategoryStatus обрабатывает PATCH /categories/{id}/status
func (h *CategoryHandler) UpdateCategoryStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req entity.UpdateCategoryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	category, err := h.categoryService.UpdateCategoryStatus(c.Request.Context(), id, &req, actorFrom(c))
	if err != nil {
		respondServiceError(c, err, "Failed to update category status")
		return
	}

	c.JSON(http.StatusOK, category)
}

// DeleteCategory обрабатывает DELETE /categories/{id}
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.categoryService.DeleteCategory(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondServiceError(c, err, "Failed to delete category")
		return
	}

	c.JSON(http.StatusOK, entity.SuccessResponse{Message: "Category deleted successfully"})
}

// GetCategory обрабатывает GET /categories/{id}
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	category, err := h.categoryService.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to get category")
		return
	}

	c.JSON(http.StatusOK, category)
}

// GetChildren обрабатывает GET /categories/{id}/children
func (h *CategoryHandler) GetChildren(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	children, err := h.categoryService.GetChildren(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to get children")
		return
	}

	c.JSON(http.StatusOK, entity.CategoryListResponse{Categories: children, Total: len(children)})
}

// GetTree обрабатывает GET /categories/tree?root={id}
func (h *CategoryHandler) GetTree(c *gin.Context) {
	var rootID *uuid.UUID
	if rootStr := c.Query("root"); rootStr != "" {
		id, err := uuid.Parse(rootStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid root ID"})
			return
		}
		rootID = &id
	}

	tree, err := h.categoryService.GetTree(c.Request.Context(), rootID)
	if err != nil {
		respondServiceError(c, err, "Failed to get category tree")
		return
	}

	c.JSON(http.StatusOK, entity.CategoryTreeResponse{Tree: tree, Total: len(tree)})
}

// GetBreadcrumb обрабатывает GET /categories/{id}/breadcrumb
func (h *CategoryHandler) GetBreadcrumb(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	breadcrumb, err := h.categoryService.GetBreadcrumb(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to get breadcrumb")
		return
	}

	c.JSON(http.StatusOK, entity.BreadcrumbResponse{Breadcrumb: breadcrumb})
}

// GetMetrics обрабатывает GET /categories/{id}/metrics
// Метрики могут быть устаревшими (пересчет асинхронный), но отвечаем всегда
func (h *CategoryHandler) GetMetrics(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	m, err := h.categoryService.GetMetrics(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to get metrics")
		return
	}

	c.JSON(http.StatusOK, m)
}

// GetAuditLog обрабатывает GET /categories/{id}/audit
func (h *CategoryHandler) GetAuditLog(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entries, err := h.categoryService.GetAuditLog(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to get audit log")
		return
	}

	c.JSON(http.StatusOK, entity.AuditLogResponse{Entries: entries, Total: len(entries)})
}

// === HELPER FUNCTIONS ===

// parseID парсит UUID категории из URL
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category ID"})
		return uuid.Nil, false
	}
	return id, true
}

// actorFrom достает идентификатор администратора из контекста (установлен middleware)
func actorFrom(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if str, ok := userID.(string); ok {
			return str
		}
	}
	return "unknown"
}

// respondServiceError транслирует таксономию ошибок сервиса в HTTP статусы
// Вызывающий получает конкретный вид ошибки: "имя некорректно" отличимо
// от "перемещение создало бы цикл" и от "есть дети, удалить нельзя"
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrIntegrity):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// formatValidationError форматирует ошибки валидации DTO
func formatValidationError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrors) > 0 {
			return validationErrors[0].Field() + " validation failed"
		}
	}
	return "Validation failed"
}
