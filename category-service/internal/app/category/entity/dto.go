package entity

import "github.com/google/uuid"

type CreateCategoryRequest struct {
	Name     string     `json:"name" validate:"required,min=2,max=100"`
	ParentID *uuid.UUID `json:"parent_id" validate:"omitempty"`
}

type MoveCategoryRequest struct {
	NewParentID *uuid.UUID `json:"new_parent_id" validate:"omitempty"`
	Reason      string     `json:"reason" validate:"omitempty,max=500"`
}

type RenameCategoryRequest struct {
	Name   string `json:"name" validate:"required,min=2,max=100"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type UpdateCategoryStatusRequest struct {
	Status    *CategoryStatus `json:"status" validate:"omitempty,oneof=draft active inactive archived"`
	IsVisible *bool           `json:"is_visible" validate:"omitempty"`
	Reason    string          `json:"reason" validate:"omitempty,max=500"`
}

// CategoryTreeNode - узел вложенной структуры дерева для клиентов
type CategoryTreeNode struct {
	Category Category           `json:"category"`
	Children []CategoryTreeNode `json:"children"`
}

type CategoryTreeResponse struct {
	Tree  []CategoryTreeNode `json:"tree"`
	Total int                `json:"total"`
}

type BreadcrumbResponse struct {
	Breadcrumb []Category `json:"breadcrumb"`
}

type CategoryListResponse struct {
	Categories []Category `json:"categories"`
	Total      int        `json:"total"`
}

type AuditLogResponse struct {
	Entries []AuditEntry `json:"entries"`
	Total   int          `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
