package handler

import (
	"net/http"

	"grandbazar/pkg/logger"
	"grandbazar/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes настраивает маршруты Category Service с использованием Gin
// Применяет Auth middleware для защиты эндпоинтов
func SetupRoutes(categoryHandler *CategoryHandler, authMiddleware *AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware())
	router.Use(metrics.GinMiddleware("category-service"))
	router.Use(cors.Default())

	// Health check и метрики - публичные, без аутентификации
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "category-service",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Categories endpoints - все требуют аутентификации
	categories := router.Group("/categories")
	categories.Use(authMiddleware.Authenticate())
	{
		// GET эндпоинты доступны всем аутентифицированным пользователям
		categories.GET("/tree", categoryHandler.GetTree)                 // Дерево видимых активных категорий (кеш Redis)
		categories.GET("/:id", categoryHandler.GetCategory)              // Категория по ID
		categories.GET("/:id/children", categoryHandler.GetChildren)     // Прямые дети узла
		categories.GET("/:id/breadcrumb", categoryHandler.GetBreadcrumb) // Хлебные крошки от корня до узла
		categories.GET("/:id/metrics", categoryHandler.GetMetrics)       // Rollup-метрики (могут быть устаревшими)
		categories.GET("/:id/audit", categoryHandler.GetAuditLog)        // История изменений узла

		// Структурные операции только для manager и admin
		categories.POST("", authMiddleware.RequireRole("manager", "admin"), categoryHandler.CreateCategory)                // Создать категорию
		categories.POST("/:id/move", authMiddleware.RequireRole("manager", "admin"), categoryHandler.MoveCategory)         // Перенести под нового родителя
		categories.PUT("/:id", authMiddleware.RequireRole("manager", "admin"), categoryHandler.RenameCategory)             // Переименовать
		categories.PATCH("/:id/status", authMiddleware.RequireRole("manager", "admin"), categoryHandler.UpdateCategoryStatus) // Статус/видимость
		categories.DELETE("/:id", authMiddleware.RequireRole("admin"), categoryHandler.DeleteCategory)                     // Удалить (только admin)
	}

	return router
}
