package server

import (
	"github.com/OFFIS-RIT/lemur/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", routes.HealthHandler)
	e.GET("/stats", routes.StatsHandler)

	apiRoutes := e.Group("/api")

	// Query routes
	apiRoutes.POST("/query", routes.QueryHandler)

	// Document routes
	apiRoutes.POST("/documents", routes.IngestDocumentHandler)
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler)
}
