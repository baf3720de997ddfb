package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lemur/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
	"github.com/OFFIS-RIT/lemur/backend/pkg/router"
)

// QueryHandler answers one natural-language query over the indexed
// maintenance data.
func QueryHandler(c echo.Context) error {
	type request struct {
		Query               string   `json:"query" validate:"required"`
		TopK                int      `json:"top_k"`
		SimilarityThreshold float64  `json:"similarity_threshold"`
		DocumentScope       []string `json:"document_scope"`
		UseCache            *bool    `json:"use_cache"`
		IncludeSources      bool     `json:"include_sources"`
		IncludeRouting      bool     `json:"include_routing"`
		IncludeGraphContext bool     `json:"include_graph_context"`
	}

	req := new(request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"Message": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"Message": "Invalid request body"})
	}

	cc := c.(*middleware.AppContext)

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	opts := router.Options{
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		DocumentScope:       req.DocumentScope,
		UseCache:            useCache,
		IncludeSources:      req.IncludeSources,
		IncludeRouting:      req.IncludeRouting,
		IncludeGraphContext: req.IncludeGraphContext,
	}

	result, err := cc.App.Router.Route(c.Request().Context(), req.Query, opts)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrServiceUnavailable),
			errors.Is(err, router.ErrEmbeddingUnavailable):
			logger.Warn("Query degraded, no backend available", "err", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"Message": "Service temporarily unavailable"})
		default:
			logger.Error("Failed to route query", "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"Message": "Internal server error"})
		}
	}

	return c.JSON(http.StatusOK, result)
}
