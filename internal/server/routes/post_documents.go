package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lemur/backend/internal/queue"
	"github.com/OFFIS-RIT/lemur/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
	"github.com/OFFIS-RIT/lemur/backend/pkg/index"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

// IngestDocumentHandler queues one pre-embedded document for indexing.
// The processing pipeline upstream owns parsing and embedding; this
// endpoint only accepts the finished artifact.
func IngestDocumentHandler(c echo.Context) error {
	type request struct {
		Document          index.Document     `json:"document" validate:"required"`
		DocumentEmbedding []float32          `json:"document_embedding" validate:"required"`
		Sections          []queue.SectionMsg `json:"sections" validate:"required"`
		Chunks            []queue.ChunkMsg   `json:"chunks" validate:"required"`
		GraphNodes        []graph.Node       `json:"graph_nodes"`
		GraphEdges        []graph.Edge       `json:"graph_edges"`
	}
	type response struct {
		Status     string `json:"status"`
		DocumentID string `json:"document_id"`
	}

	req := new(request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"Message": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"Message": "Invalid request body"})
	}
	if req.Document.ID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"Message": "Document ID is required"})
	}

	cc := c.(*middleware.AppContext)

	msg := queue.IngestJobMsg{
		Message:           "ingest",
		Document:          req.Document,
		DocumentEmbedding: req.DocumentEmbedding,
		Sections:          req.Sections,
		Chunks:            req.Chunks,
		GraphNodes:        req.GraphNodes,
		GraphEdges:        req.GraphEdges,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal ingest job", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"Message": "Internal server error"})
	}

	if err := queue.PublishFIFO(cc.App.Queue, queue.IngestQueue, data); err != nil {
		logger.Error("Failed to publish ingest job", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"Message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, response{
		Status:     "queued",
		DocumentID: req.Document.ID,
	})
}

// DeleteDocumentHandler queues the removal of one document's vectors
// from the flat index.
func DeleteDocumentHandler(c echo.Context) error {
	type response struct {
		Status     string `json:"status"`
		DocumentID string `json:"document_id"`
	}

	docID := c.Param("id")
	if docID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"Message": "Document ID is required"})
	}

	cc := c.(*middleware.AppContext)

	data, err := json.Marshal(queue.DeleteJobMsg{
		Message:    "delete",
		DocumentID: docID,
	})
	if err != nil {
		logger.Error("Failed to marshal delete job", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"Message": "Internal server error"})
	}

	if err := queue.PublishFIFO(cc.App.Queue, queue.DeleteQueue, data); err != nil {
		logger.Error("Failed to publish delete job", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"Message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, response{
		Status:     "queued",
		DocumentID: docID,
	})
}
