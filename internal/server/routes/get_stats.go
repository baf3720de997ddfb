package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lemur/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
)

// StatsHandler exposes index sizes and gateway counters.
func StatsHandler(c echo.Context) error {
	type indexStats struct {
		Documents  int `json:"documents"`
		Sections   int `json:"sections"`
		Chunks     int `json:"chunks"`
		FlatChunks int `json:"flat_chunks"`
	}
	type graphStats struct {
		Nodes int `json:"nodes"`
		Edges int `json:"edges"`
	}
	type response struct {
		Index   indexStats      `json:"index"`
		Graph   graphStats      `json:"graph"`
		Gateway ai.GatewayStats `json:"gateway"`
	}

	cc := c.(*middleware.AppContext)

	docs, sections, chunks := cc.App.Docs.Counts()
	nodes, edges := cc.App.Graph.Counts()

	return c.JSON(http.StatusOK, response{
		Index: indexStats{
			Documents:  docs,
			Sections:   sections,
			Chunks:     chunks,
			FlatChunks: cc.App.Flat.Len(),
		},
		Graph: graphStats{
			Nodes: nodes,
			Edges: edges,
		},
		Gateway: cc.App.Gateway.Stats(),
	})
}
