package router

import (
	"github.com/OFFIS-RIT/lemur/backend/pkg/analytics"
	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
)

// Handler names one retrieval path the router can run.
type Handler string

const (
	HandlerAnalytics Handler = "analytics"
	HandlerDocument  Handler = "document"
	HandlerGraph     Handler = "graph"
)

// Options control a single routed query. Zero values fall back to the
// router's configured defaults.
type Options struct {
	TopK                int      `json:"top_k"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	DocumentScope       []string `json:"document_scope"`
	UseCache            bool     `json:"use_cache"`
	IncludeSources      bool     `json:"include_sources"`
	IncludeRouting      bool     `json:"include_routing"`
	IncludeGraphContext bool     `json:"include_graph_context"`
}

// RouteDecision records how one query was handled. It exists for the
// lifetime of the request only and is returned to the caller when
// routing info was requested.
type RouteDecision struct {
	RequestID     string                   `json:"request_id"`
	Primary       Handler                  `json:"primary"`
	HandlersUsed  []Handler                `json:"handlers_used"`
	Intent        common.IntentFamily      `json:"intent"`
	Confidence    float64                  `json:"confidence"`
	Reasoning     string                   `json:"reasoning"`
	AnalyticsKind common.AnalyticsKind     `json:"analytics_kind,omitempty"`
	Entities      common.ExtractedEntities `json:"entities"`
	DocumentScope []string                 `json:"document_scope,omitempty"`
}

// Result is the complete answer to one routed query.
type Result struct {
	Answer          string             `json:"answer"`
	Citations       []common.Citation  `json:"citations,omitempty"`
	Routing         *RouteDecision     `json:"routing,omitempty"`
	GraphContext    *graph.Context     `json:"graph_context,omitempty"`
	AnalyticsData   *analytics.Result  `json:"analytics_data,omitempty"`
	TimingMs        map[string]int64   `json:"timing_ms"`
	ChunksRetrieved int                `json:"chunks_retrieved"`
	CacheHit        bool               `json:"cache_hit"`
	ProviderUsed    string             `json:"provider_used"`
}
