package common

import "time"

// IntentFamily is the coarse classification of what a maintenance query
// is asking for. It decides which retrieval route serves the query.
type IntentFamily string

const (
	// IntentAnalytics covers questions answerable from structured
	// maintenance records, such as availability or repair-time figures.
	IntentAnalytics IntentFamily = "STRUCTURED-ANALYTICS"
	// IntentDocument covers questions answered from document content,
	// such as procedures and manual lookups.
	IntentDocument IntentFamily = "DOCUMENT-RETRIEVAL"
	// IntentRelationship covers causal and dependency questions that
	// need the entity graph.
	IntentRelationship IntentFamily = "RELATIONSHIP-REASONING"
	// IntentHybrid is chosen when no single family is a confident
	// match and several routes run together.
	IntentHybrid IntentFamily = "HYBRID"
)

// AnalyticsKind names the concrete metric an analytics query asks for.
type AnalyticsKind string

const (
	KindMTBF         AnalyticsKind = "mtbf"
	KindMTTR         AnalyticsKind = "mttr"
	KindAvailability AnalyticsKind = "availability"
	KindCost         AnalyticsKind = "cost"
	KindCount        AnalyticsKind = "count"
	KindTrend        AnalyticsKind = "trend"
)

// DateRange is a closed interval of time carried with a query. Both
// bounds are inclusive.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether no range was extracted.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// ExtractedEntities holds everything the entity extractor pulled out of
// a query. Equipment carries both formal codes and free-text names.
type ExtractedEntities struct {
	Equipment   []string   `json:"equipment"`
	Components  []string   `json:"components"`
	Technicians []string   `json:"technicians"`
	Quantities  []Quantity `json:"quantities"`
	DateRange   DateRange  `json:"date_range"`
}

// Quantity is a numeric value with the unit it was written with, such
// as "3 bar" or "250 hours".
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Citation points an answer fragment back at the material it came
// from. Exactly one of the source fields is set depending on the kind.
type Citation struct {
	Kind       CitationKind `json:"kind"`
	DocumentID string       `json:"document_id,omitempty"`
	SectionID  string       `json:"section_id,omitempty"`
	PageStart  int          `json:"page_start,omitempty"`
	PageEnd    int          `json:"page_end,omitempty"`
	NodeID     string       `json:"node_id,omitempty"`
	Metric     string       `json:"metric,omitempty"`
	Score      float64      `json:"score,omitempty"`
}

// CitationKind tells which backing system produced a citation.
type CitationKind string

const (
	CiteDocument  CitationKind = "document"
	CiteGraph     CitationKind = "graph"
	CiteAnalytics CitationKind = "analytics"
)
