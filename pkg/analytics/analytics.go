// Package analytics bridges queries about structured maintenance
// records to an external analytics engine. The bridge never computes
// metrics itself, it forwards the request and renders the result into
// a context block for answer generation.
package analytics

import (
	"context"

	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
)

// Request asks the engine for one metric over a set of equipment and a
// date range. Both bounds of the range are inclusive.
type Request struct {
	Kind      common.AnalyticsKind `json:"kind"`
	Equipment []string             `json:"equipment"`
	Range     common.DateRange     `json:"range"`
}

// Result is the engine's answer. SupportingCounts says how many
// records each figure is based on, keyed by equipment identifier.
type Result struct {
	Kind             common.AnalyticsKind `json:"kind"`
	Value            float64              `json:"value"`
	Unit             string               `json:"unit"`
	PerEquipment     map[string]float64   `json:"per_equipment,omitempty"`
	SupportingCounts map[string]int       `json:"supporting_counts,omitempty"`
	Warnings         []string             `json:"warnings,omitempty"`
}

// Engine computes maintenance metrics from structured records.
type Engine interface {
	Compute(ctx context.Context, req Request) (Result, error)
}
