package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

const (
	// defaultLookbackDays is applied when a query carries no date
	// range of its own.
	defaultLookbackDays = 365

	defaultComputeTimeout = 15 * time.Second

	dateLayout = "2006-01-02"
)

// Bridge turns an analytics intent into an engine request and renders
// the result as a text block for the answer prompt.
type Bridge struct {
	engine  Engine
	timeout time.Duration
	now     func() time.Time
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithComputeTimeout bounds how long a single engine call may take.
func WithComputeTimeout(timeout time.Duration) BridgeOption {
	return func(b *Bridge) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithClock replaces the time source used for default date ranges.
func WithClock(now func() time.Time) BridgeOption {
	return func(b *Bridge) {
		b.now = now
	}
}

// NewBridge creates a bridge over the given engine.
func NewBridge(engine Engine, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		engine:  engine,
		timeout: defaultComputeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fetch computes the metric for the extracted entities and returns the
// raw result together with its rendered context block. A query without
// a date range defaults to the trailing year.
func (b *Bridge) Fetch(
	ctx context.Context,
	kind common.AnalyticsKind,
	entities common.ExtractedEntities,
) (Result, string, error) {
	dateRange := entities.DateRange
	if dateRange.IsZero() {
		to := b.now()
		dateRange = common.DateRange{
			From: to.AddDate(0, 0, -defaultLookbackDays),
			To:   to,
		}
		logger.Debug("analytics query without date range, using default lookback",
			"days", defaultLookbackDays)
	}

	req := Request{
		Kind:      kind,
		Equipment: entities.Equipment,
		Range:     dateRange,
	}

	computeCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := b.engine.Compute(computeCtx, req)
	if err != nil {
		return Result{}, "", fmt.Errorf("analytics compute failed: %w", err)
	}

	return result, renderBlock(req, result), nil
}

// renderBlock produces the fixed-format analytics block embedded into
// the generation prompt.
func renderBlock(req Request, result Result) string {
	var sb strings.Builder
	sb.WriteString("[ANALYTICS]\n")
	fmt.Fprintf(&sb, "metric: %s\n", req.Kind)
	if len(req.Equipment) > 0 {
		fmt.Fprintf(&sb, "equipment: %s\n", strings.Join(req.Equipment, ", "))
	}
	fmt.Fprintf(&sb, "period: %s to %s\n",
		req.Range.From.Format(dateLayout), req.Range.To.Format(dateLayout))
	fmt.Fprintf(&sb, "value: %g %s\n", result.Value, result.Unit)

	if len(result.PerEquipment) > 0 {
		keys := make([]string, 0, len(result.PerEquipment))
		for k := range result.PerEquipment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %g %s\n", k, result.PerEquipment[k], result.Unit)
		}
	}

	if len(result.SupportingCounts) > 0 {
		total := 0
		for _, n := range result.SupportingCounts {
			total += n
		}
		fmt.Fprintf(&sb, "records: %d\n", total)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(&sb, "warning: %s\n", w)
	}

	return strings.TrimRight(sb.String(), "\n")
}
