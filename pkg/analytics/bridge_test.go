package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
)

type stubEngine struct {
	lastReq Request
	result  Result
	err     error
	delay   time.Duration
}

func (s *stubEngine) Compute(ctx context.Context, req Request) (Result, error) {
	s.lastReq = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func TestFetch_ForwardsRequest(t *testing.T) {
	engine := &stubEngine{result: Result{
		Kind:  common.KindAvailability,
		Value: 97.4,
		Unit:  "%",
	}}
	bridge := NewBridge(engine, WithClock(fixedClock))

	entities := common.ExtractedEntities{
		Equipment: []string{"Pump-12"},
		DateRange: common.DateRange{
			From: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	result, block, err := bridge.Fetch(context.Background(), common.KindAvailability, entities)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Value != 97.4 {
		t.Fatalf("value = %g", result.Value)
	}
	if engine.lastReq.Kind != common.KindAvailability {
		t.Fatalf("engine got kind %s", engine.lastReq.Kind)
	}
	if len(engine.lastReq.Equipment) != 1 || engine.lastReq.Equipment[0] != "Pump-12" {
		t.Fatalf("engine got equipment %+v", engine.lastReq.Equipment)
	}

	for _, fragment := range []string{
		"[ANALYTICS]",
		"metric: availability",
		"equipment: Pump-12",
		"period: 2026-07-01 to 2026-07-31",
		"value: 97.4 %",
	} {
		if !strings.Contains(block, fragment) {
			t.Fatalf("block missing %q:\n%s", fragment, block)
		}
	}
}

func TestFetch_DefaultDateRange(t *testing.T) {
	engine := &stubEngine{}
	bridge := NewBridge(engine, WithClock(fixedClock))

	_, _, err := bridge.Fetch(context.Background(), common.KindCount, common.ExtractedEntities{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	wantFrom := fixedClock().AddDate(0, 0, -defaultLookbackDays)
	if !engine.lastReq.Range.From.Equal(wantFrom) {
		t.Fatalf("default range from = %v, want %v", engine.lastReq.Range.From, wantFrom)
	}
	if !engine.lastReq.Range.To.Equal(fixedClock()) {
		t.Fatalf("default range to = %v", engine.lastReq.Range.To)
	}
}

func TestFetch_EngineErrorPropagates(t *testing.T) {
	engine := &stubEngine{err: errors.New("service down")}
	bridge := NewBridge(engine)

	_, _, err := bridge.Fetch(context.Background(), common.KindMTTR, common.ExtractedEntities{})
	if err == nil {
		t.Fatal("expected error from failing engine")
	}
}

func TestFetch_TimeoutBoundsEngineCall(t *testing.T) {
	engine := &stubEngine{delay: time.Second}
	bridge := NewBridge(engine, WithComputeTimeout(10*time.Millisecond))

	start := time.Now()
	_, _, err := bridge.Fetch(context.Background(), common.KindTrend, common.ExtractedEntities{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Fetch did not honor the compute timeout")
	}
}

func TestRenderBlock_Warnings(t *testing.T) {
	req := Request{
		Kind:  common.KindMTBF,
		Range: common.DateRange{From: fixedClock(), To: fixedClock()},
	}
	result := Result{
		Kind:             common.KindMTBF,
		Value:            120,
		Unit:             "hours",
		SupportingCounts: map[string]int{"Pump-12": 8, "Pump-13": 4},
		Warnings:         []string{"sparse data for Pump-13"},
	}

	block := renderBlock(req, result)
	if !strings.Contains(block, "records: 12") {
		t.Fatalf("supporting counts not summed:\n%s", block)
	}
	if !strings.Contains(block, "warning: sparse data for Pump-13") {
		t.Fatalf("warnings missing:\n%s", block)
	}
}
