package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
)

func TestHTTPEngineCompute(t *testing.T) {
	var gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{Kind: common.KindMTBF, Value: 120, Unit: "hours"})
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL, WithAPIKey("secret"))
	result, err := engine.Compute(context.Background(), Request{
		Kind:      common.KindMTBF,
		Equipment: []string{"Pump-12"},
	})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotReq.Kind != common.KindMTBF || len(gotReq.Equipment) != 1 {
		t.Fatalf("request = %+v", gotReq)
	}
	if result.Value != 120 || result.Unit != "hours" {
		t.Fatalf("result = %+v", result)
	}
}

func TestHTTPEngineCompute_RetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Result{Kind: common.KindCount, Value: 7})
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	result, err := engine.Compute(context.Background(), Request{Kind: common.KindCount})
	if err != nil {
		t.Fatalf("Compute failed after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if result.Value != 7 {
		t.Fatalf("result = %+v", result)
	}
}

func TestHTTPEngineCompute_PersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metric store offline", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	if _, err := engine.Compute(context.Background(), Request{Kind: common.KindCost}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
