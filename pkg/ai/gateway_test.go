package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	name        string
	status      ProviderStatus
	healthErr   error
	chatResult  string
	chatErr     error
	embedResult []float32
	embedErr    error

	healthCalls int
	chatCalls   int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GenerateChat(ctx context.Context, messages []ChatMessage, opts ...GenerateOption) (string, error) {
	s.chatCalls++
	if s.chatErr != nil {
		return "", s.chatErr
	}
	return s.chatResult, nil
}

func (s *stubProvider) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return s.embedResult, nil
}

func (s *stubProvider) CheckHealth(ctx context.Context) (ProviderStatus, error) {
	s.healthCalls++
	return s.status, s.healthErr
}

func (s *stubProvider) ResetMetrics()            {}
func (s *stubProvider) GetMetrics() ModelMetrics { return ModelMetrics{} }

func newTestGateway(providers ...Provider) *Gateway {
	return NewGateway(NewGatewayParams{
		Providers:    providers,
		HealthWindow: time.Minute,
	})
}

func TestGetProvider_PrimaryAvailable(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable}
	fallback := &stubProvider{name: "fallback", status: StatusAvailable}
	g := newTestGateway(primary, fallback)

	p, err := g.GetProvider(context.Background())
	if err != nil {
		t.Fatalf("expected provider, got error %v", err)
	}
	if p.Name() != "primary" {
		t.Fatalf("expected primary, got %s", p.Name())
	}
}

func TestGetProvider_SkipsRateLimitedAndUnavailable(t *testing.T) {
	tests := []struct {
		name          string
		primaryStatus ProviderStatus
	}{
		{"RateLimited", StatusRateLimited},
		{"Unavailable", StatusUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			primary := &stubProvider{name: "primary", status: tc.primaryStatus, healthErr: errors.New("down")}
			fallback := &stubProvider{name: "fallback", status: StatusAvailable}
			g := newTestGateway(primary, fallback)

			p, err := g.GetProvider(context.Background())
			if err != nil {
				t.Fatalf("expected fallback provider, got error %v", err)
			}
			if p.Name() != "fallback" {
				t.Fatalf("expected fallback, got %s", p.Name())
			}
		})
	}
}

func TestGetProvider_NoneAvailable(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusUnavailable, healthErr: errors.New("down")}
	g := newTestGateway(primary)

	_, err := g.GetProvider(context.Background())
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
}

func TestGenerateChat_FailoverToFallback(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusUnavailable, healthErr: errors.New("down")}
	fallback := &stubProvider{name: "fallback", status: StatusAvailable, chatResult: "answer"}
	g := newTestGateway(primary, fallback)

	answer, used, err := g.GenerateChat(context.Background(), []ChatMessage{{Role: "user", Message: "hi"}})
	if err != nil {
		t.Fatalf("expected success via fallback, got %v", err)
	}
	if answer != "answer" {
		t.Fatalf("expected %q, got %q", "answer", answer)
	}
	if used != "fallback" {
		t.Fatalf("expected fallback provider, got %s", used)
	}

	stats := g.Stats()
	if stats.Fallbacks != 1 {
		t.Fatalf("expected exactly 1 fallback, got %d", stats.Fallbacks)
	}
	if stats.Requests["fallback"] != 1 {
		t.Fatalf("expected 1 fallback request, got %d", stats.Requests["fallback"])
	}
}

func TestGenerateChat_EscalatesOnCallFailure(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable, chatErr: errors.New("boom")}
	fallback := &stubProvider{name: "fallback", status: StatusAvailable, chatResult: "rescued"}
	g := newTestGateway(primary, fallback)

	answer, used, err := g.GenerateChat(context.Background(), []ChatMessage{{Role: "user", Message: "hi"}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if answer != "rescued" || used != "fallback" {
		t.Fatalf("expected rescued/fallback, got %q/%s", answer, used)
	}
	if primary.chatCalls != 1 || fallback.chatCalls != 1 {
		t.Fatalf("expected one call each, got primary=%d fallback=%d", primary.chatCalls, fallback.chatCalls)
	}

	stats := g.Stats()
	if stats.Fallbacks != 1 {
		t.Fatalf("expected 1 fallback, got %d", stats.Fallbacks)
	}
}

func TestGenerateChat_AllProvidersFail(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable, chatErr: errors.New("boom1")}
	fallback := &stubProvider{name: "fallback", status: StatusAvailable, chatErr: errors.New("boom2")}
	g := newTestGateway(primary, fallback)

	_, _, err := g.GenerateChat(context.Background(), []ChatMessage{{Role: "user", Message: "hi"}})
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}

	stats := g.Stats()
	if stats.Failures != 1 {
		t.Fatalf("expected 1 failure, got %d", stats.Failures)
	}
	if primary.chatCalls != 1 || fallback.chatCalls != 1 {
		t.Fatalf("expected each provider tried once, got primary=%d fallback=%d", primary.chatCalls, fallback.chatCalls)
	}
}

func TestGenerateChat_CancellationStopsFailover(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable, chatErr: context.Canceled}
	fallback := &stubProvider{name: "fallback", status: StatusAvailable, chatResult: "unused"}
	g := newTestGateway(primary, fallback)

	_, _, err := g.GenerateChat(context.Background(), []ChatMessage{{Role: "user", Message: "hi"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fallback.chatCalls != 0 {
		t.Fatalf("fallback must not be attempted after cancellation, got %d calls", fallback.chatCalls)
	}
}

func TestProviderHealth_CachedWithinWindow(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable}
	g := newTestGateway(primary)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := g.GetProvider(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if primary.healthCalls != 1 {
		t.Fatalf("expected 1 health probe within cache window, got %d", primary.healthCalls)
	}
}

func TestProviderHealth_RefreshAfterWindow(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable}
	g := NewGateway(NewGatewayParams{
		Providers:    []Provider{primary},
		HealthWindow: 10 * time.Millisecond,
	})

	ctx := context.Background()
	if _, err := g.GetProvider(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := g.GetProvider(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.healthCalls != 2 {
		t.Fatalf("expected re-probe after window, got %d probes", primary.healthCalls)
	}
}

func TestGenerateEmbedding_Failover(t *testing.T) {
	primary := &stubProvider{name: "primary", status: StatusAvailable, embedErr: errors.New("boom")}
	fallback := &stubProvider{name: "fallback", status: StatusAvailable, embedResult: []float32{1, 2, 3}}
	g := newTestGateway(primary, fallback)

	vec, used, err := g.GenerateEmbedding(context.Background(), []byte("pump"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if used != "fallback" || len(vec) != 3 {
		t.Fatalf("expected fallback vector, got %s len=%d", used, len(vec))
	}
}
