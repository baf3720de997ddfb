package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

// ErrNoProviderAvailable is returned when every configured provider has
// been tried and failed. Callers should surface this as a degraded-service
// response rather than a crash.
var ErrNoProviderAvailable = errors.New("no AI provider available")

const (
	defaultHealthWindow = 30 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// GatewayStats exposes the gateway's running counters for observability.
type GatewayStats struct {
	Requests  map[string]int64 `json:"requests"`
	Fallbacks int64            `json:"fallbacks"`
	Failures  int64            `json:"failures"`
}

// Gateway fronts an ordered list of providers (primary first) with cached
// health checks and single-step failover. Selection walks the preference
// order and picks the first provider whose cached health is available;
// generation escalates to the remaining providers at most once each and
// only fails when all of them have failed.
type Gateway struct {
	providers    []Provider
	healthWindow time.Duration
	probeTimeout time.Duration

	healthMu sync.RWMutex
	health   map[string]HealthInfo

	statsMu   sync.Mutex
	requests  map[string]int64
	fallbacks int64
	failures  int64
}

// NewGatewayParams configures a Gateway. Providers must be given in
// preference order. Zero durations fall back to package defaults.
type NewGatewayParams struct {
	Providers    []Provider
	HealthWindow time.Duration
	ProbeTimeout time.Duration
}

func NewGateway(params NewGatewayParams) *Gateway {
	window := params.HealthWindow
	if window <= 0 {
		window = defaultHealthWindow
	}
	probeTimeout := params.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}

	return &Gateway{
		providers:    params.Providers,
		healthWindow: window,
		probeTimeout: probeTimeout,
		health:       make(map[string]HealthInfo),
		requests:     make(map[string]int64),
	}
}

// providerHealth returns the cached health for p, re-probing only when the
// cached entry is older than the health window. A refresh race is
// acceptable, last writer wins.
func (g *Gateway) providerHealth(ctx context.Context, p Provider) HealthInfo {
	g.healthMu.RLock()
	info, ok := g.health[p.Name()]
	g.healthMu.RUnlock()

	if ok && time.Since(info.CheckedAt) < g.healthWindow {
		return info
	}

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	start := time.Now()
	status, err := p.CheckHealth(probeCtx)
	info = HealthInfo{
		Provider:  p.Name(),
		Status:    status,
		CheckedAt: time.Now(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		info.Error = err.Error()
	}

	g.healthMu.Lock()
	g.health[p.Name()] = info
	g.healthMu.Unlock()

	return info
}

// markUnavailable overwrites the cached health after a failed generation so
// subsequent selections within the window skip the provider.
func (g *Gateway) markUnavailable(name string, err error) {
	g.healthMu.Lock()
	defer g.healthMu.Unlock()
	g.health[name] = HealthInfo{
		Provider:  name,
		Status:    StatusUnavailable,
		CheckedAt: time.Now(),
		Error:     err.Error(),
	}
}

// GetProvider walks the preference order and returns the first provider
// whose cached health is available. Rate-limited providers are skipped
// with a warning, unavailable ones silently.
func (g *Gateway) GetProvider(ctx context.Context) (Provider, error) {
	for _, p := range g.providers {
		info := g.providerHealth(ctx, p)
		switch info.Status {
		case StatusAvailable:
			return p, nil
		case StatusRateLimited:
			logger.Warn("[Gateway] Provider rate limited, skipping", "provider", p.Name())
		}
	}
	return nil, ErrNoProviderAvailable
}

// GenerateChat generates a chat completion via the first available
// provider, escalating through the remaining configured providers once
// each on failure. It returns the answer and the name of the provider
// that produced it. Cancellation stops the failover chain immediately.
func (g *Gateway) GenerateChat(
	ctx context.Context,
	messages []ChatMessage,
	opts ...GenerateOption,
) (string, string, error) {
	return generateFailover(ctx, g, func(ctx context.Context, p Provider) (string, error) {
		return p.GenerateChat(ctx, messages, opts...)
	})
}

// GenerateEmbedding creates an embedding via the first available provider
// with the same failover behavior as GenerateChat.
func (g *Gateway) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, string, error) {
	return generateFailover(ctx, g, func(ctx context.Context, p Provider) ([]float32, error) {
		return p.GenerateEmbedding(ctx, input)
	})
}

func generateFailover[T any](
	ctx context.Context,
	g *Gateway,
	call func(context.Context, Provider) (T, error),
) (T, string, error) {
	var zero T

	primary, err := g.GetProvider(ctx)
	if err != nil {
		g.countFailure()
		return zero, "", err
	}

	// Routing around an unhealthy primary counts as a fallback even though
	// no call to the primary was attempted.
	if len(g.providers) > 0 && primary.Name() != g.providers[0].Name() {
		g.countFallback()
	}

	tried := map[string]bool{}
	var lastErr error

	for attempt, p := 0, primary; p != nil; attempt++ {
		tried[p.Name()] = true
		g.countRequest(p.Name())

		result, err := call(ctx, p)
		if err == nil {
			return result, p.Name(), nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, "", err
		}

		logger.Warn("[Gateway] Provider call failed", "provider", p.Name(), "err", err)
		g.markUnavailable(p.Name(), err)

		p = g.nextUntried(tried)
		if p != nil {
			g.countFallback()
			logger.Info("[Gateway] Falling back", "provider", p.Name())
		}
	}

	g.countFailure()
	return zero, "", fmt.Errorf("%w: %w", ErrNoProviderAvailable, lastErr)
}

// nextUntried returns the first configured provider not yet attempted in
// this request, regardless of cached health. A provider that just failed a
// health probe may still succeed on the actual call.
func (g *Gateway) nextUntried(tried map[string]bool) Provider {
	for _, p := range g.providers {
		if !tried[p.Name()] {
			return p
		}
	}
	return nil
}

func (g *Gateway) countRequest(name string) {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	g.requests[name]++
}

func (g *Gateway) countFallback() {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	g.fallbacks++
}

func (g *Gateway) countFailure() {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	g.failures++
}

// Stats returns a copy of the gateway's running counters.
func (g *Gateway) Stats() GatewayStats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()

	requests := make(map[string]int64, len(g.requests))
	for name, count := range g.requests {
		requests[name] = count
	}
	return GatewayStats{
		Requests:  requests,
		Fallbacks: g.fallbacks,
		Failures:  g.failures,
	}
}

// Health returns the current cached health of every configured provider,
// probing entries whose cache window has expired.
func (g *Gateway) Health(ctx context.Context) []HealthInfo {
	out := make([]HealthInfo, 0, len(g.providers))
	for _, p := range g.providers {
		out = append(out, g.providerHealth(ctx, p))
	}
	return out
}
