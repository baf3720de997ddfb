package ai

import "time"

// ProviderStatus describes the reachability of a single provider.
type ProviderStatus int

const (
	// StatusAvailable means the provider answered its health probe.
	StatusAvailable ProviderStatus = iota
	// StatusRateLimited means the provider is up but rejecting requests
	// with a rate-limit response.
	StatusRateLimited
	// StatusUnavailable means the provider could not be reached or
	// returned a hard error.
	StatusUnavailable
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "unavailable"
	}
}

// HealthInfo is the cached result of a provider health probe. Health is
// inherently approximate, so a stale entry within the cache window is
// served without re-probing.
type HealthInfo struct {
	Provider  string         `json:"provider"`
	Status    ProviderStatus `json:"status"`
	CheckedAt time.Time      `json:"checked_at"`
	LatencyMs int64          `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
}
