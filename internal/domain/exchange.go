package domain

import "time"

// HealthStatus is the coarse classification a Health Prober assigns to an
// exchange adapter on each probe.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
	Unknown   HealthStatus = "unknown"
)

// ExchangeHealth is owned by the Failover Controller and updated only by the
// Health Prober or an explicit trigger_failover call.
type ExchangeHealth struct {
	Status              HealthStatus
	Latency             time.Duration
	ErrorRate           float64
	LastCheck           time.Time
	LastSuccess         time.Time
	ConsecutiveFailures int
	LastError           string
}

// IsAvailable reports whether the exchange may currently serve as primary or
// fallback.
func (h ExchangeHealth) IsAvailable() bool {
	return h.Status == Healthy || h.Status == Degraded
}

// FailoverReason is the closed set of reasons a primary role transition can
// be attributed to.
type FailoverReason string

const (
	ReasonConnectionTimeout  FailoverReason = "connection_timeout"
	ReasonAPIError           FailoverReason = "api_error"
	ReasonRateLimitExceeded  FailoverReason = "rate_limit_exceeded"
	ReasonManualTrigger      FailoverReason = "manual_trigger"
	ReasonHealthCheckFailed  FailoverReason = "health_check_failed"
	ReasonHighLatency        FailoverReason = "high_latency"
	ReasonFailback           FailoverReason = "failback"
)

// CircuitState is the three-state circuit breaker machine. It
// never leaves internal/breaker; this type exists only so other packages can
// name the states in callbacks/logs without importing the breaker internals.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)
