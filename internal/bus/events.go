package bus

import (
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

// HealthChangedEvent fires whenever the Health Prober reclassifies an
// exchange adapter's HealthStatus, carrying the full snapshot so subscribers
// never need a back-reference to the prober.
type HealthChangedEvent struct {
	ExchangeID string               `json:"exchange_id"`
	Previous   domain.HealthStatus  `json:"previous"`
	Current    domain.ExchangeHealth `json:"current"`
	At         time.Time            `json:"at"`
}

func (HealthChangedEvent) RoutingKey() string { return TopicHealthChanged }

// FailoverTriggeredEvent fires whenever the Failover Controller changes
// which exchange is primary.
type FailoverTriggeredEvent struct {
	FromExchangeID string               `json:"from_exchange_id"`
	ToExchangeID   string               `json:"to_exchange_id"`
	Reason         domain.FailoverReason `json:"reason"`
	At             time.Time            `json:"at"`
}

func (FailoverTriggeredEvent) RoutingKey() string { return TopicFailoverTriggered }

// CircuitChangedEvent fires on every circuit breaker state transition.
type CircuitChangedEvent struct {
	Name     string              `json:"name"` // adapter/namespace the breaker guards
	Previous domain.CircuitState `json:"previous"`
	Current  domain.CircuitState `json:"current"`
	At       time.Time           `json:"at"`
}

func (CircuitChangedEvent) RoutingKey() string { return TopicCircuitChanged }
