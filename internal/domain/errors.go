// Package domain holds the shared data model for the notification pipeline
// and the exchange resilience orchestrator: messages, profiles, rules,
// devices, batches, delivery records and exchange health. Nothing in this
// package talks to a repository, a sink, or the network.
package domain

import "errors"

// Error taxonomy. These are sentinels, not types: callers compare
// with errors.Is and wrap with fmt.Errorf("...: %w", ErrX) for context.
var (
	// ErrConfigInvalid is fatal at startup.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrRepoTransient marks a recorder/user-repo I/O failure eligible for a
	// local retry before the write is dropped with a counter increment.
	ErrRepoTransient = errors.New("repository: transient failure")

	// ErrRepoPermanent marks a schema/authz failure; logged once per
	// interval, never retried.
	ErrRepoPermanent = errors.New("repository: permanent failure")

	// ErrSinkTransient is retried up to retry.attempts with retry.delay backoff.
	ErrSinkTransient = errors.New("sink: transient failure")

	// ErrSinkRateLimited is retried the same as ErrSinkTransient, honoring
	// any sink-provided retry-after delay.
	ErrSinkRateLimited = errors.New("sink: rate limited")

	// ErrSinkPermanent short-circuits retries.
	ErrSinkPermanent = errors.New("sink: permanent failure")

	// ErrInvalidRecipient short-circuits retries; push delivery additionally
	// deactivates the offending device.
	ErrInvalidRecipient = errors.New("sink: invalid recipient")

	// ErrNoAvailableExchange is returned by the resilient executor when every
	// adapter in priority order failed.
	ErrNoAvailableExchange = errors.New("executor: no available exchange")

	// ErrCircuitOpen is returned when the circuit breaker short-circuits a call.
	ErrCircuitOpen = errors.New("circuit breaker: open")
)
