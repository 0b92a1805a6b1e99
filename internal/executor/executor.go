// Package executor implements the Resilient Executor: runs an operation
// against the current primary exchange, falling back through the
// registered priority order on failure, with every attempt gated by its
// adapter's circuit breaker.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/atsv3/resilience-core/internal/breaker"
	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/telemetry"
)

// AdapterOrder supplies the ordered list of exchange ids to try, primary
// first, and lets the executor report an adapter failure back into the
// failover election so a run of operation errors against the primary
// provokes the same transition a failed health probe would.
// internal/failover.Controller satisfies this.
type AdapterOrder interface {
	OrderedAdapters() []string
	TriggerFailover(exchangeID string, reason domain.FailoverReason)
}

// Op is a unit of work the executor runs against one adapter id.
type Op func(ctx context.Context, exchangeID string) (any, error)

// Stats is a snapshot of the executor's lifetime counters.
type Stats struct {
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	CircuitOpenCalls int64
	TotalLatency    time.Duration
}

// Executor ties the breaker Manager and the failover-ordered adapter list
// together into the single retry-with-fallback algorithm every caller uses.
type Executor struct {
	breakers *breaker.Manager
	order    AdapterOrder
	log      *slog.Logger
	clock    func() time.Time

	totalCalls, successfulCalls, failedCalls, circuitOpenCalls atomic.Int64
	totalLatencyNs                                              atomic.Int64
}

func New(breakers *breaker.Manager, order AdapterOrder, log *slog.Logger) *Executor {
	return &Executor{breakers: breakers, order: order, log: log, clock: time.Now}
}

// ExecuteWithFailover runs op against the primary adapter, then each
// fallback in priority order, short-circuiting any adapter whose breaker is
// open. If every adapter fails or is circuit-open, it returns defaultReturn
// and domain.ErrNoAvailableExchange.
func (e *Executor) ExecuteWithFailover(ctx context.Context, opName string, op Op, defaultReturn any) (any, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "executor.execute_with_failover")
	defer span.End()
	span.SetAttributes(attribute.String("op", opName))

	start := e.clock()
	e.totalCalls.Add(1)

	ids := e.order.OrderedAdapters()
	if len(ids) == 0 {
		e.failedCalls.Add(1)
		return defaultReturn, domain.ErrNoAvailableExchange
	}

	// attemptedAny tracks whether any adapter's breaker actually let the
	// operation run. If every adapter short-circuited on an open breaker,
	// the whole call classifies as circuit-open, not failed, keeping
	// total_calls == successful_calls + failed_calls + circuit_open_calls
	// true per top-level call rather than per adapter tried.
	attemptedAny := false
	for _, exchangeID := range ids {
		result, err := e.breakers.Execute(opName+"/"+exchangeID, func() (any, error) {
			return op(ctx, exchangeID)
		})
		if err == nil {
			e.successfulCalls.Add(1)
			e.totalLatencyNs.Add(int64(e.clock().Sub(start)))
			return result, nil
		}
		if errors.Is(err, domain.ErrCircuitOpen) {
			e.log.Debug("executor: circuit open, trying next adapter", "op", opName, "exchange_id", exchangeID)
			continue
		}
		attemptedAny = true
		e.log.Warn("executor: adapter call failed, trying next", "op", opName, "exchange_id", exchangeID, "error", err)
		e.order.TriggerFailover(exchangeID, domain.ReasonAPIError)
	}

	e.totalLatencyNs.Add(int64(e.clock().Sub(start)))
	if !attemptedAny {
		e.circuitOpenCalls.Add(1)
	} else {
		e.failedCalls.Add(1)
	}
	return defaultReturn, domain.ErrNoAvailableExchange
}

// RetryPolicy configures ExecuteWithRetry's constant-delay retry loop.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 5 * time.Second}
}

// ExecuteWithRetry wraps ExecuteWithFailover in a constant-delay retry loop:
// each attempt runs the full primary-then-fallback sequence, so a caller
// gets both resilience against a single adapter's transient blips and,
// failing that, another full pass through the priority order on the next
// attempt.
func (e *Executor) ExecuteWithRetry(ctx context.Context, opName string, op Op, policy RetryPolicy, defaultReturn any) (any, error) {
	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return defaultReturn, ctx.Err()
			case <-time.After(policy.Delay):
			}
		}
		result, err := e.ExecuteWithFailover(ctx, opName, op, defaultReturn)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return defaultReturn, lastErr
}

func (e *Executor) Stats() Stats {
	return Stats{
		TotalCalls:       e.totalCalls.Load(),
		SuccessfulCalls:  e.successfulCalls.Load(),
		FailedCalls:      e.failedCalls.Load(),
		CircuitOpenCalls: e.circuitOpenCalls.Load(),
		TotalLatency:     time.Duration(e.totalLatencyNs.Load()),
	}
}
