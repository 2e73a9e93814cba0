package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Forwarder delivers one envelope to one endpoint. Implemented by
// internal/forwarder.Forwarder; declared here to avoid a dependency from
// the router package on the forwarder's HTTP/circuit-breaker machinery.
type Forwarder interface {
	Forward(ctx context.Context, endpoint, deliveryID string, body []byte) error
}

// Router looks up routes for incoming Gateway events, builds envelopes,
// and dispatches them to the Forwarder without blocking its caller. Fan-
// out concurrency is bounded so a burst of events cannot spawn unbounded
// goroutines or HTTP connections.
type Router struct {
	table     *RouteTable
	forwarder Forwarder
	sem       *semaphore.Weighted
	capacity  int64
	stats     Stats
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Router. maxConcurrent bounds the number of forwards
// in flight at once across all endpoints.
func New(table *RouteTable, forwarder Forwarder, maxConcurrent int, logger *slog.Logger) *Router {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Router{
		table:     table,
		forwarder: forwarder,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		capacity:  int64(maxConcurrent),
		logger:    logger,
	}
}

// Start records the context that in-flight forward goroutines run under.
// It deliberately strips ctx's own cancellation (via context.WithoutCancel)
// before deriving r.ctx: ctx is typically a signal.NotifyContext that is
// canceled the instant SIGINT/SIGTERM arrives, and a forward already in
// flight at that instant must still get its full retry/timeout budget
// during the shutdown grace period rather than having its HTTP request
// aborted mid-flight. Only an explicit call to Stop cancels r.ctx; a
// fresh Dispatch call after Stop is still safe (it just fails to acquire
// useful work).
func (r *Router) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
}

// Stop cancels the context in-flight forwards run under, aborting any
// forward still running past the shutdown grace period.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Dispatch looks up eventType's routes, builds one envelope per endpoint,
// and forwards them to the endpoints concurrently. It never blocks: when the
// concurrency bound is already saturated, the job is dropped, logged,
// and counted as failed rather than queued.
func (r *Router) Dispatch(eventType string, data json.RawMessage) {
	r.stats.eventsReceived.Add(1)

	endpoints := r.table.EndpointsFor(eventType)
	if len(endpoints) == 0 {
		return
	}

	now := time.Now()

	for _, endpoint := range endpoints {
		r.stats.routesProcessed.Add(1)

		// Each endpoint gets its own envelope and delivery_id: two
		// sinks receiving the same Gateway event are two independent
		// delivery attempt sequences, not one shared attempt.
		envelope := newEnvelope(eventType, data, now)
		body, err := json.Marshal(envelope)
		if err != nil {
			r.stats.eventsFailed.Add(1)
			r.logger.Error("router: failed to marshal envelope",
				"endpoint", endpoint, "event_type", eventType, "error", err)
			continue
		}

		if !r.sem.TryAcquire(1) {
			r.stats.eventsFailed.Add(1)
			r.logger.Warn("router: dropped forward job, concurrency limit reached",
				"endpoint", endpoint, "event_type", eventType)
			continue
		}

		endpoint := endpoint
		deliveryID := envelope.DeliveryID
		go func() {
			defer r.sem.Release(1)
			ctx := r.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			if err := r.forwarder.Forward(ctx, endpoint, deliveryID, body); err != nil {
				r.stats.eventsFailed.Add(1)
				r.logger.Warn("router: forward failed permanently",
					"endpoint", endpoint, "event_type", eventType, "delivery_id", deliveryID, "error", err)
				return
			}
			r.stats.eventsForwarded.Add(1)
		}()
	}
}

// Snapshot returns the current delivery statistics.
func (r *Router) Snapshot() StatsSnapshot {
	return r.stats.Snapshot()
}

// Drain blocks until every in-flight forward has released the semaphore
// or ctx expires, whichever comes first. The Supervisor uses this with a
// deadline context to bound the shutdown grace period.
func (r *Router) Drain(ctx context.Context) error {
	if err := r.sem.Acquire(ctx, r.capacity); err != nil {
		return err
	}
	r.sem.Release(r.capacity)
	return nil
}
