package router

import "sync/atomic"

// Stats accumulates running delivery counters for operator visibility.
// Counters are safe for concurrent use.
type Stats struct {
	eventsReceived  atomic.Int64
	eventsForwarded atomic.Int64
	eventsFailed    atomic.Int64
	routesProcessed atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats' counters.
type StatsSnapshot struct {
	EventsReceived  int64
	EventsForwarded int64
	EventsFailed    int64
	RoutesProcessed int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		EventsReceived:  s.eventsReceived.Load(),
		EventsForwarded: s.eventsForwarded.Load(),
		EventsFailed:    s.eventsFailed.Load(),
		RoutesProcessed: s.routesProcessed.Load(),
	}
}
