// Package router owns the event-to-endpoint route table, builds outbound
// envelopes, and fans dispatch events out to the HTTP forwarder under a
// bounded concurrency limit.
package router

import "discord-bridge/internal/config"

// RouteTable resolves a Discord event name to the endpoints configured
// to receive it.
type RouteTable struct {
	routes []config.Route
}

// NewRouteTable builds a RouteTable from configured routes.
func NewRouteTable(routes []config.Route) *RouteTable {
	return &RouteTable{routes: routes}
}

// EndpointsFor returns every endpoint URL registered for eventName across
// all enabled routes.
func (rt *RouteTable) EndpointsFor(eventName string) []string {
	var endpoints []string
	for _, r := range rt.routes {
		if r.Enabled && r.EventName == eventName {
			endpoints = append(endpoints, r.Endpoints...)
		}
	}
	return endpoints
}
