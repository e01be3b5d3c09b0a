// Package metric provides Prometheus metrics for the query gateway.
//
// Registry wraps a dedicated prometheus.Registry pre-populated with the
// core gateway metrics (query outcomes, lint blocks, repairs, throttle
// state, grounding lookups) plus Go runtime collectors. Components
// register their own collectors through the Registrar interface; the
// component/name pair must be unique so that a misconfigured duplicate
// fails loudly at startup instead of silently double-counting.
//
// Server exposes the registry over HTTP for scraping.
package metric
