// Package sparqlgate provides a safety-and-execution gateway for ad-hoc
// SPARQL queries submitted by automated callers (LLM agents) against
// public knowledge-graph endpoints.
//
// # Philosophy: Untrusted Queries, Flaky Endpoints
//
// The normal input is hostile: hallucinated identifiers, missing LIMIT
// clauses, unbounded property paths, queries that will never finish.
// The normal endpoint is slow, rate-limited, and occasionally down.
// SparqlGate sits between the two and guarantees that every request
// comes back as a bounded, structured, machine-actionable result.
//
// # Architecture
//
// The core is a sequential pipeline per query:
//
//	┌──────────────────────────────────────┐
//	│         Pipeline Runner              │  lint → cache → dry-run →
//	│  (state machine, bounded repairs)    │  execute with auto-repair
//	└──────────────────────────────────────┘
//	      ↓ uses                ↓ uses
//	┌───────────────┐    ┌───────────────────┐
//	│ Safety Linter │    │ Transport Executor│  POST/GET request-shape
//	│ (lint)        │    │ (transport)       │  fallback matrix
//	└───────────────┘    └───────────────────┘
//	      ↓ shared              ↓ guarded by
//	┌───────────────┐    ┌───────────────────┐
//	│ TTL Caches    │    │ Rate Throttle     │  per endpoint class
//	│ (pkg/cache)   │    │ (throttle)        │  min gap + backoff
//	└───────────────┘    └───────────────────┘
//
// Supporting packages follow the same conventions used across c360
// services: classified errors (errors), exponential backoff (pkg/retry),
// prometheus metrics (metric), component health (health), structured
// slog logging throughout.
//
// # Package Organization
//
//   - lint: static safety checks and limit rewriting for query text
//   - transport: single-attempt SPARQL execution with shape fallback
//   - throttle: per-endpoint-class pacing and 429 backoff
//   - classify: raw endpoint errors to stable error codes + repair hints
//   - pipeline: the lint → dry-run → execute-with-repair orchestrator
//   - grounding: entity/property text search and schema context lookup
//   - gateway/http: the JSON operation surface exposed to callers
//   - audit: optional NATS publication of query lifecycle events
package sparqlgate
