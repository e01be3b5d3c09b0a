// Package pipeline runs queries through the full safety pipeline:
// lint, cache check, dry run, then execution with bounded automatic
// repair.
//
// The Runner is a small state machine. Failed executions are
// classified and, when a repair strategy exists for the failure class,
// a rewritten query is retried. At most two repairs are attempted per
// request, so a query makes no more than three executions regardless
// of outcome. Every applied repair is recorded in an append-only log
// that is returned to the caller verbatim.
package pipeline
