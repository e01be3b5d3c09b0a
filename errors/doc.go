// Package errors provides standardized error handling for SparqlGate.
//
// Three error classes drive handling decisions across the system:
//
//   - Transient: temporary failures (rate limits, flaky endpoints) that
//     callers may retry with backoff
//   - Invalid: bad input (blocked queries, unknown endpoint classes)
//     that will not succeed on retry
//   - Fatal: unrecoverable conditions (broken configuration) that should
//     stop the component
//
// Use the Wrap* helpers to attach component/operation context while
// classifying:
//
//	if err := transport.Execute(ctx, url, q, timeout); err != nil {
//		return errors.WrapTransient(err, "pipeline", "Run", "execute query")
//	}
//
// IsTransient, IsInvalid, and IsFatal inspect both explicit
// classification and well-known sentinel errors, falling back to
// message-pattern matching for errors from third-party code.
package errors
