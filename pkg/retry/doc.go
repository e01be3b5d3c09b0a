// Package retry provides exponential backoff retry for operations
// against remote services.
//
// The grounding client uses it to paper over transient lookup-API
// failures; the query pipeline deliberately does NOT use it. Query
// retries are driven by the pipeline's own repair state machine, which
// must mutate the query between attempts rather than replaying it.
//
//	err := retry.Do(ctx, retry.Remote(), func() error {
//		return client.fetch(ctx, params)
//	})
//
// Wrap errors with NonRetryable to abort the loop early for failures
// that will never succeed (bad input, blocked queries).
package retry
