// Package transport executes SPARQL queries over HTTP against endpoints
// with inconsistent request-shape support.
//
// Public SPARQL endpoints disagree on how they want to receive a query:
// some accept form-encoded POST bodies, some require an explicit
// format=json parameter, and some only behave for GET requests. The
// Client tries each shape in a fixed order and returns the first
// successful response. When every shape fails it returns a StatusError
// carrying a synthetic status code plus the last real HTTP status
// observed, so callers can still distinguish a rate-limited endpoint
// from a broken one.
package transport
