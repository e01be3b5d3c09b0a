// Package audit publishes query audit events to NATS.
//
// Audit publishing is best-effort: a missing or disconnected broker
// must never affect query execution, so publish failures are logged
// and dropped. A nil *Publisher is valid and publishes nothing, which
// keeps call sites free of enablement checks.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject audit events are published on.
const DefaultSubject = "sparqlgate.audit.query"

// Event records the outcome of one query pipeline run. The raw query
// text is deliberately absent; only its hash is carried so audit
// streams do not leak query contents.
type Event struct {
	RequestID      string    `json:"requestId"`
	Timestamp      time.Time `json:"timestamp"`
	EndpointClass  string    `json:"endpointClass"`
	QueryHash      string    `json:"queryHash"`
	OK             bool      `json:"ok"`
	ErrorCode      string    `json:"errorCode,omitempty"`
	Attempts       int       `json:"attempts"`
	RepairsApplied []string  `json:"repairsApplied,omitempty"`
	FromCache      bool      `json:"fromCache"`
	RowCount       int       `json:"rowCount"`
	ElapsedMs      int64     `json:"elapsedMs"`
}

// Publisher sends audit events over an established NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

// NewPublisher wraps an existing connection. A custom subject may be
// given; empty means DefaultSubject.
func NewPublisher(nc *nats.Conn, subject string, log *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{nc: nc, subject: subject, log: log}
}

// Publish sends one event. Failures are logged, never returned.
func (p *Publisher) Publish(event Event) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("audit event marshal failed", "error", err, "request_id", event.RequestID)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.log.Warn("audit event publish failed", "error", err, "request_id", event.RequestID)
	}
}
