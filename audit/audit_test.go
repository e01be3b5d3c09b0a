package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublish_NilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish(Event{RequestID: "r1"})
	})
}

func TestPublish_NilConnectionIsSafe(t *testing.T) {
	p := NewPublisher(nil, "", nil)
	assert.NotPanics(t, func() {
		p.Publish(Event{RequestID: "r1", Timestamp: time.Now()})
	})
}

func TestNewPublisher_DefaultSubject(t *testing.T) {
	p := NewPublisher(nil, "", nil)
	assert.Equal(t, DefaultSubject, p.subject)

	p = NewPublisher(nil, "custom.subject", nil)
	assert.Equal(t, "custom.subject", p.subject)
}
