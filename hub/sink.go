package hub

import (
	"market-chat/domain/event"
)

type EventSink interface {
	Consume(e event.DomainEvent) error
}

// Sink is the per-connection delivery buffer. Consume never blocks the
// publisher: a full buffer drops the push, and the observer reconciles
// through history with its last-seen sequence. At-most-once by construction.
type Sink struct {
	Events chan event.DomainEvent
}

func NewSink(bufferSize int) *Sink {
	return &Sink{Events: make(chan event.DomainEvent, bufferSize)}
}

func (s *Sink) Consume(e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	default:
		return ErrSinkFull
	}
}
