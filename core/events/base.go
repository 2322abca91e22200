package events

import "time"

// Kind discriminates event types on the intake queue without type switches
// in logging and metrics code.
type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields common to every event. Embed it and construct it
// with NewBase so the timestamp reflects when the event was produced.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
