package events

// Event represents a structured state change emitted by the sale registry.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (logs, metrics,
// indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Components default to it so event wiring stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
