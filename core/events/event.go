package events

// Event represents a structured outcome emitted by the access-control core:
// a policy admission (pap.AdmissionEvent) or a rendered decision
// (pdp.DecisionEvent).
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. audit log
// shippers, SIEM ingestion).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
