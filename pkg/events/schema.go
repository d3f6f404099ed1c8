package events

// EventType defines the type of event
type EventType string

const (
	// Case lifecycle events
	EventTypeCaseCreated  EventType = "case.created"
	EventTypeCaseMatched  EventType = "case.matched"
	EventTypeCaseConflict EventType = "case.conflict"
	EventTypeOrphanMerged EventType = "case.orphan_merged"

	// Entity events
	EventTypeEntityLinked EventType = "entity.linked"
)
