package notify

import "time"

// EventType names a lifecycle event published to the notification
// pipeline.
type EventType string

const (
	EventCourseBooked    EventType = "course.booked"
	EventCourseConfirmed EventType = "course.confirmed"
	EventCourseRejected  EventType = "course.rejected"
	EventCourseCancelled EventType = "course.cancelled"
	EventCourseCompleted EventType = "course.completed"

	EventRelationApplied    EventType = "relation.applied"
	EventRelationApproved   EventType = "relation.approved"
	EventRelationRejected   EventType = "relation.rejected"
	EventRelationTerminated EventType = "relation.terminated"

	EventTournamentPublished EventType = "tournament.published"
	EventTournamentClosed    EventType = "tournament.registration_closed"
	EventTournamentStarted   EventType = "tournament.started"
	EventTournamentCompleted EventType = "tournament.completed"
	EventTournamentCancelled EventType = "tournament.cancelled"
)

// Event is one outbound notification. EntityID keys the kafka partition
// so events for the same entity stay ordered; Recipients are the user IDs
// to notify.
type Event struct {
	Type       EventType      `json:"type"`
	EntityID   string         `json:"entity_id"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
