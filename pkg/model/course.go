package model

// CourseStatus is the booking lifecycle status. Transitions are closed over
// CanTransition; terminal statuses are immutable.
type CourseStatus string

const (
	CoursePending   CourseStatus = "PENDING"
	CourseConfirmed CourseStatus = "CONFIRMED"
	CourseRejected  CourseStatus = "REJECTED"
	CourseCancelled CourseStatus = "CANCELLED"
	CourseCompleted CourseStatus = "COMPLETED"
)

func (s CourseStatus) Valid() bool {
	switch s {
	case CoursePending, CourseConfirmed, CourseRejected, CourseCancelled, CourseCompleted:
		return true
	}
	return false
}

func (s CourseStatus) Terminal() bool {
	switch s {
	case CourseRejected, CourseCancelled, CourseCompleted:
		return true
	}
	return false
}

func (s CourseStatus) CanTransition(to CourseStatus) bool {
	switch s {
	case CoursePending:
		return to == CourseConfirmed || to == CourseRejected || to == CourseCancelled
	case CourseConfirmed:
		return to == CourseCompleted || to == CourseCancelled
	default:
		return false
	}
}

// NonTerminalCourseStatuses is the set of statuses that hold a slot
// reservation. Used by overlap queries.
var NonTerminalCourseStatuses = []CourseStatus{CoursePending, CourseConfirmed}

// Course is a single training-session booking of a coach, a table and a
// time slot by a student.
type Course struct {
	ID           string       `json:"id,omitempty" bson:"_id,omitempty"`
	CoachID      string       `json:"coach_id" bson:"coach_id"`
	StudentID    string       `json:"student_id" bson:"student_id"`
	CampusID     string       `json:"campus_id" bson:"campus_id"`
	TableID      string       `json:"table_id" bson:"table_id"`
	StartTime    DateTime     `json:"start_time" bson:"start_time"`
	EndTime      DateTime     `json:"end_time" bson:"end_time"`
	Fee          Amount       `json:"fee" bson:"fee_minor"`
	Status       CourseStatus `json:"status" bson:"status"`
	CancelReason string       `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CancelledBy  string       `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelledAt  *DateTime    `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	ChargedAt    *DateTime    `json:"charged_at,omitempty" bson:"charged_at,omitempty"`
	CreatedAt    DateTime     `json:"created_at" bson:"created_at"`
	UpdatedAt    DateTime     `json:"updated_at" bson:"updated_at"`
}

// Charged reports whether the course fee has been captured from the
// student's balance. Refunds on cancellation apply only to charged courses.
func (c *Course) Charged() bool {
	return c.ChargedAt != nil && !c.ChargedAt.IsZero()
}
