package model

// RelationStatus is the coach-student pairing approval status.
type RelationStatus string

const (
	RelationPending  RelationStatus = "PENDING"
	RelationApproved RelationStatus = "APPROVED"
	RelationRejected RelationStatus = "REJECTED"
)

func (s RelationStatus) Valid() bool {
	switch s {
	case RelationPending, RelationApproved, RelationRejected:
		return true
	}
	return false
}

func (s RelationStatus) Terminal() bool {
	return s == RelationRejected
}

// SupersededReason marks relations terminated by a coach change rather than
// an explicit coach decision.
const SupersededReason = "superseded"

// Relation is the coach-student application/approval record. At most one
// PENDING or APPROVED relation exists per (coach, student) pair.
type Relation struct {
	ID         string         `json:"id,omitempty" bson:"_id,omitempty"`
	CoachID    string         `json:"coach_id" bson:"coach_id"`
	StudentID  string         `json:"student_id" bson:"student_id"`
	Status     RelationStatus `json:"status" bson:"status"`
	Reason     string         `json:"reason,omitempty" bson:"reason,omitempty"`
	AppliedAt  DateTime       `json:"applied_at" bson:"applied_at"`
	DecidedAt  *DateTime      `json:"decided_at,omitempty" bson:"decided_at,omitempty"`
}
