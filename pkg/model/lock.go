package model

// SlotLock is an advisory lock document. The unique _id carries the lock
// key; a TTL index on expires_at reclaims locks from crashed holders.
type SlotLock struct {
	ID        string   `bson:"_id"`
	ExpiresAt DateTime `bson:"expires_at"`
	CreatedAt DateTime `bson:"created_at"`
}

// SlotReservation is the durable index entry tying a (coach, table, slot)
// claim to its owning course. A unique index on (coach_id, table_id,
// start_time) is the structural backstop against exact-duplicate inserts;
// overlap queries run against this collection.
type SlotReservation struct {
	ID        string   `bson:"_id,omitempty"`
	CourseID  string   `bson:"course_id"`
	CoachID   string   `bson:"coach_id"`
	TableID   string   `bson:"table_id"`
	StartTime DateTime `bson:"start_time"`
	EndTime   DateTime `bson:"end_time"`
	CreatedAt DateTime `bson:"created_at"`
}
