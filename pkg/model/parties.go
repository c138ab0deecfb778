package model

// Coach is the bookable party. CurrentStudents is never stored; it is
// derived by counting APPROVED relations at decision time.
type Coach struct {
	ID          string   `json:"id,omitempty" bson:"_id,omitempty"`
	CampusID    string   `json:"campus_id" bson:"campus_id"`
	Name        string   `json:"name" bson:"name"`
	HourlyRate  Amount   `json:"hourly_rate" bson:"hourly_rate_minor"`
	MaxStudents int      `json:"max_students" bson:"max_students"`
	CreatedAt   DateTime `json:"created_at" bson:"created_at"`
}

// Student is the booking party.
type Student struct {
	ID        string   `json:"id,omitempty" bson:"_id,omitempty"`
	CampusID  string   `json:"campus_id" bson:"campus_id"`
	Name      string   `json:"name" bson:"name"`
	CreatedAt DateTime `json:"created_at" bson:"created_at"`
}

// TableStatus marks whether a table can be booked at all. Slot-level
// availability is decided by the reservation index, not this flag.
type TableStatus string

const (
	TableAvailable   TableStatus = "AVAILABLE"
	TableMaintenance TableStatus = "MAINTENANCE"
)

// Table is a physical table at a campus.
type Table struct {
	ID        string      `json:"id,omitempty" bson:"_id,omitempty"`
	CampusID  string      `json:"campus_id" bson:"campus_id"`
	Number    string      `json:"number" bson:"number"`
	Status    TableStatus `json:"status" bson:"status"`
	CreatedAt DateTime    `json:"created_at" bson:"created_at"`
}
