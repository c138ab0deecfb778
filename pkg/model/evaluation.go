package model

// Evaluation is post-course feedback. Accepted only for COMPLETED courses
// and only from that course's student or coach.
type Evaluation struct {
	ID         string   `json:"id,omitempty" bson:"_id,omitempty"`
	CourseID   string   `json:"course_id" bson:"course_id"`
	AuthorID   string   `json:"author_id" bson:"author_id"`
	AuthorRole Role     `json:"author_role" bson:"author_role"`
	Rating     int      `json:"rating" bson:"rating"`
	Content    string   `json:"content" bson:"content"`
	CreatedAt  DateTime `json:"created_at" bson:"created_at"`
}
