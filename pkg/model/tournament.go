package model

// TournamentStatus is the competition lifecycle status. Transitions are
// forward-only except the admin cancel escape hatch from any non-terminal
// state.
type TournamentStatus string

const (
	TournamentDraft              TournamentStatus = "DRAFT"
	TournamentPublished          TournamentStatus = "PUBLISHED"
	TournamentRegistrationClosed TournamentStatus = "REGISTRATION_CLOSED"
	TournamentInProgress         TournamentStatus = "IN_PROGRESS"
	TournamentCompleted          TournamentStatus = "COMPLETED"
	TournamentCancelled          TournamentStatus = "CANCELLED"
)

func (s TournamentStatus) Valid() bool {
	switch s {
	case TournamentDraft, TournamentPublished, TournamentRegistrationClosed,
		TournamentInProgress, TournamentCompleted, TournamentCancelled:
		return true
	}
	return false
}

func (s TournamentStatus) Terminal() bool {
	return s == TournamentCompleted || s == TournamentCancelled
}

func (s TournamentStatus) CanTransition(to TournamentStatus) bool {
	if s.Terminal() {
		return false
	}
	if to == TournamentCancelled {
		return true
	}
	switch s {
	case TournamentDraft:
		return to == TournamentPublished
	case TournamentPublished:
		return to == TournamentRegistrationClosed
	case TournamentRegistrationClosed:
		return to == TournamentInProgress
	case TournamentInProgress:
		return to == TournamentCompleted
	default:
		return false
	}
}

// RegistrationWindow bounds when enrollment is accepted. Registration is
// open while the tournament is PUBLISHED and now < Close.
type RegistrationWindow struct {
	Open  DateTime `json:"open" bson:"open"`
	Close DateTime `json:"close" bson:"close"`
}

// Tournament is a competitive event with group labels and an enrollment
// window. Participants are stored as Enrollment documents.
type Tournament struct {
	ID                 string             `json:"id,omitempty" bson:"_id,omitempty"`
	CampusID           string             `json:"campus_id" bson:"campus_id"`
	Name               string             `json:"name" bson:"name"`
	Groups             []string           `json:"groups" bson:"groups"`
	EventDate          DateTime           `json:"event_date" bson:"event_date"`
	RegistrationWindow RegistrationWindow `json:"registration_window" bson:"registration_window"`
	Status             TournamentStatus   `json:"status" bson:"status"`
	CreatedBy          string             `json:"created_by" bson:"created_by"`
	CreatedAt          DateTime           `json:"created_at" bson:"created_at"`
	UpdatedAt          DateTime           `json:"updated_at" bson:"updated_at"`
}

// HasGroup reports whether label is one of the tournament's group labels.
func (t *Tournament) HasGroup(label string) bool {
	for _, g := range t.Groups {
		if g == label {
			return true
		}
	}
	return false
}

// Enrollment is one student's registration in one tournament group. A
// unique index on (tournament_id, student_id) rejects duplicates.
type Enrollment struct {
	ID           string   `json:"id,omitempty" bson:"_id,omitempty"`
	TournamentID string   `json:"tournament_id" bson:"tournament_id"`
	StudentID    string   `json:"student_id" bson:"student_id"`
	Group        string   `json:"group" bson:"group"`
	CreatedAt    DateTime `json:"created_at" bson:"created_at"`
}

// MatchStatus tracks a scheduled tournament match.
type MatchStatus string

const (
	MatchPending   MatchStatus = "PENDING"
	MatchCompleted MatchStatus = "COMPLETED"
)

// Match is one scheduled pairing inside a tournament round.
type Match struct {
	ID           string      `json:"id,omitempty" bson:"_id,omitempty"`
	TournamentID string      `json:"tournament_id" bson:"tournament_id"`
	Group        string      `json:"group" bson:"group"`
	Round        int         `json:"round" bson:"round"`
	Player1ID    string      `json:"player1_id" bson:"player1_id"`
	Player2ID    string      `json:"player2_id" bson:"player2_id"`
	WinnerID     string      `json:"winner_id,omitempty" bson:"winner_id,omitempty"`
	Status       MatchStatus `json:"status" bson:"status"`
	StartTime    DateTime    `json:"start_time" bson:"start_time"`
	CreatedAt    DateTime    `json:"created_at" bson:"created_at"`
}
