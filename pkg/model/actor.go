package model

// Role is the caller's role as asserted by the authentication layer in front
// of the core. The core trusts the assertion but performs its own capability
// checks per operation.
type Role string

const (
	RoleStudent     Role = "student"
	RoleCoach       Role = "coach"
	RoleCampusAdmin Role = "campus_admin"
	RoleSuperAdmin  Role = "super_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCoach, RoleCampusAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Actor is the request-scoped identity passed explicitly into every core
// call. The core never reads identity from ambient state.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) Admin() bool {
	return a.Role == RoleCampusAdmin || a.Role == RoleSuperAdmin
}
