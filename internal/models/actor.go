package models

// Role is the authorization scope of a requester.
type Role string

const (
	RoleStudent  Role = "student"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Actor identifies who is performing an operation. Room is the operator's
// assigned room and is empty for students and admins.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Room string `json:"room,omitempty"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsOperator reports whether the actor holds the operator role.
func (a Actor) IsOperator() bool {
	return a.Role == RoleOperator
}

// CanOperate reports whether the actor may drive lifecycle transitions for
// a company in the given room. Admins operate anywhere; operators only in
// their assigned room.
func (a Actor) CanOperate(room string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.IsOperator() && a.Room == room
}
