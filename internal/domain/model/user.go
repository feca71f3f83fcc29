package model

// Role drives authorization and the score formula.
type Role string

// Roles.
const (
	RoleAdmin Role = "admin"
	// RoleNikita never scores.
	RoleNikita   Role = "nikita"
	RoleSurvivor Role = "survivor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleNikita, RoleSurvivor:
		return true
	}
	return false
}

// ScoresZero reports whether taps by this role are worth nothing.
func (r Role) ScoresZero() bool { return r == RoleNikita }

// User is the public record of a player.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Session is a user together with a bearer token.
type Session struct {
	User
	Token string `json:"token"`
}
