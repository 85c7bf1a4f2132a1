package domain

// Role is the authorization class stored on a profile. The zero value means
// no role has been assigned yet.
type Role string

const (
	RoleNone      Role = ""
	RoleAdmin     Role = "admin"
	RoleReception Role = "reception"
	RoleDoctor    Role = "doctor"
)

var landingPaths = map[Role]string{
	RoleAdmin:     "/admin",
	RoleReception: "/reception",
	RoleDoctor:    "/doctor",
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	_, ok := landingPaths[r]
	return ok
}

// LandingPath returns the area a user with this role is routed to after
// sign-in, or "" when the role is not assignable.
func (r Role) LandingPath() string {
	return landingPaths[r]
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}
