package shared

// Role identifies the coarse account type of an actor.
type Role string

const (
	// RoleAdmin marks back-office administrators.
	RoleAdmin Role = "admin"
	// RoleDistributor marks distributor accounts.
	RoleDistributor Role = "distributor"
)

// Actor is the authenticated principal attached to a request after the
// session and RBAC layers have resolved it.
type Actor struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsDistributor reports whether the actor holds the distributor role.
func (a Actor) IsDistributor() bool {
	return a.Role == RoleDistributor
}
