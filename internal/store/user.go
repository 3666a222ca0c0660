package store

import "time"

// Role is the phantom capability tag parameterizing User. It has no
// methods beyond the marker; the type parameter itself is the
// enforcement mechanism: a function that requires User[Authenticated]
// simply cannot be called with a User[Unauthenticated] value, and the
// compiler catches the mistake.
type Role interface {
	isRole()
}

// Unauthenticated is the role of a freshly registered or merely looked
// -up-by-name user: no session has been verified.
type Unauthenticated struct{}

func (Unauthenticated) isRole() {}

// AuthenticatedRole is the role granted by a successful login or a
// verified session token.
type AuthenticatedRole struct{}

func (AuthenticatedRole) isRole() {}

// AdminRole is the role granted only by GetAdmin, after confirming the
// Authenticated user's Admin flag.
type AdminRole struct{}

func (AdminRole) isRole() {}

// User is a single user record qualified by role R. Downgrading role
// is a free reinterpretation of the same fields; upgrading requires a
// Store lookup that verifies credentials.
type User[R Role] struct {
	UserID       int64
	Username     string
	PasswordHash string
	LastLogin    *time.Time
	SessionToken string
	Admin        bool
}

// downgrade reinterprets u under a weaker role. It is unexported:
// callers reach it only through the named conversions below, which
// keep the direction of travel (always weaker) visible at the call
// site.
func downgrade[From, To Role](u User[From]) User[To] {
	return User[To]{
		UserID:       u.UserID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		LastLogin:    u.LastLogin,
		SessionToken: u.SessionToken,
		Admin:        u.Admin,
	}
}

// AsUnauthenticated drops whatever role u currently holds.
func AsUnauthenticated[R Role](u User[R]) User[Unauthenticated] {
	return downgrade[R, Unauthenticated](u)
}

// AsAuthenticated drops an Admin role down to plain Authenticated.
func AsAuthenticated(u User[AdminRole]) User[AuthenticatedRole] {
	return downgrade[AdminRole, AuthenticatedRole](u)
}

// Reinterpret re-tags u under role To. Exported only for the narrow
// case of a Store realization that has already verified the stronger
// capability out of band (e.g. GetAdmin checking the Admin flag on an
// already-Authenticated row) and needs to hand back the stronger tag.
func Reinterpret[From, To Role](u User[From]) User[To] {
	return downgrade[From, To](u)
}
