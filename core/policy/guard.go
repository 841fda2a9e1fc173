// Package policy decides whether a session may enter a role-gated route.
// Evaluation is pure: the decision carries the navigation target, the caller
// performs it. Authorization outcomes never surface as errors.
package policy

import (
	"github.com/unihub/campus/core/session"
	"github.com/unihub/campus/core/user"
)

// State is the evaluation outcome kind.
type State int

const (
	// Loading: session state not yet resolved; the caller should wait,
	// not redirect.
	Loading State = iota
	// Unauthenticated: no session; redirect to the login route.
	Unauthenticated
	// Allowed: render the gated content.
	Allowed
	// Redirecting: authenticated but not entitled; redirect to the
	// decision's target.
	Redirecting
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Allowed:
		return "allowed"
	default:
		return "redirecting"
	}
}

// Decision is a resolved navigation outcome. Redirect is set for
// Unauthenticated and Redirecting.
type Decision struct {
	State    State
	Redirect string
}

// RequireNone gates nothing; any resolved session (or none) passes.
const RequireNone = user.Role("")

const LoginPath = "/login"

// roleHomes maps a session's own role to its home route, used when a
// mismatched (non-admin) gate bounces the user back to their own portal.
var roleHomes = map[user.Role]string{
	user.RoleStudent: "/student/home",
	user.RoleParent:  "/parent/home",
	user.RoleFaculty: "/faculty/home",
	user.RoleAdmin:   "/admin/home",
}

// RoleHome returns the home route for a role, defaulting to the login route
// for unrecognized roles.
func RoleHome(r user.Role) string {
	if home, ok := roleHomes[r]; ok {
		return home
	}
	return LoginPath
}

// Evaluate maps (session, required role) to a decision. Total: it never
// panics, and unknown roles fall through to the unauthenticated path.
// s is nil while signed out; resolved is false while the session manager has
// not yet processed the first identity event.
func Evaluate(s *session.Session, resolved bool, required user.Role) Decision {
	if !resolved {
		return Decision{State: Loading}
	}
	if s == nil {
		return Decision{State: Unauthenticated, Redirect: LoginPath}
	}

	switch required {
	case RequireNone:
		return Decision{State: Allowed}
	case user.RoleAdmin:
		// the admin gate requires both the profile role and the verified
		// provider claim; a pending or failed claim is not enough
		if s.Role == user.RoleAdmin && s.IsPrivileged() {
			return Decision{State: Allowed}
		}
		return Decision{State: Redirecting, Redirect: LoginPath}
	case user.RoleStudent, user.RoleFaculty, user.RoleParent:
		if s.Role == required {
			return Decision{State: Allowed}
		}
		return Decision{State: Redirecting, Redirect: RoleHome(s.Role)}
	default:
		// unrecognized gate: fail closed
		return Decision{State: Redirecting, Redirect: LoginPath}
	}
}
