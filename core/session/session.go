package session

import (
	"fmt"

	"github.com/unihub/campus/core/user"
)

// ClaimState is the verification state of the provider-trusted admin claim.
// It distinguishes "not yet checked" and "verification in flight" from a
// checked false, so a session can never look privileged by default.
type ClaimState struct {
	kind  claimKind
	admin bool
}

type claimKind int

const (
	claimNotChecked claimKind = iota
	claimPending
	claimVerified
)

func ClaimNotChecked() ClaimState    { return ClaimState{kind: claimNotChecked} }
func ClaimPending() ClaimState       { return ClaimState{kind: claimPending} }
func ClaimVerified(admin bool) ClaimState {
	return ClaimState{kind: claimVerified, admin: admin}
}

// Checked reports whether the claim has been read from a token at all.
func (cs ClaimState) Checked() bool { return cs.kind == claimVerified }

// Pending reports whether claim convergence is still in flight.
func (cs ClaimState) Pending() bool { return cs.kind == claimPending }

// Admin reports a verified-true claim. False for NotChecked and Pending.
func (cs ClaimState) Admin() bool { return cs.kind == claimVerified && cs.admin }

func (cs ClaimState) String() string {
	switch cs.kind {
	case claimPending:
		return "pending"
	case claimVerified:
		return fmt.Sprintf("verified(%t)", cs.admin)
	default:
		return "not-checked"
	}
}

// Session is the process-wide authenticated-user state. It is composed from
// the identity provider's report and the profile record, and is only ever
// written by the Manager.
type Session struct {
	UID      string     `json:"uid"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     user.Role  `json:"role"`
	Claim    ClaimState `json:"-"`
	PhotoURL string     `json:"photo_url,omitempty"`
}

// IsPrivileged requires both the profile-declared admin role and a
// verified-true provider claim. An admin whose claim has not converged yet
// is not privileged.
func (s Session) IsPrivileged() bool {
	return s.Role == user.RoleAdmin && s.Claim.Admin()
}

// AuthStateError reports a failed or inconsistent session resolution:
// profile fetch failure, a missing record or one failing schema validation.
// It always coincides with a cleared session.
type AuthStateError struct {
	UID string
	Err error
}

func (e *AuthStateError) Error() string {
	return fmt.Sprintf("auth state error for %s: %v", e.UID, e.Err)
}

func (e *AuthStateError) Cause() error  { return e.Err }
func (e *AuthStateError) Unwrap() error { return e.Err }
