package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is a user's authorisation tier on one module.
type Role string

const (
	// RoleOwner claimed the module. Exactly one per claimed module; it is
	// never granted or revoked through role management.
	RoleOwner Role = "owner"

	// RoleProgrammer maintains sensor calibration but does not drive pins.
	RoleProgrammer Role = "programmer"

	// RoleOperator drives pins (on, off, auto).
	RoleOperator Role = "operator"

	// RoleViewer sees pins, groups and metrics only.
	RoleViewer Role = "viewer"
)

// ValidRoles lists every role in descending privilege.
var ValidRoles = []Role{RoleOwner, RoleProgrammer, RoleOperator, RoleViewer}

// AssignableRoles are the roles an owner may grant.
var AssignableRoles = []Role{RoleProgrammer, RoleOperator, RoleViewer}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// IsAssignableRole reports whether r may be granted through role management.
func IsAssignableRole(r Role) bool {
	for _, v := range AssignableRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is an account known to the identity provider.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Credentials is what a caller presents to be identified: either a bearer
// token or a username and password.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// Sentinel errors for auth operations.
var (
	// ErrAuthenticationFailed means the caller could not be identified.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")

	// ErrNotAMember means the caller holds no role on the module.
	ErrNotAMember = errors.New("auth: not a member of module")

	// ErrInsufficientRole means the caller's role does not permit the operation.
	ErrInsufficientRole = errors.New("auth: insufficient role")

	// ErrAlreadyClaimed means the module already has an owner.
	ErrAlreadyClaimed = errors.New("auth: module already claimed")

	// ErrInvalidSecret means the module claim secret did not match.
	ErrInvalidSecret = errors.New("auth: invalid module secret")

	// ErrInvalidRole means the role is unknown or cannot be assigned.
	ErrInvalidRole = errors.New("auth: invalid role")

	// ErrSelfAssignment means a user tried to change their own role.
	ErrSelfAssignment = errors.New("auth: cannot change own role")

	ErrUserNotFound   = errors.New("auth: user not found")
	ErrUserInactive   = errors.New("auth: user account is inactive")
	ErrUsernameExists = errors.New("auth: username already exists")
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrWeakPassword   = errors.New("auth: password too short")
	ErrInvalidUser    = errors.New("auth: invalid username")
)
