package auth

import "fmt"

// Membership is the view of a module the guard needs.
type Membership interface {
	RoleOf(userID string) (Role, bool)
	HasOwner() bool
}

// Authorize decides whether userID may perform op on m. It is a pure
// lookup against the capability matrix and never blocks.
//
// Claiming requires only that the module has no owner. Every other
// operation requires a role assignment (ErrNotAMember) that the matrix
// permits (ErrInsufficientRole).
func Authorize(m Membership, userID string, op Operation) error {
	if op == OpClaimModule {
		if m.HasOwner() {
			return ErrAlreadyClaimed
		}
		return nil
	}

	role, ok := m.RoleOf(userID)
	if !ok {
		return ErrNotAMember
	}
	if !Allowed(role, op) {
		return fmt.Errorf("%w: %s cannot %s", ErrInsufficientRole, role, op)
	}
	return nil
}
