package module

import "errors"

// Domain errors for the module package.
//
//	if errors.Is(err, module.ErrModuleNotFound) {
//	    // 404
//	}
var (
	// ErrModuleNotFound is returned when a module ID does not exist.
	ErrModuleNotFound = errors.New("module: not found")

	// ErrPinNotFound is returned when a pin ID does not exist on the module.
	ErrPinNotFound = errors.New("module: pin not found")

	// ErrGroupNotFound is returned when a group ID does not exist on the module.
	ErrGroupNotFound = errors.New("module: group not found")

	// ErrGroupNameTaken is returned when a group name collides, ignoring case.
	ErrGroupNameTaken = errors.New("module: group name already in use")

	// ErrSensorNotFound is returned when a sensor is neither watched nor
	// calibrated on the module and has never reported.
	ErrSensorNotFound = errors.New("module: sensor not found")

	// ErrInvalidName is returned when a pin or group name is empty or too long.
	ErrInvalidName = errors.New("module: invalid name")

	// ErrInvalidPinCount is returned when a pin count is negative or above capacity.
	ErrInvalidPinCount = errors.New("module: invalid pin count")

	// ErrMemberNotFound is returned when revoking a role the user does not hold.
	ErrMemberNotFound = errors.New("module: user has no role on module")

	// ErrOwnerImmutable is returned when role management targets the owner.
	ErrOwnerImmutable = errors.New("module: owner role cannot be changed")

	// ErrStore wraps every persistence failure. The in-memory change that
	// triggered it has been discarded.
	ErrStore = errors.New("module: store error")
)
