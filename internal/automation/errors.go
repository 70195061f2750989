package automation

import "errors"

// Domain errors for the automation package.
//
//	if errors.Is(err, automation.ErrInvalidPolicy) {
//	    // reject the command, nothing was mutated
//	}
var (
	// ErrInvalidPolicy is returned when policy parameters fail validation.
	ErrInvalidPolicy = errors.New("automation: invalid policy parameters")

	// ErrUnknownPolicyKind is returned when decoding a policy of an unsupported kind.
	ErrUnknownPolicyKind = errors.New("automation: unknown policy kind")

	// ErrInvalidState is returned for a pin state outside off, on and auto.
	ErrInvalidState = errors.New("automation: invalid pin state")

	// ErrPolicyRequired is returned when auto mode is requested without a policy.
	ErrPolicyRequired = errors.New("automation: auto mode requires a policy")

	// ErrInvalidCalibration is returned for a zero or non-finite calibration.
	ErrInvalidCalibration = errors.New("automation: invalid calibration")
)
