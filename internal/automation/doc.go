// Package automation holds the pin state machine and the automation
// policies that drive pins in auto mode.
//
// A pin is off, on or auto. In auto mode it carries exactly one Policy:
//
//   - DurationPolicy: on for a fixed time after arming, then back to off.
//   - WindowPolicy: on while the site's time of day is inside [start, end],
//     wrapping midnight when start > end.
//   - ThresholdPolicy: on while the latest calibrated reading of a sensor is
//     strictly above or below a threshold. Missing or stale readings drive
//     the pin off.
//
// Evaluate is pure. Timers, sensor subscriptions and serialisation belong to
// the scheduler package, which calls Machine.Reevaluate on every tick or
// reading.
//
// Usage:
//
//	spec := automation.Spec{Kind: automation.KindWindow, Start: "09:00", End: "17:00"}
//	policy, err := spec.Policy()
//	if err != nil {
//	    return err // wraps ErrInvalidPolicy
//	}
//	t, err := pin.SetAuto(policy, automation.Input{Now: now})
package automation
