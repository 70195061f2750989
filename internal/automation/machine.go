package automation

import (
	"fmt"
	"time"
)

// Mode is the operator-selected state of a pin.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeOn   Mode = "on"
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOff, ModeOn, ModeAuto:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// Output is the physical level driven onto a pin.
type Output string

const (
	OutputOff Output = "off"
	OutputOn  Output = "on"
)

// Machine holds one pin's mode, its armed policy and the last output
// directive. Policy is non-nil exactly when Mode is ModeAuto.
//
// Machine does not own timers. The scheduler arms and cancels them around
// every transition.
type Machine struct {
	Mode    Mode
	Policy  Policy
	ArmedAt time.Time
	Output  Output
}

// Transition describes the effect of applying a command or re-evaluation.
type Transition struct {
	From      Mode
	To        Mode
	Output    Output
	Changed   bool // output level changed
	Expired   bool // a duration policy ran out and the pin reverted to off
	Stale     bool // a threshold policy had no fresh reading
	Rearm     bool // the scheduler must cancel and re-arm the pin's timer
	Disarm    bool // the scheduler must cancel the pin's timer
	Automated bool // produced by policy evaluation rather than a command
}

// SetOff switches the pin off and drops any policy.
func (m *Machine) SetOff() Transition {
	return m.manual(ModeOff, OutputOff)
}

// SetOn switches the pin on and drops any policy.
func (m *Machine) SetOn() Transition {
	return m.manual(ModeOn, OutputOn)
}

func (m *Machine) manual(mode Mode, out Output) Transition {
	t := Transition{From: m.Mode, To: mode, Output: out, Disarm: true}
	t.Changed = m.Output != out
	m.Mode = mode
	m.Policy = nil
	m.ArmedAt = time.Time{}
	m.Output = out
	return t
}

// SetAuto arms p, replacing any previous policy, and evaluates it once.
// A duration policy that has already expired at arm time leaves the pin off.
func (m *Machine) SetAuto(p Policy, in Input) (Transition, error) {
	if p == nil {
		return Transition{}, ErrPolicyRequired
	}
	if err := p.Validate(); err != nil {
		return Transition{}, err
	}

	from := m.Mode
	m.Mode = ModeAuto
	m.Policy = p
	m.ArmedAt = in.Now
	in.ArmedAt = in.Now

	t := m.apply(Evaluate(p, in))
	t.From = from
	t.Automated = false
	if m.Mode == ModeAuto {
		t.Rearm = true
	} else {
		t.Disarm = true
	}
	return t, nil
}

// Reevaluate recomputes the output of an auto pin. It is a no-op for pins
// that are not in auto mode.
func (m *Machine) Reevaluate(in Input) Transition {
	if m.Mode != ModeAuto || m.Policy == nil {
		return Transition{From: m.Mode, To: m.Mode, Output: m.Output}
	}
	in.ArmedAt = m.ArmedAt
	t := m.apply(Evaluate(m.Policy, in))
	if t.Expired {
		t.Disarm = true
	}
	return t
}

// apply records an evaluation result. An expired duration reverts the pin
// to off so it is never re-armed.
func (m *Machine) apply(r Result) Transition {
	t := Transition{
		From:      m.Mode,
		Output:    r.Output,
		Changed:   m.Output != r.Output,
		Stale:     r.Stale,
		Automated: true,
	}
	m.Output = r.Output
	if r.Expired {
		m.Mode = ModeOff
		m.Policy = nil
		m.ArmedAt = time.Time{}
		t.Expired = true
	}
	t.To = m.Mode
	return t
}
