package scheduler

import (
	"fmt"
	"time"

	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
)

// Tx is one operation inside a module's critical section. Module is a
// working copy: changes become visible only if the operation commits.
type Tx struct {
	Module *module.Module
	Now    time.Time

	s       *Scheduler
	changes []change
	dirty   bool
}

// change is a pin transition waiting for commit.
type change struct {
	pinID string
	t     automation.Transition
	cause string
	emit  bool
}

// Input builds the evaluation input for p at tx.Now, with the latest
// calibrated reading when p watches a sensor.
func (tx *Tx) Input(p automation.Policy) automation.Input {
	in := automation.Input{Now: tx.Now, StalenessBound: tx.s.cfg.StalenessBound}
	if tp, ok := p.(automation.ThresholdPolicy); ok {
		if r, found := tx.s.readings.Latest(tp.SensorID); found {
			r.Value = tx.Module.Calibration(tp.SensorID).Apply(r.Value)
			in.Reading = &r
		}
	}
	return in
}

// SetPinState applies a manual command. p is required for auto and
// ignored otherwise. A command always produces a directive, even when the
// output level does not change.
func (tx *Tx) SetPinState(pinID string, mode automation.Mode, p automation.Policy) (automation.Transition, error) {
	pin, err := tx.Module.Pin(pinID)
	if err != nil {
		return automation.Transition{}, err
	}

	var t automation.Transition
	switch mode {
	case automation.ModeOff:
		t = pin.SetOff()
	case automation.ModeOn:
		t = pin.SetOn()
	case automation.ModeAuto:
		t, err = pin.SetAuto(p, tx.Input(p))
		if err != nil {
			return automation.Transition{}, err
		}
	default:
		return automation.Transition{}, fmt.Errorf("%w: %q", automation.ErrInvalidState, mode)
	}

	tx.record(pinID, t, module.CauseCommand, true)
	return t, nil
}

// ReevaluateSensor re-runs every auto pin whose threshold policy watches
// sensorID.
func (tx *Tx) ReevaluateSensor(sensorID string) {
	for i := range tx.Module.Pins {
		pin := &tx.Module.Pins[i]
		if tp, ok := pin.Policy.(automation.ThresholdPolicy); ok && tp.SensorID == sensorID {
			tx.reevaluatePin(pin)
		}
	}
}

func (tx *Tx) reevaluatePin(pin *module.Pin) {
	if pin.Mode != automation.ModeAuto {
		return
	}
	t := pin.Reevaluate(tx.Input(pin.Policy))
	cause := module.CauseAutomation
	if t.Expired {
		cause = module.CauseExpiry
	}
	tx.record(pin.ID, t, cause, t.Changed || t.Expired)
}

func (tx *Tx) record(pinID string, t automation.Transition, cause string, emit bool) {
	tx.changes = append(tx.changes, change{pinID: pinID, t: t, cause: cause, emit: emit})
	if t.Changed || t.Expired || cause == module.CauseCommand {
		tx.dirty = true
	}
}
