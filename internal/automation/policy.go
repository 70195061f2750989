package automation

import (
	"fmt"
	"math"
	"time"
)

// PolicyKind identifies an AutomationPolicy variant.
type PolicyKind string

const (
	KindDuration        PolicyKind = "duration"
	KindWindow          PolicyKind = "window"
	KindSensorThreshold PolicyKind = "sensor"
)

// Condition is the comparison used by a sensor threshold policy.
type Condition string

const (
	Above Condition = "above"
	Below Condition = "below"
)

// MinutesPerDay bounds window start and end minutes.
const MinutesPerDay = 24 * 60

// Policy is the closed set of automation policies a pin can run in auto mode.
// The only implementations are DurationPolicy, WindowPolicy and
// ThresholdPolicy.
type Policy interface {
	Kind() PolicyKind
	Validate() error
	policy()
}

// DurationPolicy drives the output on from the moment it is armed and off
// once Duration has elapsed.
type DurationPolicy struct {
	Duration time.Duration
}

// WindowPolicy drives the output on while the time of day lies within
// [StartMinute, EndMinute]. A start after the end wraps past midnight.
type WindowPolicy struct {
	StartMinute int
	EndMinute   int
}

// ThresholdPolicy drives the output on while the latest calibrated reading
// of SensorID is strictly above or below Threshold.
type ThresholdPolicy struct {
	SensorID  string
	Condition Condition
	Threshold float64
}

func (DurationPolicy) Kind() PolicyKind  { return KindDuration }
func (WindowPolicy) Kind() PolicyKind    { return KindWindow }
func (ThresholdPolicy) Kind() PolicyKind { return KindSensorThreshold }

func (DurationPolicy) policy()  {}
func (WindowPolicy) policy()    {}
func (ThresholdPolicy) policy() {}

// Validate checks the duration is a positive whole number of
// milliseconds.
func (p DurationPolicy) Validate() error {
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidPolicy)
	}
	if p.Duration%time.Millisecond != 0 {
		return fmt.Errorf("%w: duration %v is not a whole number of milliseconds", ErrInvalidPolicy, p.Duration)
	}
	return nil
}

// Validate checks both bounds are minutes of the day and differ.
func (p WindowPolicy) Validate() error {
	if p.StartMinute < 0 || p.StartMinute >= MinutesPerDay {
		return fmt.Errorf("%w: start minute %d out of range 0-%d", ErrInvalidPolicy, p.StartMinute, MinutesPerDay-1)
	}
	if p.EndMinute < 0 || p.EndMinute >= MinutesPerDay {
		return fmt.Errorf("%w: end minute %d out of range 0-%d", ErrInvalidPolicy, p.EndMinute, MinutesPerDay-1)
	}
	if p.StartMinute == p.EndMinute {
		return fmt.Errorf("%w: window start and end must differ", ErrInvalidPolicy)
	}
	return nil
}

// Validate checks the sensor, condition and threshold.
func (p ThresholdPolicy) Validate() error {
	if p.SensorID == "" {
		return fmt.Errorf("%w: sensor id is required", ErrInvalidPolicy)
	}
	if p.Condition != Above && p.Condition != Below {
		return fmt.Errorf("%w: condition must be %q or %q", ErrInvalidPolicy, Above, Below)
	}
	if math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be a finite number", ErrInvalidPolicy)
	}
	return nil
}

// Contains reports whether minute of day m lies inside the window.
// Both ends are inclusive.
func (p WindowPolicy) Contains(m int) bool {
	if p.StartMinute <= p.EndMinute {
		return m >= p.StartMinute && m <= p.EndMinute
	}
	return m >= p.StartMinute || m <= p.EndMinute
}

// Satisfied reports whether value meets the condition. Equality never does.
func (p ThresholdPolicy) Satisfied(value float64) bool {
	switch p.Condition {
	case Above:
		return value > p.Threshold
	case Below:
		return value < p.Threshold
	default:
		return false
	}
}

// Input is everything a policy may look at when evaluated.
type Input struct {
	// Now is the wall-clock time in the site timezone.
	Now time.Time

	// ArmedAt is when the policy was armed on the pin.
	ArmedAt time.Time

	// Reading is the latest calibrated reading for the policy's sensor, if any.
	Reading *Reading

	// StalenessBound is the maximum reading age accepted by threshold policies.
	StalenessBound time.Duration
}

// Result is the outcome of evaluating a policy.
type Result struct {
	Output Output

	// Expired is set once a duration policy has run its course.
	Expired bool

	// Stale is set when a threshold policy had no fresh reading.
	Stale bool
}

// Evaluate maps a policy and its input to the desired output. It is pure:
// the same input always produces the same result.
func Evaluate(p Policy, in Input) Result {
	switch p := p.(type) {
	case DurationPolicy:
		if in.Now.Sub(in.ArmedAt) < p.Duration {
			return Result{Output: OutputOn}
		}
		return Result{Output: OutputOff, Expired: true}

	case WindowPolicy:
		if p.Contains(MinuteOfDay(in.Now)) {
			return Result{Output: OutputOn}
		}
		return Result{Output: OutputOff}

	case ThresholdPolicy:
		r := in.Reading
		if r == nil || r.SensorID != p.SensorID || r.IsStale(in.Now, in.StalenessBound) {
			return Result{Output: OutputOff, Stale: true}
		}
		if p.Satisfied(r.Value) {
			return Result{Output: OutputOn}
		}
		return Result{Output: OutputOff}

	default:
		return Result{Output: OutputOff}
	}
}

// Deadline returns when a duration policy armed at armedAt expires.
// ok is false for every other kind.
func Deadline(p Policy, armedAt time.Time) (time.Time, bool) {
	if d, isDuration := p.(DurationPolicy); isDuration {
		return armedAt.Add(d.Duration), true
	}
	return time.Time{}, false
}

// MinuteOfDay returns the minute since local midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
