package automation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Spec is the wire form of a policy. Durations may be given in
// milliseconds or as a value and unit (hours, minutes, seconds); window
// bounds as minutes of the day or "HH:MM".
type Spec struct {
	Kind PolicyKind `json:"kind"`

	DurationMS int64   `json:"duration_ms,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Unit       string  `json:"unit,omitempty"`

	StartMinute *int   `json:"start_minute,omitempty"`
	EndMinute   *int   `json:"end_minute,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`

	SensorID  string    `json:"sensor_id,omitempty"`
	Condition Condition `json:"condition,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
}

// Policy converts s to a validated Policy.
func (s Spec) Policy() (Policy, error) {
	var p Policy
	switch s.Kind {
	case KindDuration:
		d, err := s.duration()
		if err != nil {
			return nil, err
		}
		p = DurationPolicy{Duration: d}

	case KindWindow:
		start, err := minuteField("start", s.StartMinute, s.Start)
		if err != nil {
			return nil, err
		}
		end, err := minuteField("end", s.EndMinute, s.End)
		if err != nil {
			return nil, err
		}
		p = WindowPolicy{StartMinute: start, EndMinute: end}

	case KindSensorThreshold:
		if s.Threshold == nil {
			return nil, fmt.Errorf("%w: threshold is required", ErrInvalidPolicy)
		}
		p = ThresholdPolicy{
			SensorID:  strings.TrimSpace(s.SensorID),
			Condition: Condition(strings.ToLower(string(s.Condition))),
			Threshold: *s.Threshold,
		}

	default:
		return nil, fmt.Errorf("%w: %w %q", ErrInvalidPolicy, ErrUnknownPolicyKind, s.Kind)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// maxDurationMS is the longest duration representable as a time.Duration.
const maxDurationMS = math.MaxInt64 / int64(time.Millisecond)

// duration returns the requested duration in whole milliseconds, the
// resolution policies are stored at.
func (s Spec) duration() (time.Duration, error) {
	if s.DurationMS != 0 {
		if s.DurationMS > maxDurationMS {
			return 0, fmt.Errorf("%w: duration_ms %d out of range", ErrInvalidPolicy, s.DurationMS)
		}
		return time.Duration(s.DurationMS) * time.Millisecond, nil
	}
	var unit time.Duration
	switch strings.ToLower(s.Unit) {
	case "hours", "hour", "h":
		unit = time.Hour
	case "minutes", "minute", "m":
		unit = time.Minute
	case "seconds", "second", "s":
		unit = time.Second
	default:
		return 0, fmt.Errorf("%w: unknown duration unit %q", ErrInvalidPolicy, s.Unit)
	}

	ms := math.Round(s.Value * float64(unit/time.Millisecond))
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0, fmt.Errorf("%w: duration must be positive", ErrInvalidPolicy)
	case ms >= float64(maxDurationMS):
		return 0, fmt.Errorf("%w: duration %v %s out of range", ErrInvalidPolicy, s.Value, s.Unit)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func minuteField(name string, minute *int, clock string) (int, error) {
	if minute != nil {
		return *minute, nil
	}
	if clock == "" {
		return 0, fmt.Errorf("%w: window %s is required", ErrInvalidPolicy, name)
	}
	return ParseClock(clock)
}

// ParseClock parses "HH:MM" into a minute of the day.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidPolicy, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders a minute of the day as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// SpecOf returns the canonical wire form of p. Nil yields nil.
func SpecOf(p Policy) *Spec {
	switch p := p.(type) {
	case DurationPolicy:
		return &Spec{Kind: KindDuration, DurationMS: p.Duration.Milliseconds()}
	case WindowPolicy:
		start, end := p.StartMinute, p.EndMinute
		return &Spec{
			Kind:        KindWindow,
			StartMinute: &start,
			EndMinute:   &end,
			Start:       FormatClock(start),
			End:         FormatClock(end),
		}
	case ThresholdPolicy:
		threshold := p.Threshold
		return &Spec{Kind: KindSensorThreshold, SensorID: p.SensorID, Condition: p.Condition, Threshold: &threshold}
	default:
		return nil
	}
}

// MarshalPolicy encodes p for storage. A nil policy encodes as nil.
func MarshalPolicy(p Policy) ([]byte, error) {
	spec := SpecOf(p)
	if spec == nil {
		return nil, nil
	}
	return json.Marshal(spec)
}

// UnmarshalPolicy decodes a policy written by MarshalPolicy.
// Empty input yields a nil policy.
func UnmarshalPolicy(data []byte) (Policy, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decoding policy: %w", err)
	}
	return spec.Policy()
}
