package automation

import (
	"errors"
	"math"
	"testing"
	"time"
)

// at returns a time on a fixed day at hh:mm in UTC.
func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 1, hh, mm, 0, 0, time.UTC)
}

func atMinute(m int) time.Time {
	return at(m/60, m%60)
}

func TestEvaluate_Duration(t *testing.T) {
	armed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DurationPolicy{Duration: 5000 * time.Millisecond}

	tests := []struct {
		name        string
		elapsed     time.Duration
		wantOutput  Output
		wantExpired bool
	}{
		{"at arm time", 0, OutputOn, false},
		{"just before expiry", 4999 * time.Millisecond, OutputOn, false},
		{"at expiry", 5000 * time.Millisecond, OutputOff, true},
		{"after expiry", time.Minute, OutputOff, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(p, Input{Now: armed.Add(tt.elapsed), ArmedAt: armed})
			if got.Output != tt.wantOutput || got.Expired != tt.wantExpired {
				t.Errorf("Evaluate() = %+v, want output=%s expired=%v", got, tt.wantOutput, tt.wantExpired)
			}
		})
	}
}

func TestEvaluate_Window(t *testing.T) {
	tests := []struct {
		name   string
		policy WindowPolicy
		minute int
		want   Output
	}{
		{"daytime inside", WindowPolicy{540, 1020}, 600, OutputOn},
		{"daytime before", WindowPolicy{540, 1020}, 300, OutputOff},
		{"daytime after", WindowPolicy{540, 1020}, 1021, OutputOff},
		{"daytime start inclusive", WindowPolicy{540, 1020}, 540, OutputOn},
		{"daytime end inclusive", WindowPolicy{540, 1020}, 1020, OutputOn},
		{"overnight at midnight", WindowPolicy{1320, 360}, 0, OutputOn},
		{"overnight late evening", WindowPolicy{1320, 360}, 1380, OutputOn},
		{"overnight midday", WindowPolicy{1320, 360}, 720, OutputOff},
		{"overnight end inclusive", WindowPolicy{1320, 360}, 360, OutputOn},
		{"overnight just after end", WindowPolicy{1320, 360}, 361, OutputOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.policy, Input{Now: atMinute(tt.minute)})
			if got.Output != tt.want {
				t.Errorf("Evaluate(%+v) at minute %d = %s, want %s", tt.policy, tt.minute, got.Output, tt.want)
			}
			if got.Expired || got.Stale {
				t.Errorf("window result flagged %+v", got)
			}
		})
	}
}

func TestEvaluate_WindowUsesLocalTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	p := WindowPolicy{StartMinute: 540, EndMinute: 1020}

	// 08:00 UTC is 10:00 at the site.
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).In(loc)
	if got := Evaluate(p, Input{Now: now}); got.Output != OutputOn {
		t.Errorf("Evaluate() at 10:00 local = %s, want on", got.Output)
	}
}

func TestEvaluate_Threshold(t *testing.T) {
	now := at(12, 0)
	bound := time.Minute
	above := ThresholdPolicy{SensorID: "temp-1", Condition: Above, Threshold: 25.0}
	below := ThresholdPolicy{SensorID: "temp-1", Condition: Below, Threshold: 25.0}

	reading := func(v float64, age time.Duration) *Reading {
		return &Reading{SensorID: "temp-1", Value: v, Timestamp: now.Add(-age)}
	}

	tests := []struct {
		name      string
		policy    ThresholdPolicy
		reading   *Reading
		want      Output
		wantStale bool
	}{
		{"above satisfied", above, reading(26.0, time.Second), OutputOn, false},
		{"above not satisfied", above, reading(24.0, time.Second), OutputOff, false},
		{"above equality", above, reading(25.0, time.Second), OutputOff, false},
		{"below satisfied", below, reading(24.9, time.Second), OutputOn, false},
		{"below equality", below, reading(25.0, time.Second), OutputOff, false},
		{"no reading", above, nil, OutputOff, true},
		{"stale reading", above, reading(26.0, 2*time.Minute), OutputOff, true},
		{"reading at bound", above, reading(26.0, time.Minute), OutputOn, false},
		{"future reading", above, reading(30.0, -time.Hour), OutputOff, true},
		{"other sensor", above, &Reading{SensorID: "temp-2", Value: 30, Timestamp: now}, OutputOff, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.policy, Input{Now: now, Reading: tt.reading, StalenessBound: bound})
			if got.Output != tt.want || got.Stale != tt.wantStale {
				t.Errorf("Evaluate() = %+v, want output=%s stale=%v", got, tt.want, tt.wantStale)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"positive duration", DurationPolicy{Duration: time.Second}, false},
		{"zero duration", DurationPolicy{}, true},
		{"negative duration", DurationPolicy{Duration: -time.Second}, true},
		{"sub-millisecond duration", DurationPolicy{Duration: time.Millisecond + time.Microsecond}, true},
		{"daytime window", WindowPolicy{540, 1020}, false},
		{"overnight window", WindowPolicy{1320, 360}, false},
		{"empty window", WindowPolicy{600, 600}, true},
		{"start out of range", WindowPolicy{-1, 600}, true},
		{"end out of range", WindowPolicy{0, 1440}, true},
		{"threshold", ThresholdPolicy{SensorID: "s", Condition: Below, Threshold: -3}, false},
		{"threshold without sensor", ThresholdPolicy{Condition: Above}, true},
		{"threshold bad condition", ThresholdPolicy{SensorID: "s", Condition: "equal"}, true},
		{"threshold NaN", ThresholdPolicy{SensorID: "s", Condition: Above, Threshold: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("Validate() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestDeadline(t *testing.T) {
	armed := at(8, 0)
	if d, ok := Deadline(DurationPolicy{Duration: time.Hour}, armed); !ok || !d.Equal(at(9, 0)) {
		t.Errorf("Deadline(duration) = %v, %v, want 09:00, true", d, ok)
	}
	if _, ok := Deadline(WindowPolicy{1, 2}, armed); ok {
		t.Error("Deadline(window) ok = true, want false")
	}
}
