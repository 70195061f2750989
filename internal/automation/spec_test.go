package automation

import (
	"errors"
	"testing"
	"time"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestSpec_Policy(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		want    Policy
		wantErr bool
	}{
		{
			name: "duration in milliseconds",
			spec: Spec{Kind: KindDuration, DurationMS: 5000},
			want: DurationPolicy{Duration: 5 * time.Second},
		},
		{
			name: "duration in minutes",
			spec: Spec{Kind: KindDuration, Value: 15, Unit: "minutes"},
			want: DurationPolicy{Duration: 15 * time.Minute},
		},
		{
			name: "duration in fractional hours",
			spec: Spec{Kind: KindDuration, Value: 1.5, Unit: "hours"},
			want: DurationPolicy{Duration: 90 * time.Minute},
		},
		{
			name:    "duration unknown unit",
			spec:    Spec{Kind: KindDuration, Value: 3, Unit: "fortnights"},
			wantErr: true,
		},
		{
			name:    "duration zero",
			spec:    Spec{Kind: KindDuration, Value: 0, Unit: "seconds"},
			wantErr: true,
		},
		{
			name:    "duration below a millisecond",
			spec:    Spec{Kind: KindDuration, Value: 0.0004, Unit: "seconds"},
			wantErr: true,
		},
		{
			name: "duration rounded to whole milliseconds",
			spec: Spec{Kind: KindDuration, Value: 0.0015, Unit: "seconds"},
			want: DurationPolicy{Duration: 2 * time.Millisecond},
		},
		{
			name:    "duration_ms overflows",
			spec:    Spec{Kind: KindDuration, DurationMS: 18446744073710},
			wantErr: true,
		},
		{
			name:    "duration value overflows",
			spec:    Spec{Kind: KindDuration, Value: 1e9, Unit: "hours"},
			wantErr: true,
		},
		{
			name: "window from clock strings",
			spec: Spec{Kind: KindWindow, Start: "22:00", End: "06:00"},
			want: WindowPolicy{StartMinute: 1320, EndMinute: 360},
		},
		{
			name: "window from minutes",
			spec: Spec{Kind: KindWindow, StartMinute: intPtr(0), EndMinute: intPtr(59)},
			want: WindowPolicy{StartMinute: 0, EndMinute: 59},
		},
		{
			name:    "window equal bounds",
			spec:    Spec{Kind: KindWindow, Start: "08:00", End: "08:00"},
			wantErr: true,
		},
		{
			name:    "window bad clock",
			spec:    Spec{Kind: KindWindow, Start: "25:00", End: "08:00"},
			wantErr: true,
		},
		{
			name:    "window missing end",
			spec:    Spec{Kind: KindWindow, Start: "08:00"},
			wantErr: true,
		},
		{
			name: "threshold",
			spec: Spec{Kind: KindSensorThreshold, SensorID: " soil-3 ", Condition: "BELOW", Threshold: floatPtr(30)},
			want: ThresholdPolicy{SensorID: "soil-3", Condition: Below, Threshold: 30},
		},
		{
			name:    "threshold missing value",
			spec:    Spec{Kind: KindSensorThreshold, SensorID: "soil-3", Condition: Below},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			spec:    Spec{Kind: "lunar"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Policy()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPolicy) {
					t.Errorf("Policy() error = %v, want ErrInvalidPolicy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Policy() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Policy() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestPolicyStorage(t *testing.T) {
	policies := []Policy{
		DurationPolicy{Duration: 90 * time.Second},
		WindowPolicy{StartMinute: 1320, EndMinute: 360},
		ThresholdPolicy{SensorID: "hum-2", Condition: Above, Threshold: 61.5},
	}

	for _, p := range policies {
		t.Run(string(p.Kind()), func(t *testing.T) {
			data, err := MarshalPolicy(p)
			if err != nil {
				t.Fatalf("MarshalPolicy() error = %v", err)
			}
			got, err := UnmarshalPolicy(data)
			if err != nil {
				t.Fatalf("UnmarshalPolicy() error = %v", err)
			}
			if got != p {
				t.Errorf("stored policy = %#v, want %#v", got, p)
			}
		})
	}

	if _, err := (Spec{Kind: KindDuration, DurationMS: -1}).Policy(); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("negative duration_ms error = %v, want ErrInvalidPolicy", err)
	}
	if err := (DurationPolicy{Duration: 1500 * time.Microsecond}).Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("sub-millisecond duration Validate() = %v, want ErrInvalidPolicy", err)
	}

	if data, err := MarshalPolicy(nil); err != nil || data != nil {
		t.Errorf("MarshalPolicy(nil) = %q, %v", data, err)
	}
	if p, err := UnmarshalPolicy(nil); err != nil || p != nil {
		t.Errorf("UnmarshalPolicy(nil) = %v, %v", p, err)
	}
}

// TestPolicyStorage_FromSpec stores policies built from client input and
// checks each one loads back unchanged.
func TestPolicyStorage_FromSpec(t *testing.T) {
	specs := []Spec{
		{Kind: KindDuration, Value: 1.5, Unit: "seconds"},
		{Kind: KindDuration, Value: 0.0015, Unit: "seconds"},
		{Kind: KindDuration, Value: 2.25, Unit: "hours"},
		{Kind: KindDuration, DurationMS: maxDurationMS},
	}

	for _, spec := range specs {
		p, err := spec.Policy()
		if err != nil {
			t.Fatalf("Policy(%+v) error = %v", spec, err)
		}
		data, err := MarshalPolicy(p)
		if err != nil {
			t.Fatalf("MarshalPolicy(%v) error = %v", p, err)
		}
		got, err := UnmarshalPolicy(data)
		if err != nil {
			t.Fatalf("UnmarshalPolicy(%s) error = %v", data, err)
		}
		if got != p {
			t.Errorf("stored policy = %#v, want %#v", got, p)
		}
	}
}

func TestClock(t *testing.T) {
	m, err := ParseClock("07:05")
	if err != nil || m != 425 {
		t.Fatalf("ParseClock(07:05) = %d, %v, want 425", m, err)
	}
	if got := FormatClock(1439); got != "23:59" {
		t.Errorf("FormatClock(1439) = %q, want 23:59", got)
	}
}
