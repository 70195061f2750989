package module

import (
	"context"
	"testing"
	"time"

	"github.com/wavehub/pincore/internal/automation"
)

func TestSQLiteHistoryRepository(t *testing.T) {
	repo := NewSQLiteHistoryRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	entries := []HistoryEntry{
		{ModuleID: "mod-1", PinID: "mod-1-pin-1", State: automation.ModeAuto, Output: automation.OutputOn, Cause: CauseAutomation, CreatedAt: base},
		{ModuleID: "mod-1", PinID: "mod-1-pin-1", State: automation.ModeOff, Output: automation.OutputOff, Cause: CauseExpiry, CreatedAt: base.Add(time.Hour)},
		{ModuleID: "mod-1", PinID: "mod-1-pin-2", State: automation.ModeOn, Output: automation.OutputOn, CreatedAt: base},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := repo.History(ctx, "mod-1", "mod-1-pin-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History() returned %d entries, want 2", len(got))
	}
	if got[0].Cause != CauseExpiry || !got[0].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("newest entry = %+v", got[0])
	}

	limited, err := repo.History(ctx, "mod-1", "mod-1-pin-1", 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("History(limit 1) = %d entries, %v", len(limited), err)
	}

	other, err := repo.History(ctx, "mod-1", "mod-1-pin-2", 10)
	if err != nil {
		t.Fatalf("History(pin 2) error = %v", err)
	}
	if len(other) != 1 || other[0].Cause != CauseCommand {
		t.Errorf("default cause = %+v, want command", other)
	}

	if err := repo.Record(ctx, HistoryEntry{PinID: "x"}); err == nil {
		t.Error("Record() should require a module id")
	}
}
