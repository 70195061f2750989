package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/infrastructure/database"
	_ "github.com/wavehub/pincore/migrations"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

func provisionTestModule(t *testing.T, store *SQLiteStore, id string) *Module {
	t.Helper()

	created, err := store.Provision(context.Background(), &Module{ID: id, Name: "Module " + id, MaxPins: 8})
	if err != nil {
		t.Fatalf("Provision(%s) error = %v", id, err)
	}
	if !created {
		t.Fatalf("Provision(%s) created = false", id)
	}
	m, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", id, err)
	}
	return m
}

func TestSQLiteStore_Provision(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	ctx := context.Background()

	m := provisionTestModule(t, store, "mod-1")
	if m.Status != StatusActive || m.MaxPins != 8 || m.Version != 0 {
		t.Errorf("provisioned module = %+v", m)
	}
	if len(m.Pins) != 0 || len(m.Roles) != 0 {
		t.Errorf("provisioned module should be empty, got %+v", m)
	}

	created, err := store.Provision(ctx, &Module{ID: "mod-1", Name: "Renamed"})
	if err != nil {
		t.Fatalf("second Provision() error = %v", err)
	}
	if created {
		t.Error("second Provision() should not create")
	}
	again, _ := store.Load(ctx, "mod-1")
	if again.Name != "Module mod-1" {
		t.Errorf("existing module overwritten: name = %q", again.Name)
	}
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	ctx := context.Background()
	m := provisionTestModule(t, store, "mod-1")

	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	if err := m.Claim("usr-owner", now); err != nil {
		t.Fatal(err)
	}
	if err := m.AssignRole("usr-op", auth.RoleOperator, "usr-owner", now); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SetPinCount(3); err != nil {
		t.Fatal(err)
	}
	g, err := m.AddGroup("Irrigation")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AssignPinToGroup("mod-1-pin-2", g.ID); err != nil {
		t.Fatal(err)
	}
	m.Pins[0].SetOn()
	threshold := automation.ThresholdPolicy{SensorID: "soil-1", Condition: automation.Below, Threshold: 35.5}
	if _, err := m.Pins[1].SetAuto(threshold, automation.Input{Now: now}); err != nil {
		t.Fatal(err)
	}
	if err := m.SetCalibration("soil-1", automation.Calibration{Multiplier: 1.1, Offset: 0.5}); err != nil {
		t.Fatal(err)
	}

	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if m.Version != 1 {
		t.Errorf("Version after Save = %d, want 1", m.Version)
	}

	got, err := store.Load(ctx, "mod-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Version != 1 || got.Owner() != "usr-owner" {
		t.Errorf("loaded version %d owner %q", got.Version, got.Owner())
	}
	if role, _ := got.RoleOf("usr-op"); role != auth.RoleOperator {
		t.Errorf("RoleOf(usr-op) = %q", role)
	}
	if len(got.Pins) != 3 || got.Pins[2].ID != "mod-1-pin-3" {
		t.Fatalf("loaded pins = %+v", got.Pins)
	}
	if got.Pins[0].Mode != automation.ModeOn || got.Pins[0].Output != automation.OutputOn {
		t.Errorf("pin 1 = %+v", got.Pins[0])
	}
	p2 := got.Pins[1]
	if p2.GroupID != g.ID || p2.Mode != automation.ModeAuto || p2.Policy != threshold || !p2.ArmedAt.Equal(now) {
		t.Errorf("pin 2 = %+v", p2)
	}
	if len(got.Groups) != 1 || got.Groups[0].Name != "Irrigation" {
		t.Errorf("groups = %+v", got.Groups)
	}
	if c := got.Calibration("soil-1"); c.Multiplier != 1.1 || c.Offset != 0.5 {
		t.Errorf("calibration = %+v", c)
	}
}

// TestSQLiteStore_DurationFromClientInput saves a pin armed with a
// duration given in fractional seconds and loads it back.
func TestSQLiteStore_DurationFromClientInput(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	ctx := context.Background()
	m := provisionTestModule(t, store, "mod-1")

	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	if _, err := m.SetPinCount(1); err != nil {
		t.Fatal(err)
	}
	policy, err := automation.Spec{Kind: automation.KindDuration, Value: 1.5, Unit: "seconds"}.Policy()
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if _, err := m.Pins[0].SetAuto(policy, automation.Input{Now: now}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "mod-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Pins[0].Policy != policy {
		t.Errorf("loaded policy = %#v, want %#v", got.Pins[0].Policy, policy)
	}
}

func TestSQLiteStore_SaveVersionConflict(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	ctx := context.Background()
	m := provisionTestModule(t, store, "mod-1")

	stale := m.DeepCopy()
	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	stale.Name = "Stale"
	err := store.Save(ctx, stale)
	if !errors.Is(err, ErrStore) {
		t.Fatalf("stale Save() error = %v, want ErrStore", err)
	}
	if stale.Version != 0 {
		t.Errorf("failed Save bumped version to %d", stale.Version)
	}
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	if _, err := store.Load(context.Background(), "mod-missing"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrModuleNotFound", err)
	}
}

func TestSQLiteStore_FindUserModulesAndList(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	ctx := context.Background()

	a := provisionTestModule(t, store, "mod-a")
	b := provisionTestModule(t, store, "mod-b")
	provisionTestModule(t, store, "mod-c")

	now := time.Now()
	if err := a.Claim("usr-1", now); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SetPinCount(2); err != nil {
		t.Fatal(err)
	}
	if err := b.Claim("usr-2", now); err != nil {
		t.Fatal(err)
	}
	if err := b.AssignRole("usr-1", auth.RoleViewer, "usr-2", now); err != nil {
		t.Fatal(err)
	}
	for _, m := range []*Module{a, b} {
		if err := store.Save(ctx, m); err != nil {
			t.Fatalf("Save(%s) error = %v", m.ID, err)
		}
	}

	got, err := store.FindUserModules(ctx, "usr-1")
	if err != nil {
		t.Fatalf("FindUserModules() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindUserModules() = %+v, want 2 modules", got)
	}
	if got[0].ID != "mod-a" || got[0].Role != auth.RoleOwner || got[0].PinCount != 2 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].ID != "mod-b" || got[1].Role != auth.RoleViewer {
		t.Errorf("second = %+v", got[1])
	}

	none, err := store.FindUserModules(ctx, "usr-nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("FindUserModules(nobody) = %v, %v, want empty", none, err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[2].ID != "mod-c" {
		t.Errorf("List() returned %d modules", len(all))
	}
}
