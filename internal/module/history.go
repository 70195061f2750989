package module

import (
	"context"
	"fmt"
	"time"

	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/infrastructure/database"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Causes recorded with pin history entries.
const (
	CauseCommand    = "command"
	CauseAutomation = "automation"
	CauseExpiry     = "expiry"
	CauseRestore    = "restore"
)

// HistoryEntry records one output directive sent for a pin.
type HistoryEntry struct {
	ID        int64             `json:"id"`
	ModuleID  string            `json:"module_id"`
	PinID     string            `json:"pin_id"`
	State     automation.Mode   `json:"state"`
	Output    automation.Output `json:"output"`
	Cause     string            `json:"cause"`
	CreatedAt time.Time         `json:"created_at"`
}

// HistoryRepository stores and retrieves pin output history.
type HistoryRepository interface {
	Record(ctx context.Context, e HistoryEntry) error
	History(ctx context.Context, moduleID, pinID string, limit int) ([]HistoryEntry, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the pin_history table.
type SQLiteHistoryRepository struct {
	db *database.DB
}

// NewSQLiteHistoryRepository creates a history repository backed by db.
func NewSQLiteHistoryRepository(db *database.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record appends an entry. A zero CreatedAt is stamped with the current time.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, e HistoryEntry) error {
	if e.ModuleID == "" || e.PinID == "" {
		return fmt.Errorf("module id and pin id are required")
	}
	if e.Cause == "" {
		e.Cause = CauseCommand
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO pin_history (module_id, pin_id, state, output, cause, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ModuleID, e.PinID, string(e.State), string(e.Output), e.Cause, database.FormatTime(e.CreatedAt),
	); err != nil {
		return fmt.Errorf("inserting pin history: %w", err)
	}
	return nil
}

// History returns the newest entries for a pin first. limit defaults to 50
// and is capped at 500.
func (r *SQLiteHistoryRepository) History(ctx context.Context, moduleID, pinID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, module_id, pin_id, state, output, cause, created_at
		FROM pin_history
		WHERE module_id = ? AND pin_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, moduleID, pinID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pin history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var state, output, createdAt string
		if err := rows.Scan(&e.ID, &e.ModuleID, &e.PinID, &state, &output, &e.Cause, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning pin history: %w", err)
		}
		e.State = automation.Mode(state)
		e.Output = automation.Output(output)
		e.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pin history: %w", err)
	}
	return entries, nil
}
