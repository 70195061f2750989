package module

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/infrastructure/database"
)

// Store persists module aggregates. It is the source of truth; the
// scheduler's in-memory modules are a cache rebuilt from it on restart.
type Store interface {
	// Load returns the module with the given ID or ErrModuleNotFound.
	Load(ctx context.Context, id string) (*Module, error)

	// Save writes the whole aggregate atomically and bumps its Version.
	// Failures wrap ErrStore.
	Save(ctx context.Context, m *Module) error

	// FindUserModules lists the modules userID holds a role on.
	FindUserModules(ctx context.Context, userID string) ([]UserModule, error)

	// List returns every module.
	List(ctx context.Context) ([]*Module, error)

	// Provision inserts a module from the hardware inventory. Existing
	// modules are left alone and created is false.
	Provision(ctx context.Context, m *Module) (created bool, err error)
}

// SQLiteStore implements Store on the schema in migrations/.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store backed by db.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads a module and all of its child rows.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Module, error) {
	var m *Module
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = loadModule(ctx, tx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrModuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: loading module %s: %w", ErrStore, id, err)
	}
	return m, nil
}

// List reads every module ordered by ID.
func (s *SQLiteStore) List(ctx context.Context) ([]*Module, error) {
	var modules []*Module
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		ids, err := queryStrings(ctx, tx, "SELECT id FROM modules ORDER BY id")
		if err != nil {
			return err
		}
		for _, id := range ids {
			m, err := loadModule(ctx, tx, id)
			if err != nil {
				return err
			}
			modules = append(modules, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing modules: %w", ErrStore, err)
	}
	return modules, nil
}

// FindUserModules lists the modules userID holds a role on, ordered by name.
func (s *SQLiteStore) FindUserModules(ctx context.Context, userID string) ([]UserModule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.name, m.description, m.status, r.role,
			(SELECT COUNT(*) FROM pins p WHERE p.module_id = m.id)
		FROM role_assignments r
		JOIN modules m ON m.id = r.module_id
		WHERE r.user_id = ?
		ORDER BY m.name, m.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying user modules: %w", ErrStore, err)
	}
	defer rows.Close()

	result := []UserModule{}
	for rows.Next() {
		var um UserModule
		var status, role string
		if err := rows.Scan(&um.ID, &um.Name, &um.Description, &status, &role, &um.PinCount); err != nil {
			return nil, fmt.Errorf("%w: scanning user module: %w", ErrStore, err)
		}
		um.Status = Status(status)
		um.Role = auth.Role(role)
		result = append(result, um)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating user modules: %w", ErrStore, err)
	}
	return result, nil
}

// Provision inserts m unless a module with its ID already exists.
func (s *SQLiteStore) Provision(ctx context.Context, m *Module) (bool, error) {
	now := time.Now().UTC()
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.MaxPins <= 0 {
		m.MaxPins = DefaultMaxPins
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (id, name, description, status, max_pins, secret_hash, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.Name, m.Description, string(m.Status), m.MaxPins,
		database.NullableString(m.SecretHash), database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("%w: provisioning module %s: %w", ErrStore, m.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return false, nil
	}
	m.CreatedAt, m.UpdatedAt = now, now
	return true, nil
}

// Save rewrites the module row and its children in one transaction. The
// version column guards against writers outside this process.
func (s *SQLiteStore) Save(ctx context.Context, m *Module) error {
	now := time.Now().UTC()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE modules
			SET name = ?, description = ?, status = ?, max_pins = ?, secret_hash = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			m.Name, m.Description, string(m.Status), m.MaxPins, database.NullableString(m.SecretHash),
			database.FormatTime(now), m.ID, m.Version,
		)
		if err != nil {
			return fmt.Errorf("updating module: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
			return fmt.Errorf("module %s changed concurrently or was removed", m.ID)
		}

		for _, table := range []string{"pins", "module_groups", "role_assignments", "calibrations"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE module_id = ?", m.ID); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		if err := insertGroups(ctx, tx, m); err != nil {
			return err
		}
		if err := insertPins(ctx, tx, m); err != nil {
			return err
		}
		if err := insertRoles(ctx, tx, m); err != nil {
			return err
		}
		return insertCalibrations(ctx, tx, m, now)
	})
	if err != nil {
		return fmt.Errorf("%w: saving module %s: %w", ErrStore, m.ID, err)
	}

	m.Version++
	m.UpdatedAt = now
	return nil
}

func insertGroups(ctx context.Context, tx *sql.Tx, m *Module) error {
	for i, g := range m.Groups {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO module_groups (module_id, id, name, name_key, position) VALUES (?, ?, ?, ?, ?)",
			m.ID, g.ID, g.Name, nameKey(g.Name), i,
		); err != nil {
			if database.IsUniqueConstraintError(err) {
				return fmt.Errorf("%w: %q", ErrGroupNameTaken, g.Name)
			}
			return fmt.Errorf("inserting group %s: %w", g.ID, err)
		}
	}
	return nil
}

func insertPins(ctx context.Context, tx *sql.Tx, m *Module) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pins (module_id, id, position, name, description, group_id, state, policy, armed_at, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing pin insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range m.Pins {
		policy, err := automation.MarshalPolicy(p.Policy)
		if err != nil {
			return fmt.Errorf("encoding policy of %s: %w", p.ID, err)
		}
		var armedAt sql.NullString
		if !p.ArmedAt.IsZero() {
			armedAt = sql.NullString{String: database.FormatTime(p.ArmedAt), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, p.ID, i+1, p.Name, p.Description, database.NullableString(p.GroupID),
			string(p.Mode), database.NullableString(string(policy)), armedAt, string(p.Output),
		); err != nil {
			return fmt.Errorf("inserting pin %s: %w", p.ID, err)
		}
	}
	return nil
}

func insertRoles(ctx context.Context, tx *sql.Tx, m *Module) error {
	for _, ra := range m.Roles {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO role_assignments (module_id, user_id, role, granted_by, granted_at) VALUES (?, ?, ?, ?, ?)",
			m.ID, ra.UserID, string(ra.Role), database.NullableString(ra.GrantedBy), database.FormatTime(ra.GrantedAt),
		); err != nil {
			return fmt.Errorf("inserting role for %s: %w", ra.UserID, err)
		}
	}
	return nil
}

func insertCalibrations(ctx context.Context, tx *sql.Tx, m *Module, now time.Time) error {
	for sensorID, c := range m.Calibrations {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO calibrations (module_id, sensor_id, multiplier, offset_val, updated_at) VALUES (?, ?, ?, ?, ?)",
			m.ID, sensorID, c.Multiplier, c.Offset, database.FormatTime(now),
		); err != nil {
			return fmt.Errorf("inserting calibration for %s: %w", sensorID, err)
		}
	}
	return nil
}

func loadModule(ctx context.Context, tx *sql.Tx, id string) (*Module, error) {
	var m Module
	var status, createdAt, updatedAt string
	var secret sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, description, status, max_pins, secret_hash, version, created_at, updated_at
		FROM modules WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Description, &status, &m.MaxPins, &secret, &m.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}
	m.Status = Status(status)
	m.SecretHash = secret.String
	m.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // format is controlled
	m.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // format is controlled

	if err := loadGroups(ctx, tx, &m); err != nil {
		return nil, err
	}
	if err := loadPins(ctx, tx, &m); err != nil {
		return nil, err
	}
	if err := loadRoles(ctx, tx, &m); err != nil {
		return nil, err
	}
	if err := loadCalibrations(ctx, tx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadGroups(ctx context.Context, tx *sql.Tx, m *Module) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, name FROM module_groups WHERE module_id = ? ORDER BY position", m.ID)
	if err != nil {
		return fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	m.Groups = []Group{}
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return fmt.Errorf("scanning group: %w", err)
		}
		m.Groups = append(m.Groups, g)
	}
	return rows.Err()
}

func loadPins(ctx context.Context, tx *sql.Tx, m *Module) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, description, group_id, state, policy, armed_at, output
		FROM pins WHERE module_id = ? ORDER BY position`, m.ID)
	if err != nil {
		return fmt.Errorf("querying pins: %w", err)
	}
	defer rows.Close()

	m.Pins = []Pin{}
	for rows.Next() {
		var p Pin
		var groupID, policy, armedAt sql.NullString
		var state, output string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &groupID, &state, &policy, &armedAt, &output); err != nil {
			return fmt.Errorf("scanning pin: %w", err)
		}
		p.GroupID = groupID.String
		p.Mode = automation.Mode(state)
		p.Output = automation.Output(output)
		if policy.Valid {
			p.Policy, err = automation.UnmarshalPolicy([]byte(policy.String))
			if err != nil {
				return fmt.Errorf("decoding policy of %s: %w", p.ID, err)
			}
		}
		if armedAt.Valid {
			p.ArmedAt, _ = database.ParseTime(armedAt.String) //nolint:errcheck // format is controlled
		}
		m.Pins = append(m.Pins, p)
	}
	return rows.Err()
}

func loadRoles(ctx context.Context, tx *sql.Tx, m *Module) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT user_id, role, granted_by, granted_at FROM role_assignments WHERE module_id = ? ORDER BY granted_at, user_id", m.ID)
	if err != nil {
		return fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	m.Roles = []RoleAssignment{}
	for rows.Next() {
		var ra RoleAssignment
		var role, grantedAt string
		var grantedBy sql.NullString
		if err := rows.Scan(&ra.UserID, &role, &grantedBy, &grantedAt); err != nil {
			return fmt.Errorf("scanning role: %w", err)
		}
		ra.Role = auth.Role(role)
		ra.GrantedBy = grantedBy.String
		ra.GrantedAt, _ = database.ParseTime(grantedAt) //nolint:errcheck // format is controlled
		m.Roles = append(m.Roles, ra)
	}
	return rows.Err()
}

func loadCalibrations(ctx context.Context, tx *sql.Tx, m *Module) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT sensor_id, multiplier, offset_val FROM calibrations WHERE module_id = ?", m.ID)
	if err != nil {
		return fmt.Errorf("querying calibrations: %w", err)
	}
	defer rows.Close()

	m.Calibrations = make(map[string]automation.Calibration)
	for rows.Next() {
		var sensorID string
		var c automation.Calibration
		if err := rows.Scan(&sensorID, &c.Multiplier, &c.Offset); err != nil {
			return fmt.Errorf("scanning calibration: %w", err)
		}
		m.Calibrations[sensorID] = c
	}
	return rows.Err()
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
