package module

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
)

// DefaultMaxPins is the pin capacity of a module when the inventory does
// not say otherwise.
const DefaultMaxPins = 120

// maxNameLength bounds pin and group names.
const maxNameLength = 100

// Status is the lifecycle status of a module.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Module is the aggregate root: a physical controller with its pins,
// groups and per-user roles. It is mutated only inside the scheduler's
// critical section for its ID.
type Module struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	MaxPins     int    `json:"max_pins"`

	// SecretHash is the Argon2id hash of the claim secret. Empty disables
	// the check.
	SecretHash string `json:"-"`

	Pins         []Pin                             `json:"pins"`
	Groups       []Group                           `json:"groups"`
	Roles        []RoleAssignment                  `json:"roles"`
	Calibrations map[string]automation.Calibration `json:"calibrations"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pin is one controllable output. Its embedded Machine holds the mode,
// armed policy and last output.
type Pin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	GroupID     string `json:"group_id,omitempty"`
	automation.Machine
}

// Group is a named collection of pins used for display.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleAssignment grants a user a role on the module.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	Role      auth.Role `json:"role"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// UserModule is a module summary as seen by one of its members.
type UserModule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Role        auth.Role `json:"role"`
	PinCount    int       `json:"pin_count"`
}

// PinID returns the identifier of the n-th pin (1-based) of a module.
func PinID(moduleID string, n int) string {
	return fmt.Sprintf("%s-pin-%d", moduleID, n)
}

// RoleOf returns the role userID holds on the module.
func (m *Module) RoleOf(userID string) (auth.Role, bool) {
	for _, ra := range m.Roles {
		if ra.UserID == userID {
			return ra.Role, true
		}
	}
	return "", false
}

// Owner returns the owner's user ID, or "" when the module is unclaimed.
func (m *Module) Owner() string {
	for _, ra := range m.Roles {
		if ra.Role == auth.RoleOwner {
			return ra.UserID
		}
	}
	return ""
}

// HasOwner reports whether the module has been claimed.
func (m *Module) HasOwner() bool {
	return m.Owner() != ""
}

// Pin returns a pointer to the pin with the given ID.
func (m *Module) Pin(id string) (*Pin, error) {
	for i := range m.Pins {
		if m.Pins[i].ID == id {
			return &m.Pins[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPinNotFound, id)
}

// Group returns the group with the given ID.
func (m *Module) Group(id string) (*Group, error) {
	for i := range m.Groups {
		if m.Groups[i].ID == id {
			return &m.Groups[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
}

// Calibration returns the calibration for sensorID, defaulting to identity.
func (m *Module) Calibration(sensorID string) automation.Calibration {
	if c, ok := m.Calibrations[sensorID]; ok {
		return c
	}
	return automation.IdentityCalibration
}

// Summary returns the module as seen by a member holding role.
func (m *Module) Summary(role auth.Role) UserModule {
	return UserModule{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Status:      m.Status,
		Role:        role,
		PinCount:    len(m.Pins),
	}
}

// DeepCopy returns an independent copy of the module. Policies are
// immutable values and are shared.
func (m *Module) DeepCopy() *Module {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Pins = slices.Clone(m.Pins)
	cp.Groups = slices.Clone(m.Groups)
	cp.Roles = slices.Clone(m.Roles)
	cp.Calibrations = maps.Clone(m.Calibrations)
	return &cp
}

// MarshalJSON renders the pin with its policy in wire form.
func (p Pin) MarshalJSON() ([]byte, error) {
	type pinJSON struct {
		ID          string            `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		GroupID     string            `json:"group_id,omitempty"`
		State       automation.Mode   `json:"state"`
		Policy      *automation.Spec  `json:"policy,omitempty"`
		ArmedAt     *time.Time        `json:"armed_at,omitempty"`
		Output      automation.Output `json:"output"`
	}
	out := pinJSON{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		GroupID:     p.GroupID,
		State:       p.Mode,
		Policy:      automation.SpecOf(p.Policy),
		Output:      p.Output,
	}
	if !p.ArmedAt.IsZero() {
		armed := p.ArmedAt
		out.ArmedAt = &armed
	}
	return json.Marshal(out)
}

// ValidateName trims and checks a pin or group name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return name, nil
}

// nameKey is the case-insensitive comparison key for group names.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
