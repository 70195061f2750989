package module

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
)

// Mutations on the aggregate. They validate before changing anything, so
// an error always leaves the module untouched.

// Claim makes userID the owner of an unclaimed module.
func (m *Module) Claim(userID string, now time.Time) error {
	if m.HasOwner() {
		return auth.ErrAlreadyClaimed
	}
	// A previous non-owner assignment for the claimant is superseded.
	m.removeRole(userID)
	m.Roles = append(m.Roles, RoleAssignment{
		UserID:    userID,
		Role:      auth.RoleOwner,
		GrantedBy: userID,
		GrantedAt: now,
	})
	return nil
}

// SetPinCount grows or shrinks the pin list to n. New pins start off with
// a default name. It returns the IDs of removed pins so their timers can be
// cancelled.
func (m *Module) SetPinCount(n int) (removed []string, err error) {
	limit := m.MaxPins
	if limit <= 0 {
		limit = DefaultMaxPins
	}
	if n < 0 || n > limit {
		return nil, fmt.Errorf("%w: %d not in 0-%d", ErrInvalidPinCount, n, limit)
	}

	for i := n; i < len(m.Pins); i++ {
		removed = append(removed, m.Pins[i].ID)
	}
	if n < len(m.Pins) {
		m.Pins = m.Pins[:n:n]
		return removed, nil
	}

	for i := len(m.Pins) + 1; i <= n; i++ {
		m.Pins = append(m.Pins, Pin{
			ID:   PinID(m.ID, i),
			Name: fmt.Sprintf("Pin %d", i),
			Machine: automation.Machine{
				Mode:   automation.ModeOff,
				Output: automation.OutputOff,
			},
		})
	}
	return nil, nil
}

// AssignPinToGroup sets the pin's group. An empty groupID unassigns it.
func (m *Module) AssignPinToGroup(pinID, groupID string) error {
	pin, err := m.Pin(pinID)
	if err != nil {
		return err
	}
	if groupID != "" {
		if _, err := m.Group(groupID); err != nil {
			return err
		}
	}
	pin.GroupID = groupID
	return nil
}

// RenamePin changes a pin's display name and description.
func (m *Module) RenamePin(pinID, name, description string) error {
	pin, err := m.Pin(pinID)
	if err != nil {
		return err
	}
	name, err = ValidateName(name)
	if err != nil {
		return err
	}
	pin.Name = name
	pin.Description = description
	return nil
}

// AddGroup creates a group with a fresh ID.
func (m *Module) AddGroup(name string) (*Group, error) {
	name, err := m.checkGroupName(name, "")
	if err != nil {
		return nil, err
	}
	m.Groups = append(m.Groups, Group{ID: "grp-" + uuid.NewString(), Name: name})
	return &m.Groups[len(m.Groups)-1], nil
}

// RenameGroup changes a group's name.
func (m *Module) RenameGroup(groupID, name string) error {
	g, err := m.Group(groupID)
	if err != nil {
		return err
	}
	name, err = m.checkGroupName(name, groupID)
	if err != nil {
		return err
	}
	g.Name = name
	return nil
}

// DeleteGroup removes a group and unassigns its pins. Pin states are not
// touched. It returns the IDs of the unassigned pins.
func (m *Module) DeleteGroup(groupID string) ([]string, error) {
	idx := -1
	for i := range m.Groups {
		if m.Groups[i].ID == groupID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}

	var unassigned []string
	for i := range m.Pins {
		if m.Pins[i].GroupID == groupID {
			m.Pins[i].GroupID = ""
			unassigned = append(unassigned, m.Pins[i].ID)
		}
	}
	m.Groups = append(m.Groups[:idx:idx], m.Groups[idx+1:]...)
	return unassigned, nil
}

func (m *Module) checkGroupName(name, exceptID string) (string, error) {
	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	key := nameKey(name)
	for _, g := range m.Groups {
		if g.ID != exceptID && nameKey(g.Name) == key {
			return "", fmt.Errorf("%w: %q", ErrGroupNameTaken, name)
		}
	}
	return name, nil
}

// AssignRole grants or changes a non-owner role. The owner's own
// assignment cannot be changed here.
func (m *Module) AssignRole(userID string, role auth.Role, grantedBy string, now time.Time) error {
	if !auth.IsAssignableRole(role) {
		return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
	}
	if current, ok := m.RoleOf(userID); ok && current == auth.RoleOwner {
		return ErrOwnerImmutable
	}
	for i := range m.Roles {
		if m.Roles[i].UserID == userID {
			m.Roles[i].Role = role
			m.Roles[i].GrantedBy = grantedBy
			m.Roles[i].GrantedAt = now
			return nil
		}
	}
	m.Roles = append(m.Roles, RoleAssignment{UserID: userID, Role: role, GrantedBy: grantedBy, GrantedAt: now})
	return nil
}

// RevokeRole removes a non-owner role.
func (m *Module) RevokeRole(userID string) error {
	current, ok := m.RoleOf(userID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, userID)
	}
	if current == auth.RoleOwner {
		return ErrOwnerImmutable
	}
	m.removeRole(userID)
	return nil
}

func (m *Module) removeRole(userID string) {
	kept := m.Roles[:0:0]
	for _, ra := range m.Roles {
		if ra.UserID != userID {
			kept = append(kept, ra)
		}
	}
	m.Roles = kept
}

// SetCalibration records the calibration for a sensor. The identity
// calibration removes any stored entry.
func (m *Module) SetCalibration(sensorID string, c automation.Calibration) error {
	if sensorID == "" {
		return fmt.Errorf("%w: sensor id is required", automation.ErrInvalidCalibration)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if c == automation.IdentityCalibration {
		delete(m.Calibrations, sensorID)
		return nil
	}
	if m.Calibrations == nil {
		m.Calibrations = make(map[string]automation.Calibration)
	}
	m.Calibrations[sensorID] = c
	return nil
}

// SensorIDs returns the sensors referenced by auto pins' threshold policies.
func (m *Module) SensorIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range m.Pins {
		if tp, ok := p.Policy.(automation.ThresholdPolicy); ok && !seen[tp.SensorID] {
			seen[tp.SensorID] = true
			ids = append(ids, tp.SensorID)
		}
	}
	return ids
}
