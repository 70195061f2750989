package auth

// Operation is a guarded action on a module.
type Operation string

const (
	OpClaimModule     Operation = "module:claim"
	OpViewModule      Operation = "module:view"
	OpSetPinState     Operation = "pin:set_state"
	OpConfigurePins   Operation = "pin:configure"
	OpManageGroups    Operation = "group:manage"
	OpManageRoles     Operation = "role:manage"
	OpCalibrateSensor Operation = "sensor:calibrate"
	OpViewAudit       Operation = "audit:view"
)

// capabilities is the single role x operation matrix. Claiming is not
// listed: it is open to any authenticated user on an unclaimed module.
var capabilities = map[Operation][]Role{
	OpViewModule:      {RoleOwner, RoleProgrammer, RoleOperator, RoleViewer},
	OpSetPinState:     {RoleOwner, RoleOperator},
	OpConfigurePins:   {RoleOwner},
	OpManageGroups:    {RoleOwner},
	OpManageRoles:     {RoleOwner},
	OpCalibrateSensor: {RoleOwner, RoleProgrammer},
	OpViewAudit:       {RoleOwner},
}

// Allowed reports whether role may perform op.
func Allowed(role Role, op Operation) bool {
	for _, r := range capabilities[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Operations returns every operation role may perform, for display.
func Operations(role Role) []Operation {
	var ops []Operation
	for _, op := range []Operation{
		OpViewModule, OpSetPinState, OpConfigurePins,
		OpManageGroups, OpManageRoles, OpCalibrateSensor, OpViewAudit,
	} {
		if Allowed(role, op) {
			ops = append(ops, op)
		}
	}
	return ops
}
