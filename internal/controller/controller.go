package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
)

// Logger is the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives controller counters.
type Metrics interface {
	Operation(op string)
	Denied(op, reason string)
}

type noopMetrics struct{}

func (noopMetrics) Operation(string)      {}
func (noopMetrics) Denied(string, string) {}

// UserDirectory resolves the target of a role assignment.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
	GetByUsername(ctx context.Context, username string) (*auth.User, error)
}

// Deps holds the collaborators of a Controller. Identity, Scheduler and
// Store are required.
type Deps struct {
	Identity  auth.IdentityProvider
	Users     UserDirectory
	Scheduler *scheduler.Scheduler
	Store     module.Store
	History   module.HistoryRepository
	Audit     audit.Repository
	Readings  *automation.ReadingCache
	Metrics   Metrics
	Logger    Logger
}

// Controller implements the module operations.
//
// Thread Safety: all methods are safe for concurrent use.
type Controller struct {
	identity  auth.IdentityProvider
	users     UserDirectory
	scheduler *scheduler.Scheduler
	store     module.Store
	history   module.HistoryRepository
	audit     audit.Repository
	readings  *automation.ReadingCache
	metrics   Metrics
	logger    Logger
}

// New creates a Controller.
func New(deps Deps) *Controller {
	c := &Controller{
		identity:  deps.Identity,
		users:     deps.Users,
		scheduler: deps.Scheduler,
		store:     deps.Store,
		history:   deps.History,
		audit:     deps.Audit,
		readings:  deps.Readings,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if c.readings == nil {
		c.readings = automation.NewReadingCache(1)
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// ModuleView is a module as returned to one of its members.
type ModuleView struct {
	*module.Module
	Role       auth.Role        `json:"role"`
	Operations []auth.Operation `json:"operations"`
}

func viewOf(m *module.Module, userID string) *ModuleView {
	role, _ := m.RoleOf(userID)
	return &ModuleView{Module: m, Role: role, Operations: auth.Operations(role)}
}

// authorize resolves the caller and checks op against the module's last
// committed state. It never queues behind the module's pending work, so
// callers without access are turned away even while the module is busy.
func (c *Controller) authorize(ctx context.Context, creds auth.Credentials, moduleID string, op auth.Operation) (string, *module.Module, error) {
	userID, err := c.identity.Authenticate(ctx, creds)
	if err != nil {
		c.metrics.Denied(string(op), "unauthenticated")
		return "", nil, err
	}

	snap, err := c.scheduler.View(ctx, moduleID)
	if err != nil {
		return "", nil, err
	}
	if err := c.check(snap, userID, op); err != nil {
		return "", nil, err
	}
	return userID, snap, nil
}

func (c *Controller) check(m *module.Module, userID string, op auth.Operation) error {
	err := auth.Authorize(m, userID, op)
	if err != nil {
		c.metrics.Denied(string(op), denialReason(err))
		c.logger.Info("operation denied",
			"module_id", m.ID, "user_id", userID, "operation", op, "error", err)
	}
	return err
}

// mutate runs fn in the module's critical section after re-checking op
// against the state at the head of the queue.
func (c *Controller) mutate(ctx context.Context, userID, moduleID string, op auth.Operation, fn func(tx *scheduler.Tx) error) (*module.Module, error) {
	m, err := c.scheduler.Execute(ctx, moduleID, func(tx *scheduler.Tx) error {
		if err := c.check(tx.Module, userID, op); err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil {
		return nil, err
	}
	c.metrics.Operation(string(op))
	return m, nil
}

// record appends to the audit log. Failures are logged, never returned:
// the mutation has already been committed.
func (c *Controller) record(ctx context.Context, entry audit.AuditLog) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Create(ctx, &entry); err != nil {
		c.logger.Warn("writing audit log failed",
			"action", entry.Action, "module_id", entry.ModuleID, "error", err)
	}
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, auth.ErrInsufficientRole):
		return "insufficient_role"
	case errors.Is(err, auth.ErrAlreadyClaimed):
		return "already_claimed"
	default:
		return "other"
	}
}

// GetModule returns the module with the caller's role and permitted
// operations.
func (c *Controller) GetModule(ctx context.Context, creds auth.Credentials, moduleID string) (*ModuleView, error) {
	userID, snap, err := c.authorize(ctx, creds, moduleID, auth.OpViewModule)
	if err != nil {
		return nil, err
	}
	return viewOf(snap, userID), nil
}

// ListModules returns the modules the caller holds a role on.
func (c *Controller) ListModules(ctx context.Context, creds auth.Credentials) ([]module.UserModule, error) {
	userID, err := c.identity.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	modules, err := c.store.FindUserModules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing modules for %s: %w", userID, err)
	}
	return modules, nil
}

// AuditLog returns the module's audit trail. Owners only.
func (c *Controller) AuditLog(ctx context.Context, creds auth.Credentials, moduleID string, limit, offset int) (*audit.ListResult, error) {
	if _, _, err := c.authorize(ctx, creds, moduleID, auth.OpViewAudit); err != nil {
		return nil, err
	}
	if c.audit == nil {
		return &audit.ListResult{Logs: []audit.AuditLog{}, Limit: limit, Offset: offset}, nil
	}
	return c.audit.List(ctx, audit.Filter{ModuleID: moduleID, Limit: limit, Offset: offset})
}
