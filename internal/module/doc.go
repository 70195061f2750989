// Package module defines the module aggregate (pins, groups, role
// assignments, sensor calibrations) and its SQLite persistence.
//
// Aggregate methods validate before they mutate, so a failed command never
// leaves a partially applied change. Callers work on a DeepCopy and hand it
// to Store.Save; on ErrStore the copy is discarded.
//
// Pin IDs follow "<module id>-pin-<n>" with n starting at 1. Group names are
// unique per module ignoring case.
package module
