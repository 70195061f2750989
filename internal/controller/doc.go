// Package controller is the public entry point for every module operation.
//
// Each operation authenticates the caller through the identity provider,
// authorises the operation against the caller's role on the module, then
// hands the mutation to the scheduler, which applies it inside the
// module's critical section and persists it. Successful mutations are
// appended to the audit log.
//
// The capability check runs twice: once against a snapshot before the
// operation is queued, so denied callers never wait behind other work, and
// again inside the critical section, so a role revoked by an earlier
// queued operation is honoured.
package controller
