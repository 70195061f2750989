// Package auth identifies callers and decides what they may do on a module.
//
// Identity: Provider authenticates HS256 bearer tokens (golang-jwt) or a
// username and password verified with Argon2id. Module claim secrets are
// hashed the same way.
//
// Authorisation: roles are per module (owner, programmer, operator,
// viewer). Authorize checks a caller's role against the single capability
// matrix in permissions.go. It is a pure lookup and runs before a module's
// critical section is entered.
package auth
