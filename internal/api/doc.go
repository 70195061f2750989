// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - REST endpoints for every module controller operation
//   - A WebSocket hub that streams pin output events per module
//   - Login issuing JWT access tokens, with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// Protected routes take a bearer token or HTTP basic credentials. The
// handler forwards them to the controller, which authenticates the caller
// and checks the module's capability matrix on every operation.
// WebSocket connections use single-use tickets so the token never appears
// in a URL, and a module subscription is accepted only for members.
//
// # Errors
//
// Service errors are mapped to HTTP statuses in errors.go: authentication
// failures 401, role denials 403, conflicts 409, missing entities 404,
// invalid input 400 and store failures 503.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
