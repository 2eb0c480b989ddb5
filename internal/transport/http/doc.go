// Package http implements the local license API consumed by the desktop
// frontend. Handlers stay thin: they decode and validate requests, call the
// license service and render JSON or RFC 7807 problem details.
//
// Routes, mounted under /api:
//
//	GET    /license/status     current tier, capabilities and license details
//	POST   /license/activate   exchange order ID and email for a license
//	POST   /license/cancel     abandon a running activation
//	DELETE /license            remove the license from this machine
//	GET    /premium/features   capabilities, premium builds with a license only
//	GET    /health             liveness
//	GET    /health/ready       readiness
//	GET    /version            build information
package http
