// Package services implements the business logic behind the local license
// API. Handlers stay thin: they decode requests, call a service and render
// the result.
//
// LicenseService wraps the activation coordinator and the feature gate and
// shapes their state into the domain contracts the frontend consumes,
// localizing every user-facing string. HealthService reports liveness and
// readiness of the desktop backend.
package services
