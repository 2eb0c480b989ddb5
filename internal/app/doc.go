// Package app wires the CicadaGallery license backend together.
//
// Startup loads the stored license exactly once, verifies it with the
// embedded key and fixes the feature gate for the rest of the process.
// Only a successful activation through the local API changes the gate.
//
// Routes:
//
//	GET    /api/license/status
//	POST   /api/license/activate
//	POST   /api/license/cancel
//	DELETE /api/license
//	GET    /api/license/ws
//	GET    /api/premium/features
//	GET    /api/health, /api/health/ready, /api/version
//	GET    /metrics
//
// The app never calls os.Exit; errors are returned to main.
package app
