// Package websocket pushes license events to the desktop frontend.
//
// A Hub owns the connected clients; BindLicenseEvents feeds it
// license:status messages whenever the feature gate changes and
// license:activation messages after every activation attempt, so the
// license screen never has to poll.
package websocket
