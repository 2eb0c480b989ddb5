package license

import (
	"time"
)

// ActivationState is a persisted license after it has been re-verified.
// Only LicenseString is ever written to disk; Err and VerifiedAt are
// recomputed on every load.
type ActivationState struct {
	LicenseString string
	Record        Record
	VerifiedAt    time.Time
	// Err is nil when the license verified, otherwise the verification
	// failure.
	Err error
}

// Valid reports whether the state holds a verified license.
func (s *ActivationState) Valid() bool {
	return s != nil && s.Err == nil
}

// Status is a point-in-time view of the gate.
type Status struct {
	Premium    bool
	Activated  bool
	Reason     error
	Record     *Record
	VerifiedAt time.Time
}

// Capabilities returns the capability set implied by the status.
func (s Status) Capabilities() Capabilities {
	return CapabilitiesFor(s.Premium)
}

func statusFrom(state *ActivationState, premium bool) Status {
	if state == nil {
		return Status{}
	}
	rec := state.Record
	return Status{
		Premium:    premium,
		Activated:  true,
		Reason:     state.Err,
		Record:     &rec,
		VerifiedAt: state.VerifiedAt,
	}
}
