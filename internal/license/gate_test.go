//go:build !free

package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licerr "cicadagallery/internal/errors"
)

func TestGate(t *testing.T) {
	signer := newTestSigner(t)
	rec := signer.sign(NewRecord(ProductID, "ORD-1", "a@example.com", time.Now(), time.Time{}))

	tests := []struct {
		name          string
		state         *ActivationState
		wantPremium   bool
		wantActivated bool
	}{
		{"not activated", nil, false, false},
		{"verified license", &ActivationState{LicenseString: Encode(rec), Record: rec}, true, true},
		{"failed verification", &ActivationState{LicenseString: Encode(rec), Record: rec, Err: licerr.ErrLicenseExpired}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.state)

			assert.Equal(t, tt.wantPremium, gate.IsPremium())
			assert.Equal(t, CapabilitiesFor(tt.wantPremium), gate.Capabilities())

			status := gate.Status()
			assert.Equal(t, tt.wantPremium, status.Premium)
			assert.Equal(t, tt.wantActivated, status.Activated)
			if tt.state != nil {
				require.NotNil(t, status.Record)
				assert.Equal(t, "ORD-1", status.Record.OrderID)
				assert.Equal(t, tt.state.Err, status.Reason)
			}
		})
	}
}

func TestGate_RefreshNotifiesListeners(t *testing.T) {
	signer := newTestSigner(t)
	rec := signer.sign(NewRecord(ProductID, "ORD-1", "a@example.com", time.Now(), time.Time{}))
	gate := NewGate(nil)

	var seen []bool
	gate.OnChange(func(s Status) { seen = append(seen, s.Premium) })
	gate.OnChange(func(s Status) {
		// Listeners may read the gate without deadlocking.
		assert.Equal(t, s.Premium, gate.IsPremium())
	})

	gate.refresh(&ActivationState{Record: rec})
	gate.refresh(nil)

	assert.Equal(t, []bool{true, false}, seen)
}

func TestGate_ListenerAddedDuringNotify(t *testing.T) {
	signer := newTestSigner(t)
	rec := signer.sign(NewRecord(ProductID, "ORD-1", "a@example.com", time.Now(), time.Time{}))
	gate := NewGate(nil)

	var late int
	var once bool
	gate.OnChange(func(Status) {
		if !once {
			once = true
			gate.OnChange(func(Status) { late++ })
		}
	})

	gate.refresh(&ActivationState{Record: rec})
	assert.Zero(t, late, "listeners registered during a notification wait for the next change")

	gate.refresh(nil)
	assert.Equal(t, 1, late)
}
