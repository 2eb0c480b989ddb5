//go:build free

package license

import (
	"crypto/ed25519"
	"time"

	licerr "cicadagallery/internal/errors"
)

const premiumBuild = false

// Edition names this build variant.
const Edition = "free"

// Verify always fails in the free edition.
func Verify(rec Record, key ed25519.PublicKey, expectedProductID string) error {
	return licerr.ErrPremiumUnavailable
}

// VerifyAt always fails in the free edition.
func VerifyAt(rec Record, key ed25519.PublicKey, expectedProductID string, now time.Time) error {
	return licerr.ErrPremiumUnavailable
}
