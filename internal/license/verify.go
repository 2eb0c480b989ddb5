//go:build !free

package license

import (
	"crypto/ed25519"
	"fmt"
	"time"

	licerr "cicadagallery/internal/errors"
)

// premiumBuild reports whether this binary can verify licenses.
const premiumBuild = true

// Edition names this build variant.
const Edition = "premium"

// VerificationError describes why a decoded record is not valid. Reason is
// one of licerr.ErrWrongProduct, licerr.ErrLicenseExpired or
// licerr.ErrSignatureMismatch.
type VerificationError struct {
	Reason error
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *VerificationError) Unwrap() error {
	return e.Reason
}

// Verify checks rec against the trusted key at the current wall-clock time.
func Verify(rec Record, key ed25519.PublicKey, expectedProductID string) error {
	return VerifyAt(rec, key, expectedProductID, time.Now())
}

// VerifyAt checks product, then expiry, then signature, and returns the
// first failure. A nil result means the license is valid at now.
func VerifyAt(rec Record, key ed25519.PublicKey, expectedProductID string, now time.Time) error {
	if rec.ProductID != expectedProductID {
		return &VerificationError{
			Reason: licerr.ErrWrongProduct,
			Detail: fmt.Sprintf("issued for %q", truncate(rec.ProductID, 64)),
		}
	}

	if rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
		return &VerificationError{
			Reason: licerr.ErrLicenseExpired,
			Detail: "expired at " + rec.ExpiresAt.Format(time.RFC3339),
		}
	}

	if len(key) != ed25519.PublicKeySize || len(rec.Signature) != ed25519.SignatureSize {
		return &VerificationError{Reason: licerr.ErrSignatureMismatch}
	}
	if !ed25519.Verify(key, rec.CanonicalClaims(), rec.Signature) {
		return &VerificationError{Reason: licerr.ErrSignatureMismatch}
	}

	return nil
}
