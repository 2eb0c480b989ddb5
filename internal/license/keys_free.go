//go:build free

package license

import (
	"crypto/ed25519"
)

// TrustedKey returns nil: the free edition carries no verification key.
func TrustedKey() ed25519.PublicKey {
	return nil
}
