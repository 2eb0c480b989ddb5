//go:build !free

package license

import (
	"crypto/ed25519"
	"fmt"
)

// embeddedPublicKeyHex is the issuance service's Ed25519 verification key.
// Rotate it with `licensegen keygen` and rebuild; it is never configurable.
const embeddedPublicKeyHex = "d784a2b98e60614d2e808085feb8aee43f276c4a7d50a456e7fae1300687005e"

var trustedKey = mustParsePublicKey(embeddedPublicKeyHex)

// TrustedKey returns a copy of the verification key compiled into this
// binary.
func TrustedKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), trustedKey...)
}

func mustParsePublicKey(s string) ed25519.PublicKey {
	key, err := ParsePublicKey(s)
	if err != nil {
		panic(fmt.Sprintf("license: embedded public key is invalid: %v", err))
	}
	return key
}
