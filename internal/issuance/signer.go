package issuance

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cicadagallery/internal/license"
)

// Signer produces license strings with an Ed25519 private key.
type Signer struct {
	key       ed25519.PrivateKey
	productID string
}

// NewSigner returns a signer for productID.
func NewSigner(key ed25519.PrivateKey, productID string) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key is %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}
	if productID == "" {
		return nil, errors.New("product id is required")
	}
	return &Signer{key: key, productID: productID}, nil
}

// ProductID returns the product every license is issued for.
func (s *Signer) ProductID() string {
	return s.productID
}

// PublicKey returns the verification key matching the signer.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// PublicKeyHex returns the verification key in the form embedded in
// premium builds.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.PublicKey())
}

// Sign issues a license for one order. A zero expires means perpetual.
func (s *Signer) Sign(orderID, email string, issued, expires time.Time) (string, license.Record, error) {
	rec := license.NewRecord(s.productID, orderID, email, issued, expires)
	if err := rec.Validate(); err != nil {
		return "", license.Record{}, err
	}
	rec.Signature = ed25519.Sign(s.key, rec.CanonicalClaims())
	return license.Encode(rec), rec, nil
}
