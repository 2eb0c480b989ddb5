package license

import (
	"bytes"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// ProductID identifies CicadaGallery licenses. A license for any other
// product is rejected even if its signature is genuine.
const ProductID = "CicadaGallery"

// VersionTag prefixes every license string produced by Encode.
const VersionTag = "CG1"

// Record is a decoded license: the signed claims plus the signature.
// Timestamps are UTC with second precision.
type Record struct {
	ProductID string
	OrderID   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt *time.Time
	Signature []byte
}

// claims is the canonical JSON form. Field order is part of the format.
type claims struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Email     string `json:"email"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt *int64 `json:"expires_at"`
}

// NewRecord builds an unsigned record, normalising timestamps to UTC
// seconds. A zero expires value means the license never expires.
func NewRecord(productID, orderID, email string, issued, expires time.Time) Record {
	rec := Record{
		ProductID: productID,
		OrderID:   orderID,
		Email:     email,
		IssuedAt:  normalizeTime(issued),
	}
	if !expires.IsZero() {
		exp := normalizeTime(expires)
		rec.ExpiresAt = &exp
	}
	return rec
}

// Validate rejects claims that would not survive Encode and Decode
// unchanged. Invalid UTF-8 is rewritten by the JSON encoder.
func (r Record) Validate() error {
	switch {
	case !utf8.ValidString(r.ProductID):
		return malformed("product_id is not valid UTF-8", nil)
	case !utf8.ValidString(r.OrderID):
		return malformed("order_id is not valid UTF-8", nil)
	case !utf8.ValidString(r.Email):
		return malformed("email is not valid UTF-8", nil)
	}
	return nil
}

func normalizeTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

func (r Record) toClaims() claims {
	c := claims{
		ProductID: r.ProductID,
		OrderID:   r.OrderID,
		Email:     r.Email,
		IssuedAt:  r.IssuedAt.Unix(),
	}
	if r.ExpiresAt != nil {
		exp := r.ExpiresAt.Unix()
		c.ExpiresAt = &exp
	}
	return c
}

func (c claims) toRecord() Record {
	rec := Record{
		ProductID: c.ProductID,
		OrderID:   c.OrderID,
		Email:     c.Email,
		IssuedAt:  time.Unix(c.IssuedAt, 0).UTC(),
	}
	if c.ExpiresAt != nil {
		exp := time.Unix(*c.ExpiresAt, 0).UTC()
		rec.ExpiresAt = &exp
	}
	return rec
}

// CanonicalClaims returns the exact bytes covered by the signature.
func (r Record) CanonicalClaims() []byte {
	// Marshal of a struct of strings and ints cannot fail.
	data, _ := json.Marshal(r.toClaims())
	return data
}

// Perpetual reports whether the license has no expiry.
func (r Record) Perpetual() bool {
	return r.ExpiresAt == nil
}

// Equal compares two records field by field. Timestamps compare at
// second precision, the precision of the encoding.
func (r Record) Equal(o Record) bool {
	if r.ProductID != o.ProductID || r.OrderID != o.OrderID || r.Email != o.Email {
		return false
	}
	if r.IssuedAt.Unix() != o.IssuedAt.Unix() {
		return false
	}
	if (r.ExpiresAt == nil) != (o.ExpiresAt == nil) {
		return false
	}
	if r.ExpiresAt != nil && r.ExpiresAt.Unix() != o.ExpiresAt.Unix() {
		return false
	}
	return bytes.Equal(r.Signature, o.Signature)
}
