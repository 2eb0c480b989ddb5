package license

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	licerr "cicadagallery/internal/errors"
)

const segmentSeparator = "."

// Strict rejects non-zero trailing bits so each license has one spelling.
var b64 = base64.RawURLEncoding.Strict()

// DecodeError explains why a license string could not be decoded. It
// matches licerr.ErrMalformedFormat with errors.Is.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", licerr.ErrMalformedFormat, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", licerr.ErrMalformedFormat, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{licerr.ErrMalformedFormat, e.Err}
	}
	return []error{licerr.ErrMalformedFormat}
}

func malformed(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}

// Encode renders a signed record as a license string.
func Encode(rec Record) string {
	return VersionTag + segmentSeparator +
		b64.EncodeToString(rec.CanonicalClaims()) + segmentSeparator +
		b64.EncodeToString(rec.Signature)
}

// Decode parses a license string. It never verifies the signature.
// Surrounding whitespace from copy and paste is ignored.
func Decode(input string) (Record, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Record{}, malformed("empty input", nil)
	}

	parts := strings.Split(s, segmentSeparator)
	if len(parts) != 3 {
		return Record{}, malformed(fmt.Sprintf("expected 3 segments, got %d", len(parts)), nil)
	}
	if parts[0] != VersionTag {
		return Record{}, malformed(fmt.Sprintf("unknown version tag %q", truncate(parts[0], 16)), nil)
	}

	claimBytes, err := b64.DecodeString(parts[1])
	if err != nil {
		return Record{}, malformed("claims are not base64url", err)
	}

	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return Record{}, malformed("signature is not base64url", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return Record{}, malformed(fmt.Sprintf("signature is %d bytes, want %d", len(sig), ed25519.SignatureSize), nil)
	}

	c, err := decodeClaims(claimBytes)
	if err != nil {
		return Record{}, err
	}

	rec := c.toRecord()
	rec.Signature = sig
	return rec, nil
}

// decodeClaims accepts only JSON that is byte-identical to its canonical
// re-encoding: no extra or missing keys, no reordering, no whitespace.
func decodeClaims(data []byte) (claims, error) {
	var c claims

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return claims{}, malformed("claims are not valid JSON", err)
		}
		return claims{}, malformed("claims do not match the schema", err)
	}

	canonical, err := json.Marshal(c)
	if err != nil {
		return claims{}, malformed("claims cannot be re-encoded", err)
	}
	if !bytes.Equal(canonical, data) {
		return claims{}, malformed("claims are not canonical", nil)
	}

	return c, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
