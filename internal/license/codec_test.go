package license

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licerr "cicadagallery/internal/errors"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  Record
	}{
		{"perpetual", NewRecord(ProductID, "ORD-1", "a@example.com", issued, time.Time{})},
		{"with expiry", NewRecord(ProductID, "ORD-2", "b@example.com", issued, issued.Add(30*24*time.Hour))},
		{"unicode email", NewRecord(ProductID, "注文-3", "ユーザー@例え.jp", issued, time.Time{})},
		{"sub-second issue time", NewRecord(ProductID, "ORD-4", "c@example.com", issued.Add(750*time.Millisecond), time.Time{})},
		{"other product", NewRecord("OtherApp", "ORD-5", "d@example.com", issued, time.Time{})},
		{"empty order", NewRecord(ProductID, "", "e@example.com", issued, time.Time{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := signer.sign(tt.rec)

			decoded, err := Decode(Encode(rec))
			require.NoError(t, err)
			assert.True(t, rec.Equal(decoded), "got %+v want %+v", decoded, rec)
			assert.Equal(t, rec, decoded)
		})
	}
}

// A record assembled without NewRecord still round-trips; the encoding
// keeps whole seconds.
func TestEncodeDecode_RawSubSecondRecord(t *testing.T) {
	signer := newTestSigner(t)
	exp := time.Unix(1800000000, 999).In(time.FixedZone("JST", 9*60*60))
	rec := signer.sign(Record{
		ProductID: ProductID,
		OrderID:   "ORD-RAW",
		Email:     "raw@example.com",
		IssuedAt:  time.Unix(1700000000, 5),
		ExpiresAt: &exp,
	})

	decoded, err := Decode(Encode(rec))
	require.NoError(t, err)
	assert.True(t, rec.Equal(decoded))
	assert.Equal(t, int64(1700000000), decoded.IssuedAt.Unix())
	assert.Equal(t, 0, decoded.IssuedAt.Nanosecond())
}

func TestRecord_Validate(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rec     Record
		wantErr string
	}{
		{"valid", NewRecord(ProductID, "注文-1", "ユーザー@例え.jp", issued, time.Time{}), ""},
		{"email", NewRecord(ProductID, "ORD-1", "a\xffb@example.com", issued, time.Time{}), "email"},
		{"order", NewRecord(ProductID, "ORD-\xc3", "a@example.com", issued, time.Time{}), "order_id"},
		{"product", NewRecord("Cicada\x80", "ORD-1", "a@example.com", issued, time.Time{}), "product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, licerr.ErrMalformedFormat)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRecord_NormalizesToUTCSeconds(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	rec := NewRecord(ProductID, "ORD", "a@example.com", time.Date(2026, 3, 1, 9, 0, 0, 999, loc), time.Time{})

	assert.Equal(t, time.UTC, rec.IssuedAt.Location())
	assert.Equal(t, 0, rec.IssuedAt.Nanosecond())
	assert.True(t, rec.Perpetual())
}

func TestCanonicalClaims_FixedFieldOrder(t *testing.T) {
	rec := NewRecord(ProductID, "GOLDEN-0001", "golden@example.com", time.Unix(1767225600, 0), time.Time{})

	assert.Equal(t,
		`{"product_id":"CicadaGallery","order_id":"GOLDEN-0001","email":"golden@example.com","issued_at":1767225600,"expires_at":null}`,
		string(rec.CanonicalClaims()))
}

func TestDecode_Golden(t *testing.T) {
	rec, err := Decode(goldenLicense)
	require.NoError(t, err)

	assert.Equal(t, ProductID, rec.ProductID)
	assert.Equal(t, "GOLDEN-0001", rec.OrderID)
	assert.Equal(t, "golden@example.com", rec.Email)
	assert.Equal(t, int64(1767225600), rec.IssuedAt.Unix())
	assert.Nil(t, rec.ExpiresAt)
	assert.Len(t, rec.Signature, 64)
	assert.Equal(t, goldenLicense, Encode(rec))
}

func TestDecode_TrimsWhitespace(t *testing.T) {
	rec, err := Decode("\n\t  " + goldenLicense + "  \r\n")
	require.NoError(t, err)
	assert.Equal(t, "GOLDEN-0001", rec.OrderID)
}

func TestDecode_Malformed(t *testing.T) {
	parts := strings.Split(goldenLicense, ".")
	claims, sig := parts[1], parts[2]
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   \n"},
		{"unknown version tag", "CG2." + claims + "." + sig},
		{"lowercase tag", "cg1." + claims + "." + sig},
		{"two segments", "CG1." + claims},
		{"four segments", goldenLicense + ".extra"},
		{"claims not base64url", "CG1.***." + sig},
		{"padded base64", "CG1." + claims + "==." + sig},
		{"signature not base64url", "CG1." + claims + ".!!!"},
		{"signature too short", "CG1." + claims + "." + sig[:len(sig)-4]},
		{"signature too long", "CG1." + claims + "." + sig + "AAAA"},
		{"claims not json", "CG1." + enc("hello") + "." + sig},
		{"claims json array", "CG1." + enc(`[1,2]`) + "." + sig},
		{"unknown field", "CG1." + enc(`{"product_id":"CicadaGallery","order_id":"A","email":"a@b.c","issued_at":1,"expires_at":null,"tier":"pro"}`) + "." + sig},
		{"missing field", "CG1." + enc(`{"product_id":"CicadaGallery","order_id":"A","issued_at":1,"expires_at":null}`) + "." + sig},
		{"reordered keys", "CG1." + enc(`{"order_id":"A","product_id":"CicadaGallery","email":"a@b.c","issued_at":1,"expires_at":null}`) + "." + sig},
		{"insignificant whitespace", "CG1." + enc(`{"product_id": "CicadaGallery","order_id":"A","email":"a@b.c","issued_at":1,"expires_at":null}`) + "." + sig},
		{"fractional timestamp", "CG1." + enc(`{"product_id":"CicadaGallery","order_id":"A","email":"a@b.c","issued_at":1.5,"expires_at":null}`) + "." + sig},
		{"string timestamp", "CG1." + enc(`{"product_id":"CicadaGallery","order_id":"A","email":"a@b.c","issued_at":"1","expires_at":null}`) + "." + sig},
		{"trailing data", "CG1." + enc(`{"product_id":"CicadaGallery","order_id":"A","email":"a@b.c","issued_at":1,"expires_at":null}{}`) + "." + sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, licerr.ErrMalformedFormat), "got %v", err)

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestDecode_RejectsNonCanonicalBase64(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := goldenLicense[len(goldenLicense)-1]
	// The final signature character carries two data bits; flipping the
	// lowest bit leaves the decoded bytes unchanged in lenient mode.
	flipped := alphabet[strings.IndexByte(alphabet, last)^1]
	mutated := goldenLicense[:len(goldenLicense)-1] + string(flipped)

	_, err := Decode(mutated)
	assert.ErrorIs(t, err, licerr.ErrMalformedFormat)
}
