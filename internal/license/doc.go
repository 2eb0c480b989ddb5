// Package license turns a purchase into a signed, offline-verifiable
// CicadaGallery license and uses it to gate premium features.
//
// # License Strings
//
// A license is the ASCII string
//
//	CG1.<claims>.<signature>
//
// where <claims> is the unpadded base64url encoding of the canonical claims
// JSON and <signature> is the unpadded base64url encoding of the 64 byte
// Ed25519 signature over exactly those JSON bytes:
//
//	{"product_id":"CicadaGallery","order_id":"...","email":"...","issued_at":1767225600,"expires_at":null}
//
// Keys appear in that fixed order, timestamps are Unix seconds and
// expires_at is null for perpetual licenses. Decode rejects anything that
// does not re-encode to the identical bytes.
//
// # Trust
//
// The issuance service holds the only signing key. Premium builds embed the
// matching public key as a constant (see TrustedKey); nothing at runtime can
// replace it. Verification is pure and works offline:
//
//	rec, err := license.Decode(s)
//	if err == nil {
//		err = license.Verify(rec, license.TrustedKey(), license.ProductID)
//	}
//
// # Components
//
//	- Store: persists the verbatim license string and re-verifies it on load
//	- Coordinator: exchanges {order_id, email} with the issuance service
//	- Gate: answers IsPremium and Capabilities for the rest of the app
//
// # Build Variants
//
// Building with -tags free compiles out the public key, the verifier and the
// premium gate. In that build IsPremium is always false and activation
// fails with ErrPremiumUnavailable.
package license
