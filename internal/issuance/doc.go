// Package issuance implements the reference license issuance service.
//
// The service holds the Ed25519 signing key, looks purchases up in an order
// book and answers POST /issue-license with a signed license string. Desktop
// builds never link this package; only cmd/issuer and cmd/licensegen do.
//
// The private key is stored encrypted at rest (scrypt key derivation,
// AES-256-GCM) and decrypted once at startup.
package issuance
