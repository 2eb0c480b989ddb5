package issuance

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/scrypt"
)

// KeyFileVersion is the current encrypted key file format.
const KeyFileVersion = 1

var (
	// ErrEmptyPassphrase is returned when encrypting or decrypting without
	// a passphrase.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
	// ErrWrongPassphrase is returned when the key file cannot be decrypted.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")
)

// KDFParams are the scrypt cost parameters.
type KDFParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultKDFParams returns the OWASP recommended scrypt parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{N: 32768, R: 8, P: 1}
}

// KeyFile is the on-disk form of an encrypted signing key. The public key
// is authenticated as additional data so it cannot be swapped.
type KeyFile struct {
	Version    uint8     `json:"version"`
	KDF        string    `json:"kdf"`
	Params     KDFParams `json:"params"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	PublicKey  string    `json:"public_key"`
	CreatedAt  int64     `json:"created_at"`
}

// GenerateKey creates a new signing keypair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// EncryptKey seals the private key's seed under passphrase.
func EncryptKey(key ed25519.PrivateKey, passphrase []byte, params KDFParams) (*KeyFile, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key is %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt, params)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	pubHex := hex.EncodeToString(key.Public().(ed25519.PublicKey))
	seed := key.Seed()
	defer clear(seed)

	return &KeyFile{
		Version:    KeyFileVersion,
		KDF:        "scrypt",
		Params:     params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, seed, []byte(pubHex)),
		PublicKey:  pubHex,
		CreatedAt:  time.Now().Unix(),
	}, nil
}

// Decrypt recovers the private key.
func (kf *KeyFile) Decrypt(passphrase []byte) (ed25519.PrivateKey, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if kf.Version != KeyFileVersion || kf.KDF != "scrypt" {
		return nil, fmt.Errorf("unsupported key file version %d (%s)", kf.Version, kf.KDF)
	}

	gcm, err := newGCM(passphrase, kf.Salt, kf.Params)
	if err != nil {
		return nil, err
	}
	if len(kf.Nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	seed, err := gcm.Open(nil, kf.Nonce, kf.Ciphertext, []byte(kf.PublicKey))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	defer clear(seed)
	if len(seed) != ed25519.SeedSize {
		return nil, ErrWrongPassphrase
	}

	key := ed25519.NewKeyFromSeed(seed)
	if hex.EncodeToString(key.Public().(ed25519.PublicKey)) != kf.PublicKey {
		return nil, ErrWrongPassphrase
	}
	return key, nil
}

func newGCM(passphrase, salt []byte, params KDFParams) (cipher.AEAD, error) {
	derived, err := scrypt.Key(passphrase, salt, params.N, params.R, params.P, 32)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// WriteKeyFile stores kf at path with owner-only permissions. An existing
// file is never overwritten.
func WriteKeyFile(path string, kf *KeyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}

// ReadKeyFile loads an encrypted key file.
func ReadKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return &kf, nil
}

// LoadSigningKey reads and decrypts the key file at path.
func LoadSigningKey(path string, passphrase []byte) (ed25519.PrivateKey, error) {
	kf, err := ReadKeyFile(path)
	if err != nil {
		return nil, err
	}
	return kf.Decrypt(passphrase)
}
