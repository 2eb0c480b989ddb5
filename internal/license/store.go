package license

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// maxLicenseFileSize bounds what Load will read; real licenses are well
// under 1 KiB.
const maxLicenseFileSize = 16 << 10

// CorruptSuffix is appended to a license file that could not be decoded.
const CorruptSuffix = ".corrupt"

// Store persists the activated license string and re-verifies it on every
// load. It never persists a validity flag.
type Store struct {
	mu        sync.Mutex
	path      string
	key       ed25519.PublicKey
	productID string
	now       func() time.Time
	metrics   *Metrics
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreClock overrides the clock used for expiry checks.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreMetrics records load outcomes on m.
func WithStoreMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithStoreProduct overrides the expected product ID.
func WithStoreProduct(productID string) StoreOption {
	return func(s *Store) { s.productID = productID }
}

// NewStore creates a store for the license file at path, verifying against key.
func NewStore(path string, key ed25519.PublicKey, opts ...StoreOption) *Store {
	s := &Store{
		path:      path,
		key:       key,
		productID: ProductID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the license file location
func (s *Store) Path() string {
	return s.path
}

// Load reads and re-verifies the persisted license. It returns nil, nil
// when nothing usable is stored: the file is absent, or it could not be
// decoded, in which case it is moved aside to Path()+CorruptSuffix. A
// decodable license that fails verification is returned with Err set.
func (s *Store) Load(ctx context.Context) (*ActivationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readLimited(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.metrics.recordStoreLoad(ctx, "absent")
		logDebug(ctx, "store_load", "No license file", slog.String("path", s.path))
		return nil, nil
	}
	if err != nil {
		s.metrics.recordStoreLoad(ctx, "error")
		logError(ctx, "store_load", "Failed to read license file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("read license file: %w", err)
	}

	licenseString := strings.TrimSpace(string(data))
	rec, err := Decode(licenseString)
	if err != nil {
		s.metrics.recordStoreLoad(ctx, "corrupt")
		logWarn(ctx, "store_load", "License file is corrupt, treating as not activated",
			slog.String("path", s.path),
			slog.Int("size_bytes", len(data)),
			slog.String("error", err.Error()),
		)
		s.quarantine(ctx)
		return nil, nil
	}

	state := &ActivationState{
		LicenseString: licenseString,
		Record:        rec,
		VerifiedAt:    s.now().UTC(),
		Err:           VerifyAt(rec, s.key, s.productID, s.now()),
	}
	s.metrics.recordVerification(ctx, state.Err)

	if state.Err != nil {
		s.metrics.recordStoreLoad(ctx, "invalid")
		logWarn(ctx, "store_load", "Stored license failed verification",
			slog.String("path", s.path),
			slog.String("license_hash", HashLicense(licenseString)),
			slog.String("reason", resultLabel(state.Err)),
		)
		return state, nil
	}

	s.metrics.recordStoreLoad(ctx, "valid")
	logInfo(ctx, "store_load", "License verified",
		slog.String("path", s.path),
		slog.String("license_hash", HashLicense(licenseString)),
		slog.String("order_id", rec.OrderID),
	)
	return state, nil
}

// Save atomically replaces the license file with licenseString.
func (s *Store) Save(ctx context.Context, licenseString string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	licenseString = strings.TrimSpace(licenseString)
	if err := writeFileAtomic(s.path, []byte(licenseString+"\n"), 0o600); err != nil {
		logError(ctx, "store_save", "Failed to write license file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return err
	}

	logInfo(ctx, "store_save", "License saved",
		slog.String("path", s.path),
		slog.String("license_hash", HashLicense(licenseString)),
	)
	return nil
}

// Remove deletes the license file. Removing an absent file is not an error.
func (s *Store) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove license file: %w", err)
	}
	logInfo(ctx, "store_remove", "License removed", slog.String("path", s.path))
	return nil
}

// quarantine moves an undecodable file aside so it is not re-read but can
// still be inspected. Callers hold s.mu.
func (s *Store) quarantine(ctx context.Context) {
	dst := s.path + CorruptSuffix
	if err := os.Rename(s.path, dst); err != nil {
		logError(ctx, "store_quarantine", "Failed to move corrupt license file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.recordCorruptRecovery(ctx)
	logInfo(ctx, "store_quarantine", "Corrupt license file moved aside", slog.String("path", dst))
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxLicenseFileSize))
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create license directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename license file: %w", err)
	}
	return nil
}
