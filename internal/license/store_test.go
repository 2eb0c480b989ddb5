//go:build !free

package license

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licerr "cicadagallery/internal/errors"
)

func newTestStore(t *testing.T, signer testSigner, opts ...StoreOption) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "CicadaGallery", "license.key"), signer.pub, opts...)
}

func TestStore_LoadAbsent(t *testing.T) {
	store := newTestStore(t, newTestSigner(t))

	state, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, state)
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)
	store := newTestStore(t, signer)
	s := signer.issue("ORD-1", "alice@example.com")

	require.NoError(t, store.Save(ctx, "  "+s+"\n\n"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, s+"\n", string(data))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Valid())
	assert.Equal(t, s, state.LicenseString)
	assert.Equal(t, "ORD-1", state.Record.OrderID)
	assert.False(t, state.VerifiedAt.IsZero())
}

func TestStore_SaveOverwritesAndLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)
	store := newTestStore(t, signer)

	require.NoError(t, store.Save(ctx, signer.issue("ORD-1", "a@example.com")))
	second := signer.issue("ORD-2", "b@example.com")
	require.NoError(t, store.Save(ctx, second))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "license.key", entries[0].Name())

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, state.LicenseString)
}

func TestStore_LoadCorruptIsQuarantined(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"garbage text", []byte("not a license at all")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
		{"empty file", []byte{}},
		{"truncated license", []byte(goldenLicense[:40])},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t, newTestSigner(t))
			require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
			require.NoError(t, os.WriteFile(store.Path(), tt.content, 0o600))

			state, err := store.Load(ctx)
			assert.NoError(t, err)
			assert.Nil(t, state)

			_, err = os.Stat(store.Path())
			assert.True(t, os.IsNotExist(err), "corrupt file should be moved aside")

			moved, err := os.ReadFile(store.Path() + CorruptSuffix)
			require.NoError(t, err)
			assert.Equal(t, tt.content, moved)

			state, err = store.Load(ctx)
			assert.NoError(t, err)
			assert.Nil(t, state)
		})
	}
}

func TestStore_LoadInvalidLicense(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		license string
		opts    []StoreOption
		wantErr error
	}{
		{
			name:    "signed by another key",
			license: newTestSigner(t).issue("ORD-1", "a@example.com"),
			wantErr: licerr.ErrSignatureMismatch,
		},
		{
			name:    "expired since activation",
			license: signer.issueRecord(NewRecord(ProductID, "ORD-2", "a@example.com", issued, issued.Add(time.Hour))),
			opts:    []StoreOption{WithStoreClock(func() time.Time { return issued.Add(2 * time.Hour) })},
			wantErr: licerr.ErrLicenseExpired,
		},
		{
			name:    "another product",
			license: signer.issueRecord(NewRecord("OtherApp", "ORD-3", "a@example.com", issued, time.Time{})),
			wantErr: licerr.ErrWrongProduct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, signer, tt.opts...)
			require.NoError(t, store.Save(ctx, tt.license))

			state, err := store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, state)
			assert.False(t, state.Valid())
			assert.ErrorIs(t, state.Err, tt.wantErr)

			_, err = os.Stat(store.Path())
			assert.NoError(t, err, "decodable file is left in place")
		})
	}
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)
	store := newTestStore(t, signer)

	assert.NoError(t, store.Remove(ctx), "removing an absent file")

	require.NoError(t, store.Save(ctx, signer.issue("ORD-1", "a@example.com")))
	require.NoError(t, store.Remove(ctx))

	state, err := store.Load(ctx)
	assert.NoError(t, err)
	assert.Nil(t, state)
}

func TestStore_LoadGoldenWithTrustedKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "license.key"), TrustedKey())
	require.NoError(t, store.Save(ctx, goldenLicense))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, state.Valid())
	assert.Equal(t, "golden@example.com", state.Record.Email)
}
