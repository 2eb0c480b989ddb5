package issuance

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licerr "cicadagallery/internal/errors"
)

const ordersYAML = `orders:
  - order_id: ORD-1001
    email: buyer@example.com
  - order_id: ORD-1002
    email: other@example.com
    expiry_days: 30
`

func writeOrders(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func signStub(o Order) (string, error) {
	return "CG1.license-for-" + o.OrderID, nil
}

func TestLoadOrderBook(t *testing.T) {
	book, err := LoadOrderBook(writeOrders(t, ordersYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, book.Len())

	o, ok := book.Get("ORD-1002")
	require.True(t, ok)
	assert.Equal(t, 30, o.ExpiryDays)
	assert.False(t, o.Issued())
}

func TestLoadOrderBook_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "orders: [\n"},
		{"missing order id", "orders:\n  - email: a@example.com\n"},
		{"duplicate", "orders:\n  - order_id: A\n    email: a@example.com\n  - order_id: A\n    email: b@example.com\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOrderBook(writeOrders(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadOrderBook(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOrderBook_Issue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		orderID string
		email   string
		wantErr error
	}{
		{"issued", "ORD-1001", "buyer@example.com", nil},
		{"email case and whitespace ignored", " ORD-1001 ", " Buyer@Example.COM ", nil},
		{"unknown order", "ORD-9999", "buyer@example.com", licerr.ErrOrderNotFound},
		{"email mismatch", "ORD-1001", "someone@example.com", licerr.ErrOrderEmailMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, err := LoadOrderBook(writeOrders(t, ordersYAML))
			require.NoError(t, err)

			s, err := book.Issue(tt.orderID, tt.email, now, signStub)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "CG1.license-for-ORD-1001", s)

			o, _ := book.Get("ORD-1001")
			require.True(t, o.Issued())
			assert.True(t, now.Equal(*o.IssuedAt))
			assert.NotEmpty(t, o.LicenseHash)
		})
	}
}

func TestOrderBook_IssueOncePersisted(t *testing.T) {
	path := writeOrders(t, ordersYAML)
	book, err := LoadOrderBook(path)
	require.NoError(t, err)

	_, err = book.Issue("ORD-1001", "buyer@example.com", time.Now(), signStub)
	require.NoError(t, err)

	_, err = book.Issue("ORD-1001", "buyer@example.com", time.Now(), signStub)
	assert.ErrorIs(t, err, licerr.ErrOrderAlreadyIssued)

	reloaded, err := LoadOrderBook(path)
	require.NoError(t, err)
	_, err = reloaded.Issue("ORD-1001", "buyer@example.com", time.Now(), signStub)
	assert.ErrorIs(t, err, licerr.ErrOrderAlreadyIssued)

	_, err = reloaded.Issue("ORD-1002", "other@example.com", time.Now(), signStub)
	assert.NoError(t, err)
}

func TestOrderBook_IssueConcurrent(t *testing.T) {
	book, err := NewOrderBook("", Order{OrderID: "ORD-1", Email: "a@example.com"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var issued, rejected atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := book.Issue("ORD-1", "a@example.com", time.Now(), signStub)
			switch {
			case err == nil:
				issued.Add(1)
			case errors.Is(err, licerr.ErrOrderAlreadyIssued):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), issued.Load())
	assert.Equal(t, int32(15), rejected.Load())
}

func TestOrderBook_SignFailureLeavesOrderOpen(t *testing.T) {
	book, err := NewOrderBook("", Order{OrderID: "ORD-1", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = book.Issue("ORD-1", "a@example.com", time.Now(), func(Order) (string, error) {
		return "", errors.New("hsm offline")
	})
	require.Error(t, err)

	o, _ := book.Get("ORD-1")
	assert.False(t, o.Issued())
}

func TestOrder_Expiry(t *testing.T) {
	at := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.True(t, Order{}.Expiry(at).IsZero())
	assert.Equal(t, at.AddDate(0, 0, 30), Order{ExpiryDays: 30}.Expiry(at))
}
