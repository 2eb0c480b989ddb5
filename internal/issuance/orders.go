package issuance

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	licerr "cicadagallery/internal/errors"
	"cicadagallery/internal/license"
)

// Order is one purchase the service may issue a license for.
type Order struct {
	OrderID    string     `yaml:"order_id"`
	Email      string     `yaml:"email"`
	ExpiryDays int        `yaml:"expiry_days,omitempty"`
	IssuedAt   *time.Time `yaml:"issued_at,omitempty"`
	// LicenseHash identifies the issued license without storing it.
	LicenseHash string `yaml:"license_hash,omitempty"`
}

// Issued reports whether a license was already issued for the order.
func (o Order) Issued() bool {
	return o.IssuedAt != nil
}

// Expiry returns when a license issued at t expires, or the zero time for
// a perpetual license.
func (o Order) Expiry(t time.Time) time.Time {
	if o.ExpiryDays <= 0 {
		return time.Time{}
	}
	return t.AddDate(0, 0, o.ExpiryDays)
}

type orderFile struct {
	Orders []Order `yaml:"orders"`
}

// OrderBook is the set of known purchases, persisted as YAML. Issuing
// updates the file so a restart keeps the one-license-per-order rule.
type OrderBook struct {
	mu     sync.Mutex
	path   string
	orders map[string]*Order
}

// NewOrderBook creates an in-memory book. With an empty path nothing is
// persisted.
func NewOrderBook(path string, orders ...Order) (*OrderBook, error) {
	b := &OrderBook{path: path, orders: make(map[string]*Order, len(orders))}
	for i := range orders {
		o := orders[i]
		o.OrderID = strings.TrimSpace(o.OrderID)
		o.Email = strings.TrimSpace(o.Email)
		if o.OrderID == "" {
			return nil, fmt.Errorf("order %d has no order_id", i)
		}
		if _, dup := b.orders[o.OrderID]; dup {
			return nil, fmt.Errorf("duplicate order_id %q", o.OrderID)
		}
		b.orders[o.OrderID] = &o
	}
	return b, nil
}

// LoadOrderBook reads the YAML order file at path.
func LoadOrderBook(path string) (*OrderBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read orders file: %w", err)
	}
	var f orderFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse orders file: %w", err)
	}
	return NewOrderBook(path, f.Orders...)
}

// Len returns the number of orders.
func (b *OrderBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// Get returns a copy of the order.
func (b *OrderBook) Get(orderID string) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Issue looks the order up, checks the email and that nothing was issued
// yet, calls sign and records the result. The book is locked throughout so
// concurrent requests for one order cannot both succeed.
func (b *OrderBook) Issue(orderID, email string, now time.Time, sign func(Order) (string, error)) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[strings.TrimSpace(orderID)]
	if !ok {
		return "", licerr.ErrOrderNotFound
	}
	if !strings.EqualFold(o.Email, strings.TrimSpace(email)) {
		return "", licerr.ErrOrderEmailMismatch
	}
	if o.Issued() {
		return "", licerr.ErrOrderAlreadyIssued
	}

	s, err := sign(*o)
	if err != nil {
		return "", err
	}

	issuedAt := now.UTC().Truncate(time.Second)
	o.IssuedAt = &issuedAt
	o.LicenseHash = license.HashLicense(s)
	if err := b.saveLocked(); err != nil {
		o.IssuedAt = nil
		o.LicenseHash = ""
		return "", err
	}
	return s, nil
}

func (b *OrderBook) saveLocked() error {
	if b.path == "" {
		return nil
	}

	f := orderFile{Orders: make([]Order, 0, len(b.orders))}
	for _, o := range b.orders {
		f.Orders = append(f.Orders, *o)
	}
	sort.Slice(f.Orders, func(i, j int) bool { return f.Orders[i].OrderID < f.Orders[j].OrderID })

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode orders file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".orders.*.tmp")
	if err != nil {
		return fmt.Errorf("save orders file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save orders file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save orders file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("save orders file: %w", err)
	}
	return nil
}
