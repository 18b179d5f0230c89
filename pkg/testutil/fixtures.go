package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Fixtures seeds catalog and batch rows for integration tests
type Fixtures struct {
	db *sqlx.DB
}

// NewFixtures creates a fixture helper bound to the test database
func NewFixtures(db *sqlx.DB) *Fixtures {
	return &Fixtures{db: db}
}

// SeedPharmacy inserts a pharmacy and returns its id
func (f *Fixtures) SeedPharmacy(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO catalog_pharmacies (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		t.Fatalf("failed to seed pharmacy: %v", err)
	}
	return id
}

// SeedSupplier inserts a supplier and returns its id
func (f *Fixtures) SeedSupplier(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO catalog_suppliers (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		t.Fatalf("failed to seed supplier: %v", err)
	}
	return id
}

// SeedItem inserts an inventory item and returns its id
func (f *Fixtures) SeedItem(t *testing.T, ctx context.Context, genericName string, reorderLevel int) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO catalog_items (id, generic_name, reorder_level) VALUES ($1, $2, $3)`,
		id, genericName, reorderLevel)
	if err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	return id
}

// BatchSeed describes a batch row to insert directly, bypassing the service
type BatchSeed struct {
	PharmacyID string
	ItemID     string
	SupplierID string
	BatchNo    string
	Expiry     *time.Time
	Received   int
	OnHand     int
	ReceivedAt time.Time
}

// SeedBatch inserts a batch row and returns its id
func (f *Fixtures) SeedBatch(t *testing.T, ctx context.Context, seed BatchSeed) string {
	t.Helper()
	if seed.ReceivedAt.IsZero() {
		seed.ReceivedAt = time.Now().UTC()
	}
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO pharmacy_batches (
			id, pharmacy_id, item_id, supplier_id, batch_no, expiry_date,
			qty_received_units, qty_on_hand_units, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, seed.PharmacyID, seed.ItemID, seed.SupplierID, seed.BatchNo,
		seed.Expiry, seed.Received, seed.OnHand, seed.ReceivedAt)
	if err != nil {
		t.Fatalf("failed to seed batch: %v", err)
	}
	return id
}

// DaysFromNow returns a pointer to a date the given number of days from now
func DaysFromNow(days int) *time.Time {
	d := time.Now().UTC().AddDate(0, 0, days)
	return &d
}
