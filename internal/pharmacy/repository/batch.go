package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medtrack/medtrack-backend/pkg/database"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Batch represents one received lot of one item at one pharmacy.
// QtyReceivedUnits is immutable after creation; QtyOnHandUnits is only ever
// changed together with an appended movement, inside the same transaction.
type Batch struct {
	ID                string          `db:"id" json:"id"`
	PharmacyID        string          `db:"pharmacy_id" json:"pharmacy_id"`
	ItemID            string          `db:"item_id" json:"item_id"`
	SupplierID        string          `db:"supplier_id" json:"supplier_id"`
	BatchNo           string          `db:"batch_no" json:"batch_no"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	QtyReceivedUnits  int             `db:"qty_received_units" json:"qty_received_units"`
	QtyOnHandUnits    int             `db:"qty_on_hand_units" json:"qty_on_hand_units"`
	PurchaseUnitPrice decimal.Decimal `db:"purchase_unit_price" json:"purchase_unit_price"`
	SaleUnitPrice     decimal.Decimal `db:"sale_unit_price" json:"sale_unit_price"`
	Notes             *string         `db:"notes" json:"notes,omitempty"`
	ReceivedAt        time.Time       `db:"received_at" json:"received_at"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// ItemStock is the aggregated on-hand quantity of one item at one pharmacy
type ItemStock struct {
	ItemID     string `db:"item_id" json:"item_id"`
	TotalUnits int    `db:"total_units" json:"total_units"`
}

// BatchFilter narrows batch listings
type BatchFilter struct {
	ItemID  string
	InStock bool
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch inside the given transaction.
// The caller is responsible for appending the matching RECEIVE movement
// before committing.
func (r *BatchRepository) Create(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pharmacy_batches (
			id, pharmacy_id, item_id, supplier_id, batch_no, expiry_date,
			qty_received_units, qty_on_hand_units, purchase_unit_price,
			sale_unit_price, notes, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.PharmacyID, batch.ItemID, batch.SupplierID, batch.BatchNo,
		batch.ExpiryDate, batch.QtyReceivedUnits, batch.QtyOnHandUnits,
		batch.PurchaseUnitPrice, batch.SaleUnitPrice, batch.Notes, batch.ReceivedAt,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM pharmacy_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// List lists batches for a pharmacy, optionally filtered by item and stock state
func (r *BatchRepository) List(ctx context.Context, pharmacyID string, filter BatchFilter) ([]*Batch, error) {
	query := `SELECT * FROM pharmacy_batches WHERE pharmacy_id = $1`
	args := []interface{}{pharmacyID}

	if filter.ItemID != "" {
		query += ` AND item_id = $2`
		args = append(args, filter.ItemID)
	}
	if filter.InStock {
		query += ` AND qty_on_hand_units > 0`
	}
	query += ` ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC`

	var batches []*Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListForAllocation returns the batches eligible for a dispense of the given
// item at the given pharmacy, locked for update in consumption order:
// earliest expiry first, no-expiry batches last, earlier-received on ties.
func (r *BatchRepository) ListForAllocation(ctx context.Context, tx *sqlx.Tx, pharmacyID, itemID string) ([]*Batch, error) {
	query := `
		SELECT * FROM pharmacy_batches
		WHERE pharmacy_id = $1 AND item_id = $2 AND qty_on_hand_units > 0
		ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC
		FOR UPDATE
	`
	var batches []*Batch
	if err := tx.SelectContext(ctx, &batches, query, pharmacyID, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetForUpdate fetches one batch under a row lock so a balance check and the
// following debit see the same quantity.
func (r *BatchRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM pharmacy_batches WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ApplyDelta adjusts a locked batch's on-hand quantity by a signed delta and
// returns the new quantity. The CHECK constraints reject any drift below
// zero or above the received quantity even if a caller skips the lock.
func (r *BatchRepository) ApplyDelta(ctx context.Context, tx *sqlx.Tx, id string, delta int) (int, error) {
	var newQty int
	query := `
		UPDATE pharmacy_batches
		SET qty_on_hand_units = qty_on_hand_units + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING qty_on_hand_units
	`
	err := tx.QueryRowxContext(ctx, query, id, delta).Scan(&newQty)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.NotFound("batch")
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return 0, mapped
		}
		return 0, err
	}
	return newQty, nil
}

// TotalStockByItem aggregates on-hand quantity per item across all batches
// at a pharmacy. Items with zero stock in every batch still appear with 0.
func (r *BatchRepository) TotalStockByItem(ctx context.Context, pharmacyID string) ([]*ItemStock, error) {
	query := `
		SELECT item_id, COALESCE(SUM(qty_on_hand_units), 0) AS total_units
		FROM pharmacy_batches
		WHERE pharmacy_id = $1
		GROUP BY item_id
		ORDER BY item_id
	`
	var stocks []*ItemStock
	if err := r.db.SelectContext(ctx, &stocks, query, pharmacyID); err != nil {
		return nil, err
	}
	return stocks, nil
}

// ListActive lists batches with stock remaining at a pharmacy
func (r *BatchRepository) ListActive(ctx context.Context, pharmacyID string) ([]*Batch, error) {
	return r.List(ctx, pharmacyID, BatchFilter{InStock: true})
}
