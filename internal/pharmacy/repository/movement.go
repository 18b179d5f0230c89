package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medtrack/medtrack-backend/pkg/database"
)

// MovementType classifies a stock movement
type MovementType string

const (
	MovementReceive  MovementType = "RECEIVE"
	MovementDispense MovementType = "DISPENSE"
	MovementSale     MovementType = "SALE"
	MovementAdjust   MovementType = "ADJUST"
	MovementWaste    MovementType = "WASTE"
)

// Valid reports whether t is a known movement type
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceive, MovementDispense, MovementSale, MovementAdjust, MovementWaste:
		return true
	}
	return false
}

// Movement is one signed quantity change recorded against exactly one batch.
// Movements are append-only: there is no update or delete path, matching the
// audit-trail contract.
type Movement struct {
	ID         string       `db:"id" json:"id"`
	PharmacyID string       `db:"pharmacy_id" json:"pharmacy_id"`
	ItemID     string       `db:"item_id" json:"item_id"`
	BatchID    string       `db:"batch_id" json:"batch_id"`
	Type       MovementType `db:"movement_type" json:"type"`
	QtyUnits   int          `db:"qty_units" json:"qty_units"`
	PatientID  *string      `db:"patient_id" json:"patient_id,omitempty"`
	Reference  *string      `db:"reference" json:"reference,omitempty"`
	CreatedBy  string       `db:"created_by" json:"created_by"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// ItemUsage is the absolute dispensed/sold quantity of one item over a window
type ItemUsage struct {
	ItemID   string `db:"item_id" json:"item_id"`
	QtyUnits int    `db:"qty_units" json:"qty_units"`
}

// MovementFilter narrows movement listings
type MovementFilter struct {
	ItemID  string
	BatchID string
	Type    MovementType
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

// MovementRepository handles the append-only stock movement ledger
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Insert appends a movement inside the given transaction
func (r *MovementRepository) Insert(ctx context.Context, tx *sqlx.Tx, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, pharmacy_id, item_id, batch_id, movement_type, qty_units,
			patient_id, reference, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		m.ID, m.PharmacyID, m.ItemID, m.BatchID, m.Type, m.QtyUnits,
		m.PatientID, m.Reference, m.CreatedBy,
	).Scan(&m.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// List lists movements for a pharmacy with optional filters, newest first
func (r *MovementRepository) List(ctx context.Context, pharmacyID string, filter MovementFilter) ([]*Movement, int64, error) {
	where := ` WHERE pharmacy_id = $1`
	args := []interface{}{pharmacyID}

	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		where += fmt.Sprintf(` AND item_id = $%d`, len(args))
	}
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		where += fmt.Sprintf(` AND batch_id = $%d`, len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(` AND movement_type = $%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM stock_movements`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM stock_movements` + where + ` ORDER BY created_at DESC, id DESC`

	if filter.PerPage > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PerPage)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
		args = append(args, (page-1)*filter.PerPage)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// ListByBatch lists all movements recorded against one batch, oldest first.
// The ledger for a batch replayed in this order reproduces its on-hand
// quantity.
func (r *MovementRepository) ListByBatch(ctx context.Context, batchID string) ([]*Movement, error) {
	var movements []*Movement
	query := `
		SELECT * FROM stock_movements
		WHERE batch_id = $1
		ORDER BY created_at ASC, id ASC
	`
	if err := r.db.SelectContext(ctx, &movements, query, batchID); err != nil {
		return nil, err
	}
	return movements, nil
}

// UsageByItem sums the absolute dispensed and sold quantity per item at a
// pharmacy since the given time. Feeds the usage-based forecast alerts.
func (r *MovementRepository) UsageByItem(ctx context.Context, pharmacyID string, since time.Time) ([]*ItemUsage, error) {
	query := `
		SELECT item_id, COALESCE(SUM(ABS(qty_units)), 0) AS qty_units
		FROM stock_movements
		WHERE pharmacy_id = $1
		AND movement_type IN ('DISPENSE', 'SALE')
		AND created_at >= $2
		GROUP BY item_id
	`
	var usage []*ItemUsage
	if err := r.db.SelectContext(ctx, &usage, query, pharmacyID, since); err != nil {
		return nil, err
	}
	return usage, nil
}
