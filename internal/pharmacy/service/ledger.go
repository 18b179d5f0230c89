package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/events"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/database"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/medtrack/medtrack-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// LedgerService owns all batch quantity mutation. Every mutation appends the
// corresponding movement in the same transaction; there is no code path that
// writes qty_on_hand_units without one.
type LedgerService struct {
	db           *database.DB
	batchRepo    *repository.BatchRepository
	movementRepo *repository.MovementRepository
	catalogRepo  *repository.CatalogRepository
	publisher    *events.StockEventPublisher
	logger       *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	catalogRepo *repository.CatalogRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:           db,
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		catalogRepo:  catalogRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// ReceiveBatchInput is the request to receive stock into a new batch
type ReceiveBatchInput struct {
	PharmacyID        string          `json:"pharmacy_id" validate:"required"`
	ItemID            string          `json:"item_id" validate:"required"`
	SupplierID        string          `json:"supplier_id" validate:"required"`
	BatchNo           string          `json:"batch_no" validate:"required"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	QtyReceivedUnits  int             `json:"qty_received_units" validate:"required,gt=0"`
	PurchaseUnitPrice decimal.Decimal `json:"purchase_unit_price"`
	SaleUnitPrice     decimal.Decimal `json:"sale_unit_price"`
	Notes             *string         `json:"notes,omitempty"`
	CreatedBy         string          `json:"-"`
}

// ReceiveBatchResult is the created batch plus its RECEIVE movement id
type ReceiveBatchResult struct {
	Batch             *repository.Batch `json:"batch"`
	ReceiveMovementID string            `json:"receive_movement_id"`
}

// ReceiveBatch creates a batch and its RECEIVE movement atomically.
// This is the only entry point that introduces new stock.
func (s *LedgerService) ReceiveBatch(ctx context.Context, input ReceiveBatchInput) (*ReceiveBatchResult, error) {
	if input.QtyReceivedUnits <= 0 {
		return nil, errors.Validation(map[string]string{
			"qty_received_units": "must be a positive integer",
		})
	}

	if _, err := s.catalogRepo.GetPharmacy(ctx, input.PharmacyID); err != nil {
		return nil, err
	}
	if _, err := s.catalogRepo.GetItem(ctx, input.ItemID); err != nil {
		return nil, err
	}
	if _, err := s.catalogRepo.GetSupplier(ctx, input.SupplierID); err != nil {
		return nil, err
	}

	batch := &repository.Batch{
		PharmacyID:        input.PharmacyID,
		ItemID:            input.ItemID,
		SupplierID:        input.SupplierID,
		BatchNo:           input.BatchNo,
		ExpiryDate:        input.ExpiryDate,
		QtyReceivedUnits:  input.QtyReceivedUnits,
		QtyOnHandUnits:    input.QtyReceivedUnits,
		PurchaseUnitPrice: input.PurchaseUnitPrice,
		SaleUnitPrice:     input.SaleUnitPrice,
		Notes:             input.Notes,
	}

	movement := &repository.Movement{
		PharmacyID: input.PharmacyID,
		ItemID:     input.ItemID,
		Type:       repository.MovementReceive,
		QtyUnits:   input.QtyReceivedUnits,
		CreatedBy:  input.CreatedBy,
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.batchRepo.Create(ctx, tx, batch); err != nil {
			return err
		}
		movement.BatchID = batch.ID
		return s.movementRepo.Insert(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("pharmacy_id", batch.PharmacyID).
		Str("item_id", batch.ItemID).
		Int("qty_units", batch.QtyReceivedUnits).
		Msg("batch received")

	if s.publisher != nil {
		s.publisher.PublishStockReceived(ctx, batch, input.CreatedBy)
	}

	return &ReceiveBatchResult{Batch: batch, ReceiveMovementID: movement.ID}, nil
}

// RecordMovementInput is a manual ADJUST or WASTE correction against one batch
type RecordMovementInput struct {
	BatchID   string                  `json:"batch_id" validate:"required"`
	Type      repository.MovementType `json:"type" validate:"required,oneof=ADJUST WASTE"`
	QtyUnits  int                     `json:"qty_units" validate:"required"`
	Reference *string                 `json:"reference,omitempty"`
	CreatedBy string                  `json:"-"`
}

// RecordMovement applies a manual correction. WASTE must be negative; ADJUST
// may carry either sign. The balance check and the debit run under the same
// row lock, so concurrent corrections can never jointly overdraw a batch.
func (s *LedgerService) RecordMovement(ctx context.Context, input RecordMovementInput) (*repository.Movement, error) {
	if details := validateCorrection(input.Type, input.QtyUnits); details != nil {
		return nil, errors.Validation(details)
	}

	var movement *repository.Movement
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		batch, err := s.batchRepo.GetForUpdate(ctx, tx, input.BatchID)
		if err != nil {
			return err
		}

		newQty := batch.QtyOnHandUnits + input.QtyUnits
		if newQty < 0 {
			return errors.InsufficientStock(-input.QtyUnits, batch.QtyOnHandUnits)
		}
		if newQty > batch.QtyReceivedUnits {
			return errors.Validation(map[string]string{
				"qty_units": "adjustment would exceed the received quantity",
			})
		}

		if _, err := s.batchRepo.ApplyDelta(ctx, tx, batch.ID, input.QtyUnits); err != nil {
			return err
		}

		movement = &repository.Movement{
			PharmacyID: batch.PharmacyID,
			ItemID:     batch.ItemID,
			BatchID:    batch.ID,
			Type:       input.Type,
			QtyUnits:   input.QtyUnits,
			Reference:  input.Reference,
			CreatedBy:  input.CreatedBy,
		}
		return s.movementRepo.Insert(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", movement.ID).
		Str("batch_id", movement.BatchID).
		Str("type", string(movement.Type)).
		Int("qty_units", movement.QtyUnits).
		Msg("correction recorded")

	if s.publisher != nil {
		s.publisher.PublishMovementRecorded(ctx, movement)
	}

	return movement, nil
}

// validateCorrection returns validation detail for a bad manual correction,
// or nil when the input is acceptable.
func validateCorrection(t repository.MovementType, qty int) map[string]string {
	if t != repository.MovementAdjust && t != repository.MovementWaste {
		return map[string]string{"type": "must be one of: ADJUST, WASTE"}
	}
	if qty == 0 {
		return map[string]string{"qty_units": "must not be zero"}
	}
	if t == repository.MovementWaste && qty >= 0 {
		return map[string]string{"qty_units": "WASTE quantity must be negative"}
	}
	return nil
}

// GetBatch gets a batch by ID
func (s *LedgerService) GetBatch(ctx context.Context, id string) (*repository.Batch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// ListBatches lists batches at a pharmacy
func (s *LedgerService) ListBatches(ctx context.Context, pharmacyID string, filter repository.BatchFilter) ([]*repository.Batch, error) {
	if pharmacyID == "" {
		return nil, errors.Validation(map[string]string{"pharmacy_id": "this field is required"})
	}
	return s.batchRepo.List(ctx, pharmacyID, filter)
}

// ListMovements lists movements at a pharmacy
func (s *LedgerService) ListMovements(ctx context.Context, pharmacyID string, filter repository.MovementFilter) ([]*repository.Movement, int64, error) {
	if pharmacyID == "" {
		return nil, 0, errors.Validation(map[string]string{"pharmacy_id": "this field is required"})
	}
	return s.movementRepo.List(ctx, pharmacyID, filter)
}

// ItemStockSummary is one item's aggregated stock position at a pharmacy
type ItemStockSummary struct {
	Item       *repository.InventoryItem `json:"item"`
	TotalStock int                       `json:"total_stock"`
	Status     string                    `json:"status"`
}

// StockSummary aggregates on-hand quantity per item at a pharmacy
func (s *LedgerService) StockSummary(ctx context.Context, pharmacyID string) ([]*ItemStockSummary, error) {
	if pharmacyID == "" {
		return nil, errors.Validation(map[string]string{"pharmacy_id": "this field is required"})
	}
	if _, err := s.catalogRepo.GetPharmacy(ctx, pharmacyID); err != nil {
		return nil, err
	}

	stocks, err := s.batchRepo.TotalStockByItem(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}

	items, err := s.catalogRepo.ItemsByID(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*ItemStockSummary, 0, len(stocks))
	for _, stock := range stocks {
		item, ok := items[stock.ItemID]
		if !ok {
			continue
		}
		result = append(result, &ItemStockSummary{
			Item:       item,
			TotalStock: stock.TotalUnits,
			Status:     stockStatus(stock.TotalUnits, item.ReorderLevel),
		})
	}
	return result, nil
}

func stockStatus(totalStock, reorderLevel int) string {
	switch {
	case totalStock == 0:
		return "Out of Stock"
	case totalStock <= reorderLevel/2:
		return "Critical"
	case totalStock <= reorderLevel:
		return "Low Stock"
	default:
		return "In Stock"
	}
}
