package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/events"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/medtrack/medtrack-backend/pkg/messaging"
)

// DispenseKind distinguishes a recorded patient dispense from an anonymous
// over-the-counter sale. The interface is sealed; the only implementations
// are PatientDispense and AnonymousSale.
type DispenseKind interface {
	movementType() repository.MovementType
	patientID() *string
}

// PatientDispense records stock leaving against a known patient
type PatientDispense struct {
	PatientID string
}

func (d PatientDispense) movementType() repository.MovementType { return repository.MovementDispense }
func (d PatientDispense) patientID() *string                    { return &d.PatientID }

// AnonymousSale records an over-the-counter sale with no patient attached
type AnonymousSale struct{}

func (AnonymousSale) movementType() repository.MovementType { return repository.MovementSale }
func (AnonymousSale) patientID() *string                    { return nil }

// DispenseInput is a request to remove stock for one item at one pharmacy
type DispenseInput struct {
	PharmacyID string
	ItemID     string
	Quantity   int
	Kind       DispenseKind
	Reference  *string
	CreatedBy  string
}

// Allocation is the slice of a dispense fulfilled from one batch
type Allocation struct {
	BatchID      string     `json:"batch_id"`
	MovementID   string     `json:"movement_id"`
	BatchNo      string     `json:"batch_no"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	QtyAllocated int        `json:"qty_allocated"`
}

// DispenseResult describes how a dispense was split across batches
type DispenseResult struct {
	Type          repository.MovementType `json:"type"`
	TotalQuantity int                     `json:"total_quantity"`
	Allocations   []Allocation            `json:"allocations"`
}

// Dispense removes stock for an item, drawing from batches in soonest-expiry
// order. The whole request succeeds or nothing is written; a shortfall against
// the locked batch set rolls everything back.
func (s *LedgerService) Dispense(ctx context.Context, input DispenseInput) (*DispenseResult, error) {
	if details := validateDispense(input); details != nil {
		return nil, errors.Validation(details)
	}

	if _, err := s.catalogRepo.GetPharmacy(ctx, input.PharmacyID); err != nil {
		return nil, err
	}
	if _, err := s.catalogRepo.GetItem(ctx, input.ItemID); err != nil {
		return nil, err
	}

	movementType := input.Kind.movementType()
	patientID := input.Kind.patientID()

	var result *DispenseResult
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		batches, err := s.batchRepo.ListForAllocation(ctx, tx, input.PharmacyID, input.ItemID)
		if err != nil {
			return err
		}

		allocations, err := computeAllocations(batches, input.Quantity)
		if err != nil {
			return err
		}

		for i := range allocations {
			alloc := &allocations[i]
			if _, err := s.batchRepo.ApplyDelta(ctx, tx, alloc.BatchID, -alloc.QtyAllocated); err != nil {
				return err
			}
			movement := &repository.Movement{
				PharmacyID: input.PharmacyID,
				ItemID:     input.ItemID,
				BatchID:    alloc.BatchID,
				Type:       movementType,
				QtyUnits:   -alloc.QtyAllocated,
				PatientID:  patientID,
				Reference:  input.Reference,
				CreatedBy:  input.CreatedBy,
			}
			if err := s.movementRepo.Insert(ctx, tx, movement); err != nil {
				return err
			}
			alloc.MovementID = movement.ID
		}

		result = &DispenseResult{
			Type:          movementType,
			TotalQuantity: input.Quantity,
			Allocations:   allocations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("pharmacy_id", input.PharmacyID).
		Str("item_id", input.ItemID).
		Str("type", string(result.Type)).
		Int("qty_units", result.TotalQuantity).
		Int("batches", len(result.Allocations)).
		Msg("stock dispensed")

	if s.publisher == nil {
		return result, nil
	}

	eventAllocations := make([]messaging.BatchAllocation, len(result.Allocations))
	for i, alloc := range result.Allocations {
		eventAllocations[i] = messaging.BatchAllocation{
			BatchID:      alloc.BatchID,
			BatchNo:      alloc.BatchNo,
			ExpiryDate:   alloc.ExpiryDate,
			QtyAllocated: alloc.QtyAllocated,
		}
	}
	s.publisher.PublishStockDispensed(ctx, events.DispenseSummary{
		PharmacyID:    input.PharmacyID,
		ItemID:        input.ItemID,
		MovementType:  result.Type,
		TotalQuantity: result.TotalQuantity,
		PatientID:     patientID,
		Allocations:   eventAllocations,
		DispensedBy:   input.CreatedBy,
	})

	return result, nil
}

func validateDispense(input DispenseInput) map[string]string {
	if input.Quantity <= 0 {
		return map[string]string{"quantity": "must be a positive integer"}
	}
	if input.Kind == nil {
		return map[string]string{"type": "must be one of: DISPENSE, SALE"}
	}
	if d, ok := input.Kind.(PatientDispense); ok && d.PatientID == "" {
		return map[string]string{"patient_id": "this field is required for a patient dispense"}
	}
	return nil
}

// computeAllocations walks batches in the order given, taking from each until
// the requested quantity is covered. Callers pass batches already sorted by
// soonest expiry (never-expiring last). Returns ErrInsufficientStock when the
// batches cannot cover the request.
func computeAllocations(batches []*repository.Batch, requested int) ([]Allocation, error) {
	remaining := requested
	allocations := make([]Allocation, 0, 1)
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		if batch.QtyOnHandUnits <= 0 {
			continue
		}
		take := batch.QtyOnHandUnits
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, Allocation{
			BatchID:      batch.ID,
			BatchNo:      batch.BatchNo,
			ExpiryDate:   batch.ExpiryDate,
			QtyAllocated: take,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, errors.InsufficientStock(requested, requested-remaining)
	}
	return allocations, nil
}
