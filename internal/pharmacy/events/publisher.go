package events

import (
	"context"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/logger"
	"github.com/medtrack/medtrack-backend/pkg/messaging"
)

// StockEventPublisher publishes stock ledger events
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishStockReceived publishes a stock received event
func (p *StockEventPublisher) PublishStockReceived(ctx context.Context, batch *repository.Batch, receivedBy string) {
	data := messaging.StockReceivedEvent{
		BatchID:    batch.ID,
		PharmacyID: batch.PharmacyID,
		ItemID:     batch.ItemID,
		SupplierID: batch.SupplierID,
		BatchNo:    batch.BatchNo,
		ExpiryDate: batch.ExpiryDate,
		QtyUnits:   batch.QtyReceivedUnits,
		ReceivedBy: receivedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish stock received event")
	}
}

// DispenseSummary is the outcome of a dispense for event publishing
type DispenseSummary struct {
	PharmacyID    string
	ItemID        string
	MovementType  repository.MovementType
	TotalQuantity int
	PatientID     *string
	Allocations   []messaging.BatchAllocation
	DispensedBy   string
}

// PublishStockDispensed publishes a stock dispensed event
func (p *StockEventPublisher) PublishStockDispensed(ctx context.Context, summary DispenseSummary) {
	data := messaging.StockDispensedEvent{
		PharmacyID:    summary.PharmacyID,
		ItemID:        summary.ItemID,
		MovementType:  string(summary.MovementType),
		TotalQuantity: summary.TotalQuantity,
		PatientID:     summary.PatientID,
		Allocations:   summary.Allocations,
		DispensedBy:   summary.DispensedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockDispensed, data); err != nil {
		p.logger.Error().Err(err).
			Str("pharmacy_id", summary.PharmacyID).
			Str("item_id", summary.ItemID).
			Msg("failed to publish stock dispensed event")
	}
}

// PublishMovementRecorded publishes a manual correction event
func (p *StockEventPublisher) PublishMovementRecorded(ctx context.Context, movement *repository.Movement) {
	data := messaging.MovementRecordedEvent{
		MovementID:   movement.ID,
		PharmacyID:   movement.PharmacyID,
		ItemID:       movement.ItemID,
		BatchID:      movement.BatchID,
		MovementType: string(movement.Type),
		QtyUnits:     movement.QtyUnits,
		Reference:    movement.Reference,
		RecordedBy:   movement.CreatedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMovementRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("movement_id", movement.ID).Msg("failed to publish movement recorded event")
	}
}
