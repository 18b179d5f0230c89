package consumers

import (
	"context"
	"fmt"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/logger"
	"github.com/medtrack/medtrack-backend/pkg/messaging"
)

// CatalogEventHandler applies catalog events to the local reference tables
// (testable without RabbitMQ)
type CatalogEventHandler struct {
	catalogRepo *repository.CatalogRepository
	logger      *logger.Logger
}

// NewCatalogEventHandler creates a new handler for testing purposes
func NewCatalogEventHandler(catalogRepo *repository.CatalogRepository, log *logger.Logger) *CatalogEventHandler {
	return &CatalogEventHandler{
		catalogRepo: catalogRepo,
		logger:      log,
	}
}

// HandleEvent routes a catalog event to its handler
func (h *CatalogEventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventCatalogItemUpserted:
		return h.handleItemUpserted(ctx, event)
	case messaging.EventCatalogItemDeleted:
		return h.handleItemDeleted(ctx, event)
	case messaging.EventCatalogPharmacyUpserted:
		return h.handlePharmacyUpserted(ctx, event)
	case messaging.EventCatalogSupplierUpserted:
		return h.handleSupplierUpserted(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

// CatalogEventConsumer keeps the local catalog mirror in sync with the
// catalog service
type CatalogEventConsumer struct {
	consumer *messaging.Consumer
	handler  *CatalogEventHandler
	logger   *logger.Logger
}

// NewCatalogEventConsumer creates a new catalog event consumer
func NewCatalogEventConsumer(rmq *messaging.RabbitMQ, catalogRepo *repository.CatalogRepository, log *logger.Logger) (*CatalogEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "pharmacy-service.catalog-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, "catalog.#"); err != nil {
		return nil, err
	}

	handler := NewCatalogEventHandler(catalogRepo, log)

	consumer.RegisterHandler(messaging.EventCatalogItemUpserted, handler.handleItemUpserted)
	consumer.RegisterHandler(messaging.EventCatalogItemDeleted, handler.handleItemDeleted)
	consumer.RegisterHandler(messaging.EventCatalogPharmacyUpserted, handler.handlePharmacyUpserted)
	consumer.RegisterHandler(messaging.EventCatalogSupplierUpserted, handler.handleSupplierUpserted)

	return &CatalogEventConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   log,
	}, nil
}

// Start starts consuming messages
func (c *CatalogEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (h *CatalogEventHandler) handleItemUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogItemEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal CatalogItemEvent")
		return err
	}

	item := &repository.InventoryItem{
		ID:           data.ItemID,
		GenericName:  data.GenericName,
		BrandName:    data.BrandName,
		Strength:     data.Strength,
		Form:         data.Form,
		ReorderLevel: data.ReorderLevel,
	}
	if err := h.catalogRepo.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("failed to upsert catalog item %s: %w", data.ItemID, err)
	}

	h.logger.Info().Str("item_id", data.ItemID).Msg("catalog item synced")
	return nil
}

func (h *CatalogEventHandler) handleItemDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal CatalogDeletedEvent")
		return err
	}

	if err := h.catalogRepo.DeleteItem(ctx, data.ID); err != nil {
		return fmt.Errorf("failed to delete catalog item %s: %w", data.ID, err)
	}

	h.logger.Info().Str("item_id", data.ID).Msg("catalog item removed")
	return nil
}

func (h *CatalogEventHandler) handlePharmacyUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogPharmacyEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal CatalogPharmacyEvent")
		return err
	}

	pharmacy := &repository.Pharmacy{ID: data.PharmacyID, Name: data.Name}
	if err := h.catalogRepo.UpsertPharmacy(ctx, pharmacy); err != nil {
		return fmt.Errorf("failed to upsert pharmacy %s: %w", data.PharmacyID, err)
	}

	h.logger.Info().Str("pharmacy_id", data.PharmacyID).Msg("pharmacy synced")
	return nil
}

func (h *CatalogEventHandler) handleSupplierUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogSupplierEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal CatalogSupplierEvent")
		return err
	}

	supplier := &repository.Supplier{ID: data.SupplierID, Name: data.Name}
	if err := h.catalogRepo.UpsertSupplier(ctx, supplier); err != nil {
		return fmt.Errorf("failed to upsert supplier %s: %w", data.SupplierID, err)
	}

	h.logger.Info().Str("supplier_id", data.SupplierID).Msg("supplier synced")
	return nil
}
