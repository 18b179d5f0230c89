package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Pharmacy stock events
	EventStockReceived    = "pharmacy.stock.received"
	EventStockDispensed   = "pharmacy.stock.dispensed"
	EventMovementRecorded = "pharmacy.stock.movement"

	// Catalog reference events (published by the external catalog service)
	EventCatalogItemUpserted     = "catalog.item.upserted"
	EventCatalogItemDeleted      = "catalog.item.deleted"
	EventCatalogPharmacyUpserted = "catalog.pharmacy.upserted"
	EventCatalogSupplierUpserted = "catalog.supplier.upserted"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
	ExchangeCatalogEvents  = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Pharmacy stock events

// StockReceivedEvent is published when a batch is received into stock
type StockReceivedEvent struct {
	BatchID    string     `json:"batch_id"`
	PharmacyID string     `json:"pharmacy_id"`
	ItemID     string     `json:"item_id"`
	SupplierID string     `json:"supplier_id"`
	BatchNo    string     `json:"batch_no"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	QtyUnits   int        `json:"qty_units"`
	ReceivedBy string     `json:"received_by"`
}

// StockDispensedEvent is published when stock is dispensed or sold
type StockDispensedEvent struct {
	PharmacyID    string            `json:"pharmacy_id"`
	ItemID        string            `json:"item_id"`
	MovementType  string            `json:"movement_type"`
	TotalQuantity int               `json:"total_quantity"`
	PatientID     *string           `json:"patient_id,omitempty"`
	Allocations   []BatchAllocation `json:"allocations"`
	DispensedBy   string            `json:"dispensed_by"`
}

// BatchAllocation is one batch debit within a dispense event
type BatchAllocation struct {
	BatchID      string     `json:"batch_id"`
	BatchNo      string     `json:"batch_no"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	QtyAllocated int        `json:"qty_allocated"`
}

// MovementRecordedEvent is published for manual ADJUST/WASTE corrections
type MovementRecordedEvent struct {
	MovementID   string  `json:"movement_id"`
	PharmacyID   string  `json:"pharmacy_id"`
	ItemID       string  `json:"item_id"`
	BatchID      string  `json:"batch_id"`
	MovementType string  `json:"movement_type"`
	QtyUnits     int     `json:"qty_units"`
	Reference    *string `json:"reference,omitempty"`
	RecordedBy   string  `json:"recorded_by"`
}

// Catalog reference events

// CatalogItemEvent carries an inventory item from the catalog service
type CatalogItemEvent struct {
	ItemID       string  `json:"item_id"`
	GenericName  string  `json:"generic_name"`
	BrandName    *string `json:"brand_name,omitempty"`
	Strength     *string `json:"strength,omitempty"`
	Form         *string `json:"form,omitempty"`
	ReorderLevel int     `json:"reorder_level"`
}

// CatalogPharmacyEvent carries a pharmacy from the catalog service
type CatalogPharmacyEvent struct {
	PharmacyID string `json:"pharmacy_id"`
	Name       string `json:"name"`
}

// CatalogSupplierEvent carries a supplier from the catalog service
type CatalogSupplierEvent struct {
	SupplierID string `json:"supplier_id"`
	Name       string `json:"name"`
}

// CatalogDeletedEvent carries the id of a deleted catalog record
type CatalogDeletedEvent struct {
	ID string `json:"id"`
}
