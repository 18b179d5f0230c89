package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/events"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockDispensedEvent_CarriesAllocations(t *testing.T) {
	summary := events.DispenseSummary{
		PharmacyID:    uuid.New().String(),
		ItemID:        uuid.New().String(),
		MovementType:  repository.MovementDispense,
		TotalQuantity: 100,
		PatientID:     strPtr(uuid.New().String()),
		Allocations: []messaging.BatchAllocation{
			{BatchID: uuid.New().String(), BatchNo: "SOON", QtyAllocated: 30},
			{BatchID: uuid.New().String(), BatchNo: "LATER", QtyAllocated: 70},
		},
		DispensedBy: "pharmacist-1",
	}

	payload := messaging.StockDispensedEvent{
		PharmacyID:    summary.PharmacyID,
		ItemID:        summary.ItemID,
		MovementType:  string(summary.MovementType),
		TotalQuantity: summary.TotalQuantity,
		PatientID:     summary.PatientID,
		Allocations:   summary.Allocations,
		DispensedBy:   summary.DispensedBy,
	}

	event, err := messaging.NewEvent(messaging.EventStockDispensed, "pharmacy-service", uuid.New().String(), payload)
	require.NoError(t, err)
	assert.Equal(t, messaging.EventStockDispensed, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Minute)

	var decoded messaging.StockDispensedEvent
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, summary.PharmacyID, decoded.PharmacyID)
	assert.Equal(t, 100, decoded.TotalQuantity)
	require.Len(t, decoded.Allocations, 2)
	assert.Equal(t, "SOON", decoded.Allocations[0].BatchNo)
	assert.Equal(t, 30, decoded.Allocations[0].QtyAllocated)
	require.NotNil(t, decoded.PatientID)
}

func TestStockDispensedEvent_SaleOmitsPatient(t *testing.T) {
	payload := messaging.StockDispensedEvent{
		PharmacyID:    uuid.New().String(),
		ItemID:        uuid.New().String(),
		MovementType:  "SALE",
		TotalQuantity: 10,
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "patient_id")
}

func strPtr(s string) *string {
	return &s
}
