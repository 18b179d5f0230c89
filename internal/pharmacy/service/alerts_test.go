package service

import (
	"testing"
	"time"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alertNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func expiry(days int) *time.Time {
	d := alertNow.AddDate(0, 0, days)
	return &d
}

func testItems() map[string]*repository.InventoryItem {
	brand := "Doliprane"
	return map[string]*repository.InventoryItem{
		"item-1": {ID: "item-1", GenericName: "Paracetamol 500mg", BrandName: &brand, ReorderLevel: 100},
		"item-2": {ID: "item-2", GenericName: "Amoxicillin 250mg", ReorderLevel: 50},
	}
}

func alertBatch(id, itemID string, exp *time.Time, received, onHand int) *repository.Batch {
	return &repository.Batch{
		ID:               id,
		ItemID:           itemID,
		BatchNo:          "LOT-" + id,
		ExpiryDate:       exp,
		QtyReceivedUnits: received,
		QtyOnHandUnits:   onHand,
	}
}

func TestExpirySeverity(t *testing.T) {
	tests := []struct {
		days int
		want Severity
	}{
		{-10, SeverityCritical},
		{0, SeverityCritical},
		{20, SeverityCritical},
		{30, SeverityCritical},
		{31, SeverityWarning},
		{60, SeverityWarning},
		{90, SeverityWarning},
		{91, SeverityInfo},
		{100, SeverityInfo},
		{200, SeverityInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, expirySeverity(tt.days), "days=%d", tt.days)
	}
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 0, daysUntil(alertNow, alertNow))
	assert.Equal(t, 30, daysUntil(alertNow, alertNow.AddDate(0, 0, 30)))
	assert.Equal(t, -5, daysUntil(alertNow, alertNow.AddDate(0, 0, -5)))
	// Time of day does not change the day count
	assert.Equal(t, 1, daysUntil(alertNow, time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)))
}

func TestComputeExpiryAlerts(t *testing.T) {
	batches := []*repository.Batch{
		alertBatch("expired", "item-1", expiry(-3), 50, 10),
		alertBatch("soon", "item-1", expiry(20), 50, 40),
		alertBatch("mid", "item-2", expiry(60), 30, 30),
		alertBatch("far", "item-2", expiry(200), 30, 30),
		alertBatch("empty", "item-1", expiry(5), 50, 0),
		alertBatch("undated", "item-1", nil, 50, 50),
	}

	alerts := computeExpiryAlerts(batches, testItems(), alertNow, 120)

	// far is beyond the lookahead; empty and undated never alert
	require.Len(t, alerts, 3)

	// Sorted soonest first
	assert.Equal(t, "expired", alerts[0].BatchID)
	assert.True(t, alerts[0].Expired)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, -3, alerts[0].DaysUntilExpiry)

	assert.Equal(t, "soon", alerts[1].BatchID)
	assert.False(t, alerts[1].Expired)
	assert.Equal(t, SeverityCritical, alerts[1].Severity)

	assert.Equal(t, "mid", alerts[2].BatchID)
	assert.Equal(t, SeverityWarning, alerts[2].Severity)
	assert.Equal(t, "Doliprane", alerts[0].ItemName)
}

func TestComputeLowStockAlerts(t *testing.T) {
	items := testItems() // item-1 reorder 100, item-2 reorder 50

	tests := []struct {
		name    string
		total   int
		itemID  string
		want    Severity
		noAlert bool
	}{
		{name: "out of stock", total: 0, itemID: "item-1", want: SeverityCritical},
		{name: "at half", total: 50, itemID: "item-1", want: SeverityWarning},
		{name: "below half", total: 40, itemID: "item-1", want: SeverityWarning},
		{name: "above half below reorder", total: 80, itemID: "item-1", want: SeverityInfo},
		{name: "at reorder", total: 100, itemID: "item-1", want: SeverityInfo},
		{name: "above reorder", total: 150, itemID: "item-1", noAlert: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stocks := []*repository.ItemStock{{ItemID: tt.itemID, TotalUnits: tt.total}}
			alerts := computeLowStockAlerts(stocks, items)
			if tt.noAlert {
				assert.Empty(t, alerts)
				return
			}
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.want, alerts[0].Severity)
			assert.Equal(t, tt.total, alerts[0].TotalStock)
		})
	}
}

func TestComputeLowStockAlerts_SkipsUnknownItemAndZeroReorder(t *testing.T) {
	items := map[string]*repository.InventoryItem{
		"no-reorder": {ID: "no-reorder", GenericName: "Saline", ReorderLevel: 0},
	}
	stocks := []*repository.ItemStock{
		{ItemID: "no-reorder", TotalUnits: 0},
		{ItemID: "unknown", TotalUnits: 0},
	}

	assert.Empty(t, computeLowStockAlerts(stocks, items))
}

func TestComputeFifoWarnings(t *testing.T) {
	// The newer batch was partially used while the older one still holds
	// stock: a rotation violation against the older batch.
	batches := []*repository.Batch{
		alertBatch("older", "item-1", expiry(30), 50, 20),
		alertBatch("newer", "item-1", expiry(120), 100, 60),
	}

	warnings := computeFifoWarnings(batches, testItems())
	require.Len(t, warnings, 1)
	assert.Equal(t, "older", warnings[0].BatchID)
	assert.Equal(t, 20, warnings[0].QtyOnHandUnits)
	assert.Equal(t, SeverityWarning, warnings[0].Severity)
}

func TestComputeFifoWarnings_CleanRotation(t *testing.T) {
	// Only the older batch has been touched, so no warning.
	batches := []*repository.Batch{
		alertBatch("older", "item-1", expiry(30), 50, 20),
		alertBatch("newer", "item-1", expiry(120), 100, 100),
	}

	assert.Empty(t, computeFifoWarnings(batches, testItems()))
}

func TestComputeFifoWarnings_OlderDepleted(t *testing.T) {
	// Older batch fully drained before the newer was touched: clean.
	batches := []*repository.Batch{
		alertBatch("older", "item-1", expiry(30), 50, 0),
		alertBatch("newer", "item-1", expiry(120), 100, 40),
	}

	assert.Empty(t, computeFifoWarnings(batches, testItems()))
}

func TestComputeFifoWarnings_UndatedNewerBatch(t *testing.T) {
	// A never-expiring batch counts as later than any dated batch.
	batches := []*repository.Batch{
		alertBatch("dated", "item-1", expiry(30), 50, 20),
		alertBatch("undated", "item-1", nil, 100, 60),
	}

	warnings := computeFifoWarnings(batches, testItems())
	require.Len(t, warnings, 1)
	assert.Equal(t, "dated", warnings[0].BatchID)
}

func TestComputeFifoWarnings_DifferentItemsDoNotInteract(t *testing.T) {
	batches := []*repository.Batch{
		alertBatch("a", "item-1", expiry(30), 50, 20),
		alertBatch("b", "item-2", expiry(120), 100, 60),
	}

	assert.Empty(t, computeFifoWarnings(batches, testItems()))
}

func TestComputeForecastAlerts(t *testing.T) {
	batches := []*repository.Batch{
		// 90 units on hand, 45 days left. Usage 90 units over 90 days is
		// 1/day, so 45 projected and 45 at risk.
		alertBatch("risky", "item-1", expiry(45), 100, 90),
	}
	usage := map[string]int{"item-1": 90}

	alerts := computeForecastAlerts(batches, testItems(), usage, alertNow, 120, 90)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "risky", a.BatchID)
	assert.InDelta(t, 1.0, a.AvgDailyUsage, 0.001)
	assert.InDelta(t, 45.0, a.ProjectedUsage, 0.001)
	assert.Equal(t, 45, a.RiskUnits)
	assert.Equal(t, SeverityWarning, a.Severity)
}

func TestComputeForecastAlerts_DemandCoversStock(t *testing.T) {
	batches := []*repository.Batch{
		alertBatch("safe", "item-1", expiry(60), 100, 30),
	}
	// 180 over 90 days is 2/day, 120 projected for 60 days
	usage := map[string]int{"item-1": 180}

	assert.Empty(t, computeForecastAlerts(batches, testItems(), usage, alertNow, 120, 90))
}

func TestComputeForecastAlerts_NoDemand(t *testing.T) {
	batches := []*repository.Batch{
		alertBatch("idle", "item-1", expiry(25), 40, 40),
	}

	alerts := computeForecastAlerts(batches, testItems(), nil, alertNow, 120, 90)
	require.Len(t, alerts, 1)
	assert.Equal(t, 40, alerts[0].RiskUnits)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].SuggestedAction, "no recorded demand")
}

func TestComputeForecastAlerts_SkipsExpiredAndOutOfWindow(t *testing.T) {
	batches := []*repository.Batch{
		alertBatch("expired", "item-1", expiry(-1), 40, 40),
		alertBatch("far", "item-1", expiry(150), 40, 40),
		alertBatch("undated", "item-1", nil, 40, 40),
	}

	assert.Empty(t, computeForecastAlerts(batches, testItems(), nil, alertNow, 120, 90))
}

func TestAlertSummary(t *testing.T) {
	var s AlertSummary
	s.add(SeverityCritical)
	s.add(SeverityCritical)
	s.add(SeverityWarning)
	s.add(SeverityInfo)

	assert.Equal(t, 2, s.Critical)
	assert.Equal(t, 1, s.Warning)
	assert.Equal(t, 1, s.Info)
	assert.Equal(t, 4, s.Total)
}
