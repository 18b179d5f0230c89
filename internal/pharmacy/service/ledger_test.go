package service

import (
	"testing"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCorrection(t *testing.T) {
	tests := []struct {
		name      string
		typ       repository.MovementType
		qty       int
		wantField string
	}{
		{name: "receive not allowed manually", typ: repository.MovementReceive, qty: 5, wantField: "type"},
		{name: "dispense not allowed manually", typ: repository.MovementDispense, qty: -5, wantField: "type"},
		{name: "sale not allowed manually", typ: repository.MovementSale, qty: -5, wantField: "type"},
		{name: "zero quantity", typ: repository.MovementAdjust, qty: 0, wantField: "qty_units"},
		{name: "positive waste", typ: repository.MovementWaste, qty: 3, wantField: "qty_units"},
		{name: "zero waste", typ: repository.MovementWaste, qty: 0, wantField: "qty_units"},
		{name: "negative waste ok", typ: repository.MovementWaste, qty: -3},
		{name: "positive adjust ok", typ: repository.MovementAdjust, qty: 3},
		{name: "negative adjust ok", typ: repository.MovementAdjust, qty: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := validateCorrection(tt.typ, tt.qty)
			if tt.wantField == "" {
				assert.Nil(t, details)
				return
			}
			require.NotNil(t, details)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestStockStatus(t *testing.T) {
	tests := []struct {
		total   int
		reorder int
		want    string
	}{
		{0, 100, "Out of Stock"},
		{40, 100, "Critical"},
		{50, 100, "Critical"},
		{51, 100, "Low Stock"},
		{100, 100, "Low Stock"},
		{101, 100, "In Stock"},
		{10, 0, "In Stock"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stockStatus(tt.total, tt.reorder), "total=%d reorder=%d", tt.total, tt.reorder)
	}
}
