package consumers_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/consumers"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/logger"
	"github.com/medtrack/medtrack-backend/pkg/messaging"
	"github.com/medtrack/medtrack-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		panic("failed to create integration suite: " + err.Error())
	}
	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func newHandler(t *testing.T, ctx context.Context) (*consumers.CatalogEventHandler, *repository.CatalogRepository) {
	t.Helper()
	suite.Reset(t, ctx)
	repo := repository.NewCatalogRepository(suite.DB)
	return consumers.NewCatalogEventHandler(repo, logger.New("test", "test")), repo
}

func mustEvent(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(eventType, "catalog-service", "", data)
	require.NoError(t, err)
	return event
}

func TestCatalogConsumer_ItemUpserted(t *testing.T) {
	ctx := context.Background()
	handler, repo := newHandler(t, ctx)

	itemID := uuid.New().String()
	brand := "Doliprane"
	event := mustEvent(t, messaging.EventCatalogItemUpserted, messaging.CatalogItemEvent{
		ItemID:       itemID,
		GenericName:  "Paracetamol 500mg",
		BrandName:    &brand,
		ReorderLevel: 100,
	})

	require.NoError(t, handler.HandleEvent(ctx, event))

	item, err := repo.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol 500mg", item.GenericName)
	assert.Equal(t, 100, item.ReorderLevel)
	require.NotNil(t, item.BrandName)
	assert.Equal(t, "Doliprane", *item.BrandName)
}

func TestCatalogConsumer_ItemUpserted_Idempotent(t *testing.T) {
	ctx := context.Background()
	handler, repo := newHandler(t, ctx)

	itemID := uuid.New().String()
	first := mustEvent(t, messaging.EventCatalogItemUpserted, messaging.CatalogItemEvent{
		ItemID:      itemID,
		GenericName: "Amoxicillin 250mg",
	})
	require.NoError(t, handler.HandleEvent(ctx, first))

	// Replaying with changed data updates in place
	second := mustEvent(t, messaging.EventCatalogItemUpserted, messaging.CatalogItemEvent{
		ItemID:       itemID,
		GenericName:  "Amoxicillin 250mg",
		ReorderLevel: 40,
	})
	require.NoError(t, handler.HandleEvent(ctx, second))

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 40, items[0].ReorderLevel)
}

func TestCatalogConsumer_ItemDeleted(t *testing.T) {
	ctx := context.Background()
	handler, repo := newHandler(t, ctx)

	itemID := uuid.New().String()
	upsert := mustEvent(t, messaging.EventCatalogItemUpserted, messaging.CatalogItemEvent{
		ItemID:      itemID,
		GenericName: "Ibuprofen 400mg",
	})
	require.NoError(t, handler.HandleEvent(ctx, upsert))

	del := mustEvent(t, messaging.EventCatalogItemDeleted, messaging.CatalogDeletedEvent{ID: itemID})
	require.NoError(t, handler.HandleEvent(ctx, del))

	_, err := repo.GetItem(ctx, itemID)
	require.Error(t, err)
}

func TestCatalogConsumer_PharmacyAndSupplierUpserted(t *testing.T) {
	ctx := context.Background()
	handler, repo := newHandler(t, ctx)

	pharmacyID := uuid.New().String()
	supplierID := uuid.New().String()

	require.NoError(t, handler.HandleEvent(ctx, mustEvent(t, messaging.EventCatalogPharmacyUpserted,
		messaging.CatalogPharmacyEvent{PharmacyID: pharmacyID, Name: "Central Pharmacy"})))
	require.NoError(t, handler.HandleEvent(ctx, mustEvent(t, messaging.EventCatalogSupplierUpserted,
		messaging.CatalogSupplierEvent{SupplierID: supplierID, Name: "PharmaDist"})))

	pharmacy, err := repo.GetPharmacy(ctx, pharmacyID)
	require.NoError(t, err)
	assert.Equal(t, "Central Pharmacy", pharmacy.Name)

	supplier, err := repo.GetSupplier(ctx, supplierID)
	require.NoError(t, err)
	assert.Equal(t, "PharmaDist", supplier.Name)
}

func TestCatalogConsumer_UnknownEventTypeIsIgnored(t *testing.T) {
	ctx := context.Background()
	handler, _ := newHandler(t, ctx)

	event := mustEvent(t, "catalog.something.else", map[string]string{"id": "x"})
	assert.NoError(t, handler.HandleEvent(ctx, event))
}
