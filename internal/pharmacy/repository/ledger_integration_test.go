package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/errors"
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

type seededCatalog struct {
	pharmacyID string
	supplierID string
	itemID     string
}

func seedCatalog(t *testing.T, ctx context.Context) seededCatalog {
	t.Helper()
	suite.Reset(t, ctx)
	f := testutil.NewFixtures(suite.RawDB)
	return seededCatalog{
		pharmacyID: f.SeedPharmacy(t, ctx, "Central Pharmacy"),
		supplierID: f.SeedSupplier(t, ctx, "PharmaDist"),
		itemID:     f.SeedItem(t, ctx, "Paracetamol 500mg", 100),
	}
}

func TestBatchRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	cat := seedCatalog(t, ctx)
	repo := repository.NewBatchRepository(suite.DB)

	expiry := time.Now().UTC().AddDate(0, 6, 0)
	batch := &repository.Batch{
		PharmacyID:       cat.pharmacyID,
		ItemID:           cat.itemID,
		SupplierID:       cat.supplierID,
		BatchNo:          "LOT-2026-001",
		ExpiryDate:       &expiry,
		QtyReceivedUnits: 200,
		QtyOnHandUnits:   200,
	}

	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx, batch))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, batch.ID)
	assert.False(t, batch.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-2026-001", got.BatchNo)
	assert.Equal(t, 200, got.QtyOnHandUnits)
	require.NotNil(t, got.ExpiryDate)
}

func TestBatchRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	seedCatalog(t, ctx)
	repo := repository.NewBatchRepository(suite.DB)

	_, err := repo.GetByID(ctx, "9d2d297e-46b9-4bbc-8a55-0d2db8d7f6b9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestBatchRepository_AllocationOrder(t *testing.T) {
	ctx := context.Background()
	cat := seedCatalog(t, ctx)
	f := testutil.NewFixtures(suite.RawDB)

	base := time.Now().UTC().Add(-48 * time.Hour)
	// Received first but expires last, expires first, and no expiry at all
	later := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "LATER", Expiry: testutil.DaysFromNow(180),
		Received: 100, OnHand: 100, ReceivedAt: base,
	})
	soon := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "SOON", Expiry: testutil.DaysFromNow(30),
		Received: 50, OnHand: 50, ReceivedAt: base.Add(time.Hour),
	})
	undated := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "UNDATED", Received: 80, OnHand: 80, ReceivedAt: base.Add(2 * time.Hour),
	})
	// Depleted batches never appear
	f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "EMPTY", Expiry: testutil.DaysFromNow(10),
		Received: 10, OnHand: 0, ReceivedAt: base,
	})

	repo := repository.NewBatchRepository(suite.DB)
	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	batches, err := repo.ListForAllocation(ctx, tx, cat.pharmacyID, cat.itemID)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, soon, batches[0].ID)
	assert.Equal(t, later, batches[1].ID)
	assert.Equal(t, undated, batches[2].ID)
}

func TestBatchRepository_ApplyDelta_ConstraintBackstop(t *testing.T) {
	ctx := context.Background()
	cat := seedCatalog(t, ctx)
	f := testutil.NewFixtures(suite.RawDB)

	batchID := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "LOT-1", Expiry: testutil.DaysFromNow(90),
		Received: 50, OnHand: 30,
	})

	repo := repository.NewBatchRepository(suite.DB)

	// Overdraw below zero is rejected by the CHECK constraint
	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, tx, batchID, -31)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	tx.Rollback()

	// Raising above the received quantity is rejected as well
	tx, err = suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, tx, batchID, 21)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	tx.Rollback()

	// A legal debit sticks
	tx, err = suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	newQty, err := repo.ApplyDelta(ctx, tx, batchID, -30)
	require.NoError(t, err)
	assert.Equal(t, 0, newQty)
	require.NoError(t, tx.Commit())
}

func TestMovementRepository_InsertAndList(t *testing.T) {
	ctx := context.Background()
	cat := seedCatalog(t, ctx)
	f := testutil.NewFixtures(suite.RawDB)

	batchID := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "LOT-1", Expiry: testutil.DaysFromNow(90),
		Received: 100, OnHand: 100,
	})

	repo := repository.NewMovementRepository(suite.DB)
	patient := "8c5f3cf2-24dc-47a8-a2a4-2e1a25b7c1d2"

	insert := func(typ repository.MovementType, qty int, patientID *string) *repository.Movement {
		m := &repository.Movement{
			PharmacyID: cat.pharmacyID,
			ItemID:     cat.itemID,
			BatchID:    batchID,
			Type:       typ,
			QtyUnits:   qty,
			PatientID:  patientID,
			CreatedBy:  "tester",
		}
		tx, err := suite.DB.BeginTxx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, repo.Insert(ctx, tx, m))
		require.NoError(t, tx.Commit())
		return m
	}

	insert(repository.MovementReceive, 100, nil)
	insert(repository.MovementDispense, -10, &patient)
	insert(repository.MovementSale, -5, nil)

	movements, total, err := repo.List(ctx, cat.pharmacyID, repository.MovementFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, movements, 3)

	// Newest first
	assert.Equal(t, repository.MovementSale, movements[0].Type)

	// Filter by type
	dispenses, total, err := repo.List(ctx, cat.pharmacyID, repository.MovementFilter{Type: repository.MovementDispense})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, dispenses, 1)
	require.NotNil(t, dispenses[0].PatientID)
	assert.Equal(t, patient, *dispenses[0].PatientID)

	// Batch ledger oldest first
	ledger, err := repo.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	assert.Equal(t, repository.MovementReceive, ledger[0].Type)
}

func TestMovementRepository_RejectsZeroQuantity(t *testing.T) {
	ctx := context.Background()
	cat := seedCatalog(t, ctx)
	f := testutil.NewFixtures(suite.RawDB)

	batchID := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "LOT-1", Received: 10, OnHand: 10,
	})

	repo := repository.NewMovementRepository(suite.DB)
	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.Insert(ctx, tx, &repository.Movement{
		PharmacyID: cat.pharmacyID,
		ItemID:     cat.itemID,
		BatchID:    batchID,
		Type:       repository.MovementAdjust,
		QtyUnits:   0,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestMovementRepository_UsageByItem(t *testing.T) {
	ctx := context.Background()
	cat := seedCatalog(t, ctx)
	f := testutil.NewFixtures(suite.RawDB)

	batchID := f.SeedBatch(t, ctx, testutil.BatchSeed{
		PharmacyID: cat.pharmacyID, ItemID: cat.itemID, SupplierID: cat.supplierID,
		BatchNo: "LOT-1", Received: 100, OnHand: 100,
	})

	repo := repository.NewMovementRepository(suite.DB)
	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	for _, m := range []*repository.Movement{
		{Type: repository.MovementReceive, QtyUnits: 100},
		{Type: repository.MovementDispense, QtyUnits: -10},
		{Type: repository.MovementSale, QtyUnits: -5},
		{Type: repository.MovementWaste, QtyUnits: -2},
	} {
		m.PharmacyID = cat.pharmacyID
		m.ItemID = cat.itemID
		m.BatchID = batchID
		require.NoError(t, repo.Insert(ctx, tx, m))
	}
	require.NoError(t, tx.Commit())

	since := time.Now().UTC().AddDate(0, 0, -90)
	usage, err := repo.UsageByItem(ctx, cat.pharmacyID, since)
	require.NoError(t, err)
	require.Len(t, usage, 1)

	// RECEIVE and WASTE do not count as demand
	assert.Equal(t, cat.itemID, usage[0].ItemID)
	assert.Equal(t, 15, usage[0].QtyUnits)
}

func TestCatalogRepository_Upserts(t *testing.T) {
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewCatalogRepository(suite.DB)

	pharmacy := &repository.Pharmacy{ID: "4e9b3a66-9a86-41ce-9de1-7d2a3f5c6b88", Name: "North Branch"}
	require.NoError(t, repo.UpsertPharmacy(ctx, pharmacy))

	pharmacy.Name = "North Branch Pharmacy"
	require.NoError(t, repo.UpsertPharmacy(ctx, pharmacy))

	got, err := repo.GetPharmacy(ctx, pharmacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "North Branch Pharmacy", got.Name)

	item := &repository.InventoryItem{
		ID:           "71c4a7d8-91c3-4512-8e19-6f2a1b3c4d5e",
		GenericName:  "Ibuprofen 400mg",
		ReorderLevel: 60,
	}
	require.NoError(t, repo.UpsertItem(ctx, item))

	items, err := repo.ItemsByID(ctx)
	require.NoError(t, err)
	require.Contains(t, items, item.ID)
	assert.Equal(t, 60, items[item.ID].ReorderLevel)

	require.NoError(t, repo.DeleteItem(ctx, item.ID))
	_, err = repo.GetItem(ctx, item.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
