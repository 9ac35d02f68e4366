package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
)

var countNow = time.Date(2025, 4, 30, 22, 0, 0, 0, time.UTC)

func newCountService(items ...models.InventoryItem) (*PhysicalCountService, *repositories.MemoryInventoryRepository, *repositories.MemoryStockMovementRepository) {
	inventory := repositories.NewMemoryInventoryRepository(items...)
	movements := repositories.NewMemoryStockMovementRepository()
	clock := func() time.Time { return countNow }
	return NewPhysicalCountService(inventory, movements, NewBatchLedger(30, clock), nil, nil, nil, clock), inventory, movements
}

func TestRecordCountAgainstTheoreticalStock(t *testing.T) {
	theoretical := 12.0
	item := models.InventoryItem{
		ID: "inv-1", IngredientID: "rice", LocationID: "loc-1", Unit: "kg", CostPerUnit: 2,
		Stock:            10,
		TheoreticalStock: &theoretical,
		Batches: []models.Batch{
			{ID: "b1", CurrentQuantity: 10, InitialQuantity: 10, ExpiresAt: countNow.AddDate(0, 0, 5)},
		},
	}
	s, inventory, movements := newCountService(item)

	res, err := s.RecordCount(context.Background(), "inv-1", 15, "auditor", "")
	require.NoError(t, err)

	assert.Equal(t, 3.0, res.Variance)
	assert.Equal(t, 12.0, res.TheoreticalStock)

	stored, err := inventory.GetByID(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, stored.Stock)
	require.NotNil(t, stored.TheoreticalStock)
	assert.Equal(t, 15.0, *stored.TheoreticalStock)
	require.NotNil(t, stored.LastPhysicalCount)
	assert.Equal(t, 15.0, *stored.LastPhysicalCount)
	require.NotNil(t, stored.LastCountedAt)
	assert.True(t, stored.LastCountedAt.Equal(countNow))
	assert.Equal(t, stored.Stock, TotalStock(stored.Batches))

	log := movements.All()
	require.Len(t, log, 1)
	assert.Equal(t, models.MovementAdjustment, log[0].Type)
	assert.Equal(t, 3.0, log[0].Quantity)
	assert.Equal(t, "auditor", log[0].UserID)
}

func TestRecordCountFallsBackToStock(t *testing.T) {
	item := models.InventoryItem{
		ID: "inv-1", IngredientID: "rice", LocationID: "loc-1", Unit: "kg",
		Stock: 20,
		Batches: []models.Batch{
			{ID: "old", CurrentQuantity: 5, InitialQuantity: 5, ExpiresAt: countNow.AddDate(0, 0, 1)},
			{ID: "new", CurrentQuantity: 15, InitialQuantity: 15, ExpiresAt: countNow.AddDate(0, 0, 9)},
		},
	}
	s, inventory, _ := newCountService(item)

	res, err := s.RecordCount(context.Background(), "inv-1", 18, "auditor", "monthly count")
	require.NoError(t, err)
	assert.Equal(t, -2.0, res.Variance)

	stored, err := inventory.GetByID(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, 18.0, stored.Stock)
	require.Len(t, stored.Batches, 2)
	assert.Equal(t, 3.0, stored.Batches[0].CurrentQuantity)
	assert.Equal(t, 18.0, TotalStock(stored.Batches))
}

func TestRecordCountSurplusCreatesBatch(t *testing.T) {
	item := models.InventoryItem{ID: "inv-1", IngredientID: "salt", LocationID: "loc-1", Unit: "kg", CostPerUnit: 0.4}
	s, inventory, _ := newCountService(item)

	_, err := s.RecordCount(context.Background(), "inv-1", 4, "auditor", "")
	require.NoError(t, err)

	stored, err := inventory.GetByID(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Len(t, stored.Batches, 1)
	assert.Equal(t, "COUNT-20250430", stored.Batches[0].LotNumber)
	assert.Equal(t, 0.4, stored.Batches[0].CostPerUnit)
	assert.Equal(t, 4.0, stored.Stock)
}

func TestRecordCountErrors(t *testing.T) {
	s, _, _ := newCountService()

	_, err := s.RecordCount(context.Background(), "missing", 1, "auditor", "")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = s.RecordCount(context.Background(), "missing", -1, "auditor", "")
	assert.ErrorIs(t, err, ErrValidation)
}
