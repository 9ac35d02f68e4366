package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenledger/server/internal/events"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
)

var migrationNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type migrationFixture struct {
	ingredients *repositories.MemoryIngredientRepository
	inventory   *repositories.MemoryInventoryRepository
	movements   *repositories.MemoryStockMovementRepository
	publisher   *recordingPublisher
	service     *StockMigrationService
}

func newMigrationFixture(ingredients []models.Ingredient, items ...models.InventoryItem) *migrationFixture {
	f := &migrationFixture{
		ingredients: repositories.NewMemoryIngredientRepository(ingredients...),
		inventory:   repositories.NewMemoryInventoryRepository(items...),
		movements:   repositories.NewMemoryStockMovementRepository(),
		publisher:   &recordingPublisher{},
	}
	clock := func() time.Time { return migrationNow }
	f.service = NewStockMigrationService(f.ingredients, f.inventory, f.movements, NewBatchLedger(30, clock), nil, f.publisher, clock)
	return f
}

func TestMigrateIngredientCreatesSyntheticBatch(t *testing.T) {
	f := newMigrationFixture([]models.Ingredient{
		{ID: "oil", Name: "Olive oil", Unit: "l", CostPerUnit: 7.5, Stock: 12, ShelfLifeDays: 90, LocationID: "loc-1"},
	})

	res, err := f.service.MigrateIngredient(context.Background(), "oil", "", "chef")
	require.NoError(t, err)
	require.True(t, res.Migrated)
	assert.Equal(t, 12.0, res.Quantity)

	item, err := f.inventory.QueryByIngredientAndLocation(context.Background(), "oil", "loc-1")
	require.NoError(t, err)
	require.Len(t, item.Batches, 1)
	batch := item.Batches[0]
	assert.Equal(t, "LOT-20250601", batch.LotNumber)
	assert.Equal(t, 7.5, batch.CostPerUnit)
	assert.True(t, batch.ExpiresAt.Equal(migrationNow.AddDate(0, 0, 90)))
	assert.Equal(t, 12.0, item.Stock)

	ingredient, err := f.ingredients.GetByID(context.Background(), "oil")
	require.NoError(t, err)
	assert.Zero(t, ingredient.Stock)

	log := f.movements.All()
	require.Len(t, log, 1)
	assert.Equal(t, models.MovementMigration, log[0].Type)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.StockMigrated, f.publisher.events[0].Type)
}

func TestMigrateIngredientIsIdempotent(t *testing.T) {
	f := newMigrationFixture([]models.Ingredient{
		{ID: "oil", Unit: "l", Stock: 12, LocationID: "loc-1"},
	})

	_, err := f.service.MigrateIngredient(context.Background(), "oil", "loc-1", "chef")
	require.NoError(t, err)

	res, err := f.service.MigrateIngredient(context.Background(), "oil", "loc-1", "chef")
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Len(t, res.Item.Batches, 1)
	assert.Len(t, f.movements.All(), 1)
}

func TestMigrateIngredientZeroStock(t *testing.T) {
	f := newMigrationFixture(
		[]models.Ingredient{{ID: "salt", Unit: "kg", LocationID: "loc-1"}},
		models.InventoryItem{ID: "inv-salt", IngredientID: "salt", LocationID: "loc-1", Unit: "kg"},
	)

	res, err := f.service.MigrateIngredient(context.Background(), "salt", "loc-1", "chef")
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.Zero(t, res.Quantity)
	assert.Empty(t, res.Item.Batches)
	assert.Empty(t, f.movements.All())
}

func TestMigrateIngredientNotFound(t *testing.T) {
	f := newMigrationFixture(nil)

	_, err := f.service.MigrateIngredient(context.Background(), "ghost", "loc-1", "chef")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestExpiringBatches(t *testing.T) {
	f := newMigrationFixture(nil, models.InventoryItem{
		ID: "inv-1", IngredientID: "cream", LocationID: "loc-1", Unit: "l",
		Batches: []models.Batch{
			{ID: "late", CurrentQuantity: 1, ExpiresAt: migrationNow.AddDate(0, 0, 10)},
			{ID: "soon", CurrentQuantity: 1, ExpiresAt: migrationNow.AddDate(0, 0, 2)},
			{ID: "edge", CurrentQuantity: 1, ExpiresAt: migrationNow.AddDate(0, 0, 3)},
		},
	})

	batches, err := f.service.ExpiringBatches(context.Background(), "inv-1", 3)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "soon", batches[0].ID)
	assert.Equal(t, "edge", batches[1].ID)

	_, err = f.service.ExpiringBatches(context.Background(), "inv-1", -1)
	assert.ErrorIs(t, err, ErrValidation)
}
