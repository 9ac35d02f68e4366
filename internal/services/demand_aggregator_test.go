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

var demandNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func demandFixture(inventory ...models.InventoryItem) *DemandAggregator {
	ingredients := repositories.NewMemoryIngredientRepository(
		models.Ingredient{ID: "rice", Name: "Rice", Unit: "kg", CostPerUnit: 2},
		models.Ingredient{ID: "oil", Name: "Olive oil", Unit: "l", CostPerUnit: 5},
		models.Ingredient{ID: "eggs", Name: "Eggs", Unit: "pcs", CostPerUnit: 0.25},
	)
	recipes := repositories.NewMemoryRecipeRepository(
		models.Recipe{ID: "paella", YieldPax: 4, Lines: []models.RecipeLine{
			{IngredientID: "rice", Quantity: 1},
			{IngredientID: "oil", Quantity: 100, Unit: "ml"},
		}},
		models.Recipe{ID: "flan", YieldPax: 0, Lines: []models.RecipeLine{
			{IngredientID: "eggs", Quantity: 2},
		}},
	)
	menus := repositories.NewMemoryMenuRepository(
		models.Menu{ID: "m1", RecipeIDs: []string{"paella", "flan"}},
		models.Menu{ID: "m2", RecipeIDs: []string{"paella", "ghost"}},
	)
	events := repositories.NewMemoryEventRepository(
		models.Event{ID: "e1", LocationID: "loc-1", Pax: 8, MenuID: "m1", Date: demandNow.AddDate(0, 0, 1)},
		models.Event{ID: "e2", LocationID: "loc-1", Pax: 4, MenuID: "m2", Date: demandNow.AddDate(0, 0, 2)},
		models.Event{ID: "e3", LocationID: "loc-1", Pax: 10, MenuID: "gone", Date: demandNow.AddDate(0, 0, 3)},
		models.Event{ID: "e4", LocationID: "loc-2", Pax: 50, MenuID: "m1", Date: demandNow.AddDate(0, 0, 1)},
		models.Event{ID: "past", LocationID: "loc-1", Pax: 4, MenuID: "m1", Date: demandNow.AddDate(0, 0, -3)},
	)
	catalog := NewIngredientCatalog(ingredients, 10, nil)
	return NewDemandAggregator(events, menus, recipes, repositories.NewMemoryInventoryRepository(inventory...),
		catalog, NewCostEngine(catalog), func() time.Time { return demandNow })
}

func demandByID(summary *DemandSummary) map[string]IngredientDemand {
	result := make(map[string]IngredientDemand)
	for _, d := range summary.Ingredients {
		result[d.IngredientID] = d
	}
	return result
}

func TestForecastAggregatesScaledQuantities(t *testing.T) {
	a := demandFixture()

	summary, err := a.ForecastNextDays(context.Background(), "loc-1", 7)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.EventsConsidered)
	assert.Equal(t, 22, summary.TotalPax)

	byID := demandByID(summary)
	require.Len(t, byID, 3)

	assert.Equal(t, 3.0, byID["rice"].Quantity)
	assert.Equal(t, "kg", byID["rice"].Unit)
	assert.Equal(t, 2, byID["rice"].EventCount)
	assert.Equal(t, 6.0, byID["rice"].EstimatedCost)

	assert.Equal(t, 0.3, byID["oil"].Quantity)
	assert.Equal(t, "l", byID["oil"].Unit)
	assert.Equal(t, 1.5, byID["oil"].EstimatedCost)

	assert.Equal(t, 16.0, byID["eggs"].Quantity)
	assert.Equal(t, 1, byID["eggs"].EventCount)

	assert.Equal(t, 11.5, summary.EstimatedCost)
}

func TestForecastReportsSkippedReferences(t *testing.T) {
	a := demandFixture()

	summary, err := a.ForecastNextDays(context.Background(), "loc-1", 7)
	require.NoError(t, err)

	require.Len(t, summary.Skipped, 2)
	kinds := map[string]string{}
	for _, s := range summary.Skipped {
		kinds[s.Kind] = s.RefID
	}
	assert.Equal(t, "ghost", kinds["recipe"])
	assert.Equal(t, "gone", kinds["menu"])
}

func TestHistoricalUsesPastWindow(t *testing.T) {
	a := demandFixture()

	summary, err := a.HistoricalLastDays(context.Background(), "loc-1", 7)
	require.NoError(t, err)

	assert.Equal(t, DemandHistorical, summary.Mode)
	assert.Equal(t, 1, summary.EventsConsidered)
	byID := demandByID(summary)
	assert.Equal(t, 1.0, byID["rice"].Quantity)
	assert.Equal(t, 8.0, byID["eggs"].Quantity)
}

func TestForecastRejectsInvertedWindow(t *testing.T) {
	a := demandFixture()
	_, err := a.Forecast(context.Background(), "loc-1", demandNow, demandNow.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestForecastEmptyWindow(t *testing.T) {
	a := demandFixture()
	summary, err := a.ForecastNextDays(context.Background(), "loc-9", 7)
	require.NoError(t, err)
	assert.Empty(t, summary.Ingredients)
	assert.Zero(t, summary.EstimatedCost)
}

func TestReorderNeeds(t *testing.T) {
	lines := ReorderNeeds([]models.InventoryItem{
		{ID: "i1", IngredientID: "rice", Stock: 4, ReorderPoint: 5, OptimalStock: 20},
		{ID: "i2", IngredientID: "oil", Stock: 2, ReorderPoint: 3},
		{ID: "i3", IngredientID: "eggs", Stock: 30, ReorderPoint: 12},
		{ID: "i4", IngredientID: "salt", Stock: 0},
	})

	require.Len(t, lines, 2)
	assert.Equal(t, 16.0, lines[0].SuggestedOrder)
	assert.Equal(t, 6.0, lines[1].OptimalStock)
	assert.Equal(t, 4.0, lines[1].SuggestedOrder)
}

func TestCheckAvailabilityFindsShortages(t *testing.T) {
	a := demandFixture(
		models.InventoryItem{ID: "inv-rice", IngredientID: "rice", LocationID: "loc-1", Unit: "g", Stock: 2500},
		models.InventoryItem{ID: "inv-eggs", IngredientID: "eggs", LocationID: "loc-1", Unit: "pcs", Stock: 30},
	)

	_, shortages, err := a.CheckAvailability(context.Background(), "loc-1", 7)
	require.NoError(t, err)

	byID := map[string]Shortage{}
	for _, s := range shortages {
		byID[s.IngredientID] = s
	}
	require.Len(t, byID, 2)
	assert.Equal(t, 2.5, byID["rice"].Available)
	assert.Equal(t, 0.5, byID["rice"].Missing)
	assert.Equal(t, 0.3, byID["oil"].Missing)
	_, eggsShort := byID["eggs"]
	assert.False(t, eggsShort)
}
