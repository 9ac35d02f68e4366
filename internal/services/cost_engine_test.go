package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
)

func TestLineCostAppliesYield(t *testing.T) {
	e := NewCostEngine(nil)

	cost, err := e.LineCost(0.5, 2.00, 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 1.1111, roundTo(cost, 4), 1e-9)

	_, err = e.LineCost(1, 2, 0)
	assert.ErrorIs(t, err, ErrInvalidYield)
	_, err = e.LineCost(1, 2, -0.5)
	assert.ErrorIs(t, err, ErrInvalidYield)
}

func TestAggregateYieldExample(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{
		"tomato": {ID: "tomato", Name: "Tomato", Unit: "kg", CostPerUnit: 2.00, YieldFraction: 0.9},
	}

	report, err := e.Aggregate([]models.SheetLine{{IngredientID: "tomato", Quantity: 0.5}}, catalog, 0, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.1111, report.Lines[0].LineCost)
	assert.Equal(t, 2.00, report.Lines[0].UnitCost)
	assert.Equal(t, "Tomato", report.Lines[0].Name)
	assert.Equal(t, "kg", report.Lines[0].Unit)
	assert.Equal(t, 1.11, report.IngredientCost)
}

func TestAggregateTotalsAndPerPortion(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{
		"a": {ID: "a", Unit: "kg", CostPerUnit: 1.21},
		"b": {ID: "b", Unit: "kg", CostPerUnit: 1.00},
		"c": {ID: "c", Unit: "kg", CostPerUnit: 0.50},
	}
	lines := []models.SheetLine{
		{IngredientID: "a", Quantity: 1},
		{IngredientID: "b", Quantity: 1},
		{IngredientID: "c", Quantity: 1},
	}

	report, err := e.Aggregate(lines, catalog, 0, 0, 4)
	require.NoError(t, err)

	assert.Equal(t, 2.71, report.IngredientCost)
	assert.Equal(t, 2.71, report.Total)
	assert.Equal(t, 0.68, report.PerPortion)
}

func TestAggregateTotalIncludesLaborAndEnergy(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{"a": {ID: "a", Unit: "g", CostPerUnit: 0.01}}

	report, err := e.Aggregate([]models.SheetLine{{IngredientID: "a", Quantity: 1000}}, catalog, 1.5, 0.5, 0)
	require.NoError(t, err)

	assert.Equal(t, 10.0, report.IngredientCost)
	assert.Equal(t, 12.0, report.Total)
	assert.Equal(t, 12.0, report.PerPortion)
	assert.Equal(t, report.IngredientCost+report.LaborCost+report.EnergyCost, report.Total)
}

func TestAggregateConvertsLineUnit(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{"flour": {ID: "flour", Unit: "kg", CostPerUnit: 1.20}}

	report, err := e.Aggregate([]models.SheetLine{{IngredientID: "flour", Quantity: 250, Unit: "g"}}, catalog, 0, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, 0.3, report.Lines[0].LineCost)
	assert.Equal(t, "g", report.Lines[0].Unit)
}

func TestAggregateIncompatibleUnitAborts(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{"oil": {ID: "oil", Unit: "kg", CostPerUnit: 3}}

	_, err := e.Aggregate([]models.SheetLine{{IngredientID: "oil", Quantity: 1, Unit: "l"}}, catalog, 0, 0, 1)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestAggregateMissingIngredientContributesZero(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{"a": {ID: "a", Unit: "kg", CostPerUnit: 2}}
	lines := []models.SheetLine{
		{IngredientID: "a", Quantity: 1},
		{IngredientID: "ghost", Quantity: 5},
		{IngredientID: "ghost", Quantity: 1},
	}

	report, err := e.Aggregate(lines, catalog, 0, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, 2.0, report.IngredientCost)
	assert.Equal(t, []string{"ghost"}, report.Missing)
	assert.Len(t, report.Lines, 3)
	assert.Zero(t, report.Lines[1].LineCost)
}

func TestAggregateStoredZeroYieldMeansUnset(t *testing.T) {
	e := NewCostEngine(nil)
	catalog := map[string]models.Ingredient{"a": {ID: "a", Unit: "kg", CostPerUnit: 2}}

	report, err := e.Aggregate([]models.SheetLine{{IngredientID: "a", Quantity: 1}}, catalog, 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, report.IngredientCost)
}

func TestSuggestPrice(t *testing.T) {
	e := NewCostEngine(nil)

	s, err := e.SuggestPrice(3.50, 0.65)
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.SuggestedPrice)
	assert.Equal(t, 65.0, s.GrossMargin)
	assert.Equal(t, 6.5, s.Profit)

	_, err = e.SuggestPrice(3.50, 1)
	assert.ErrorIs(t, err, ErrInvalidMargin)
}

type flakyIngredientRepo struct {
	repositories.IngredientRepository
	mu        sync.Mutex
	failBulk  bool
	failIDs   map[string]bool
	chunkSize []int
	single    int
}

func (r *flakyIngredientRepo) GetByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	r.mu.Lock()
	r.chunkSize = append(r.chunkSize, len(ids))
	r.mu.Unlock()
	if r.failBulk {
		return nil, errors.New("connection reset")
	}
	return r.IngredientRepository.GetByIDs(ctx, ids)
}

func (r *flakyIngredientRepo) GetByID(ctx context.Context, id string) (*models.Ingredient, error) {
	r.mu.Lock()
	r.single++
	r.mu.Unlock()
	if r.failIDs[id] {
		return nil, errors.New("timeout")
	}
	return r.IngredientRepository.GetByID(ctx, id)
}

func seedIngredients(n int) []models.Ingredient {
	list := make([]models.Ingredient, n)
	for i := range list {
		list[i] = models.Ingredient{ID: string(rune('a'+i%26)) + string(rune('a'+i/26)), Unit: "kg", CostPerUnit: 1}
	}
	return list
}

func TestCatalogLookupChunksByLimit(t *testing.T) {
	seed := seedIngredients(25)
	repo := &flakyIngredientRepo{IngredientRepository: repositories.NewMemoryIngredientRepository(seed...)}
	catalog := NewIngredientCatalog(repo, 10, nil)

	ids := make([]string, 0, len(seed)+2)
	for _, ing := range seed {
		ids = append(ids, ing.ID)
	}
	ids = append(ids, seed[0].ID, "missing")

	found, missing := catalog.Lookup(context.Background(), ids)

	assert.Len(t, found, 25)
	assert.Equal(t, []string{"missing"}, missing)
	total := 0
	for _, size := range repo.chunkSize {
		assert.LessOrEqual(t, size, 10)
		total += size
	}
	assert.Equal(t, 26, total)
	assert.Zero(t, repo.single)
}

func TestCatalogLookupFallsBackToSingleReads(t *testing.T) {
	seed := seedIngredients(3)
	repo := &flakyIngredientRepo{
		IngredientRepository: repositories.NewMemoryIngredientRepository(seed...),
		failBulk:             true,
		failIDs:              map[string]bool{seed[1].ID: true},
	}
	catalog := NewIngredientCatalog(repo, 10, nil)

	found, missing := catalog.Lookup(context.Background(), []string{seed[0].ID, seed[1].ID, seed[2].ID})

	assert.Len(t, found, 2)
	assert.Equal(t, []string{seed[1].ID}, missing)
	assert.Equal(t, 3, repo.single)
}

func TestComputeUsesCatalog(t *testing.T) {
	repo := repositories.NewMemoryIngredientRepository(
		models.Ingredient{ID: "rice", Name: "Rice", Unit: "kg", CostPerUnit: 1.5},
	)
	e := NewCostEngine(NewIngredientCatalog(repo, 10, nil))

	report, err := e.Compute(context.Background(), []models.SheetLine{
		{IngredientID: "rice", Quantity: 2},
		{IngredientID: "saffron", Quantity: 0.001},
	}, 0, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 3.0, report.IngredientCost)
	assert.Equal(t, 1.5, report.PerPortion)
	assert.Equal(t, []string{"saffron"}, report.Missing)
}
