package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenledger/server/internal/config"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/utils"
)

type sheetFixture struct {
	ingredients *repositories.MemoryIngredientRepository
	sheets      *repositories.MemoryTechnicalSheetRepository
	versions    *repositories.MemoryVersionSnapshotRepository
	service     *TechnicalSheetService
}

func newSheetFixture(recipes ...models.Recipe) *sheetFixture {
	f := &sheetFixture{
		ingredients: repositories.NewMemoryIngredientRepository(
			models.Ingredient{ID: "tomato", Name: "Tomato", Unit: "kg", CostPerUnit: 2, YieldFraction: 0.8},
			models.Ingredient{ID: "oil", Name: "Olive oil", Unit: "l", CostPerUnit: 10},
			models.Ingredient{ID: "basil", Name: "Basil", Unit: "kg", CostPerUnit: 40, YieldFraction: 0.5},
		),
		sheets:   repositories.NewMemoryTechnicalSheetRepository(),
		versions: repositories.NewMemoryVersionSnapshotRepository(),
	}
	engine := NewCostEngine(NewIngredientCatalog(f.ingredients, 10, nil))
	f.service = NewTechnicalSheetService(f.sheets, f.versions, repositories.NewMemoryRecipeRepository(recipes...), engine, config.DefaultCostingPolicy(), nil)
	return f
}

func bruschettaDTO() CreateSheetDTO {
	return CreateSheetDTO{
		Name:     "Bruschetta",
		Portions: 4,
		Lines: []models.SheetLine{
			{IngredientID: "tomato", Quantity: 1},
			{IngredientID: "oil", Quantity: 100, Unit: "ml"},
		},
		LaborCost:  1,
		EnergyCost: 0.5,
		LocationID: "loc-1",
	}
}

func createBruschetta(t *testing.T, f *sheetFixture) *models.TechnicalSheet {
	t.Helper()
	sheet, err := f.service.Create(context.Background(), bruschettaDTO(), "chef")
	require.NoError(t, err)
	return sheet
}

func TestCreateSheetComputesCostsAndPrice(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	assert.Equal(t, 1, sheet.Version)
	assert.True(t, sheet.Active)
	assert.Equal(t, "chef", sheet.CreatedBy)

	require.Len(t, sheet.Lines, 2)
	assert.Equal(t, "Tomato", sheet.Lines[0].Name)
	assert.Equal(t, 2.5, sheet.Lines[0].LineCost)
	assert.Equal(t, 1.0, sheet.Lines[1].LineCost)

	assert.Equal(t, 3.5, sheet.Costs.IngredientCost)
	assert.Equal(t, 5.0, sheet.Costs.Total)
	assert.Equal(t, 1.25, sheet.Costs.PerPortion)

	assert.Equal(t, 3.57, sheet.Pricing.SuggestedPrice)
	assert.Equal(t, 65.0, sheet.Pricing.TargetMargin)
	assert.Equal(t, 64.99, sheet.Pricing.GrossMargin)

	stored, err := f.service.Get(context.Background(), sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, sheet.Costs, stored.Costs)
}

func TestCreateSheetValidation(t *testing.T) {
	f := newSheetFixture()
	dto := bruschettaDTO()
	dto.Lines = nil
	dto.Portions = 0

	_, err := f.service.Create(context.Background(), dto, "chef")
	require.ErrorIs(t, err, ErrValidation)

	fields := utils.ProcessValidationErrors(err)
	assert.Contains(t, fields, "CreateSheetDTO.Lines")
	assert.Contains(t, fields, "CreateSheetDTO.Portions")
}

func TestCreateSheetIncompatibleUnit(t *testing.T) {
	f := newSheetFixture()
	dto := bruschettaDTO()
	dto.Lines[0].Unit = "pcs"

	_, err := f.service.Create(context.Background(), dto, "chef")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestUpdateWithVersionSnapshotsPreviousState(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	portions := 5
	updated, err := f.service.Update(context.Background(), sheet.ID, UpdateSheetDTO{Portions: &portions, ChangeNotes: "bigger tray"}, "sous-chef", true)
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 1.0, updated.Costs.PerPortion)
	assert.Equal(t, "sous-chef", updated.ModifiedBy)

	versions, err := f.service.Versions(context.Background(), sheet.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 1, versions[0].Snapshot.Version)
	assert.Equal(t, 1.25, versions[0].Snapshot.Costs.PerPortion)
	assert.Equal(t, "bigger tray", versions[0].ChangeNotes)
	assert.Equal(t, "sous-chef", versions[0].VersionedBy)
}

func TestUpdateWithoutVersionKeepsHistory(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	name := "Bruschetta al pomodoro"
	updated, err := f.service.Update(context.Background(), sheet.ID, UpdateSheetDTO{Name: &name}, "chef", false)
	require.NoError(t, err)

	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, sheet.Costs, updated.Costs)

	versions, err := f.service.Versions(context.Background(), sheet.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestUpdateOverheadRecomputesTotalsOnly(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	// Новая цена не должна попасть в карту без пересчета строк
	require.NoError(t, f.ingredients.Update(context.Background(), &models.Ingredient{ID: "tomato", Unit: "kg", CostPerUnit: 100}))

	labor := 2.0
	updated, err := f.service.Update(context.Background(), sheet.ID, UpdateSheetDTO{LaborCost: &labor}, "chef", false)
	require.NoError(t, err)

	assert.Equal(t, 3.5, updated.Costs.IngredientCost)
	assert.Equal(t, 2.0, updated.Costs.LaborCost)
	assert.Equal(t, 6.0, updated.Costs.Total)
	assert.Equal(t, 1.5, updated.Costs.PerPortion)
	assert.Equal(t, 4.29, updated.Pricing.SuggestedPrice)
}

func TestUpdateToleratesExistingSnapshot(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)
	require.NoError(t, f.versions.Create(context.Background(), &models.VersionSnapshot{SheetID: sheet.ID, Version: 1, Snapshot: *sheet, VersionedBy: "chef"}))

	name := "Bruschetta v2"
	updated, err := f.service.Update(context.Background(), sheet.ID, UpdateSheetDTO{Name: &name}, "chef", true)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	versions, err := f.service.Versions(context.Background(), sheet.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestFailedVersionedUpdateLeavesNoSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	lines := []models.SheetLine{{IngredientID: "tomato", Quantity: 500, Unit: "ml"}}
	_, err := f.service.Update(ctx, sheet.ID, UpdateSheetDTO{Lines: &lines}, "chef", true)
	require.ErrorIs(t, err, ErrUnsupportedConversion)

	versions, err := f.service.Versions(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	renamed := "Bruschetta classica"
	_, err = f.service.Update(ctx, sheet.ID, UpdateSheetDTO{Name: &renamed}, "chef", false)
	require.NoError(t, err)

	next := "Bruschetta v2"
	updated, err := f.service.Update(ctx, sheet.ID, UpdateSheetDTO{Name: &next}, "chef", true)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	v1, err := f.service.GetVersion(ctx, sheet.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, renamed, v1.Name)
}

func TestUpdateReplacesStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	stale := *sheet
	stale.Name = "Bruschetta (draft)"
	require.NoError(t, f.versions.Create(ctx, &models.VersionSnapshot{SheetID: sheet.ID, Version: 1, Snapshot: stale, VersionedBy: "chef"}))

	next := "Bruschetta v2"
	_, err := f.service.Update(ctx, sheet.ID, UpdateSheetDTO{Name: &next, ChangeNotes: "rename"}, "sous-chef", true)
	require.NoError(t, err)

	versions, err := f.service.Versions(ctx, sheet.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "Bruschetta", versions[0].Snapshot.Name)
	assert.Equal(t, "rename", versions[0].ChangeNotes)
	assert.Equal(t, "sous-chef", versions[0].VersionedBy)
}

func TestUpdateMissingSheet(t *testing.T) {
	f := newSheetFixture()
	_, err := f.service.Update(context.Background(), "ghost", UpdateSheetDTO{}, "chef", true)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGetVersion(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	name := "Bruschetta v2"
	_, err := f.service.Update(context.Background(), sheet.ID, UpdateSheetDTO{Name: &name}, "chef", true)
	require.NoError(t, err)

	v1, err := f.service.GetVersion(context.Background(), sheet.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Bruschetta", v1.Name)

	v2, err := f.service.GetVersion(context.Background(), sheet.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, name, v2.Name)

	_, err = f.service.GetVersion(context.Background(), sheet.ID, 9)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDuplicateRecomputesCosts(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	name := "Bruschetta v2"
	_, err := f.service.Update(context.Background(), sheet.ID, UpdateSheetDTO{Name: &name}, "chef", true)
	require.NoError(t, err)
	require.NoError(t, f.ingredients.Update(context.Background(), &models.Ingredient{ID: "tomato", Name: "Tomato", Unit: "kg", CostPerUnit: 4, YieldFraction: 0.8}))

	dup, err := f.service.Duplicate(context.Background(), sheet.ID, "Bruschetta XL", "chef")
	require.NoError(t, err)

	assert.NotEqual(t, sheet.ID, dup.ID)
	assert.Equal(t, 1, dup.Version)
	assert.Equal(t, "Bruschetta XL", dup.Name)
	assert.Equal(t, "Duplicate of: Bruschetta v2", dup.Notes)
	assert.Equal(t, 5.0, dup.Lines[0].LineCost)
	assert.Equal(t, 6.0, dup.Costs.IngredientCost)
	assert.Equal(t, 7.5, dup.Costs.Total)
}

func TestRecalculateRefreshesPricesWithoutVersion(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)
	require.NoError(t, f.ingredients.Update(context.Background(), &models.Ingredient{ID: "tomato", Name: "Tomato", Unit: "kg", CostPerUnit: 4, YieldFraction: 0.8}))

	recalculated, err := f.service.Recalculate(context.Background(), sheet.ID, "chef")
	require.NoError(t, err)

	assert.Equal(t, 1, recalculated.Version)
	assert.Equal(t, 6.0, recalculated.Costs.IngredientCost)
	assert.Equal(t, 1.88, recalculated.Costs.PerPortion)
	assert.Equal(t, 65.0, recalculated.Pricing.TargetMargin)
}

func TestConvertFromRecipe(t *testing.T) {
	recipe := models.Recipe{
		ID: "r-caprese", Name: "Caprese", YieldPax: 2, LocationID: "loc-1",
		Lines: []models.RecipeLine{
			{IngredientID: "tomato", Quantity: 0.8},
			{IngredientID: "basil", Quantity: 20, Unit: "g"},
		},
	}
	f := newSheetFixture(recipe)

	dto, err := f.service.ConvertFromRecipe(context.Background(), "r-caprese", "")
	require.NoError(t, err)
	assert.Equal(t, 0.54, dto.LaborCost)
	assert.Equal(t, 0.18, dto.EnergyCost)
	assert.Equal(t, 2, dto.Portions)
	assert.Equal(t, "loc-1", dto.LocationID)
	require.NotNil(t, dto.RecipeBaseID)
	assert.Equal(t, "r-caprese", *dto.RecipeBaseID)

	sheet, err := f.service.Create(context.Background(), *dto, "chef")
	require.NoError(t, err)
	assert.Equal(t, 3.6, sheet.Costs.IngredientCost)
	assert.Equal(t, 4.32, sheet.Costs.Total)
	assert.Equal(t, 2.16, sheet.Costs.PerPortion)
	assert.Equal(t, 6.17, sheet.Pricing.SuggestedPrice)
}

func TestImportRecipes(t *testing.T) {
	f := newSheetFixture(
		models.Recipe{ID: "r-1", Name: "Salad", YieldPax: 1, Lines: []models.RecipeLine{{IngredientID: "tomato", Quantity: 0.2}}},
		models.Recipe{ID: "r-3", Name: "Pesto", YieldPax: 4, Lines: []models.RecipeLine{{IngredientID: "basil", Quantity: 0.1}}},
		models.Recipe{ID: "r-empty", Name: "Air"},
	)
	_, err := f.service.CreateFromRecipe(context.Background(), "r-3", "loc-1", "chef")
	require.NoError(t, err)

	res, err := f.service.ImportRecipes(context.Background(), []string{"r-1", "r-1", "r-missing", "r-3", "r-empty"}, "loc-1", "chef")
	require.NoError(t, err)

	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "r-1", res.Succeeded[0].RecipeID)
	assert.Equal(t, []string{"r-3"}, res.Duplicates)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "r-missing", res.Failed[0].RecipeID)
	assert.Equal(t, "r-empty", res.Failed[1].RecipeID)
}

func TestDeleteIsSoft(t *testing.T) {
	f := newSheetFixture()
	sheet := createBruschetta(t, f)

	require.NoError(t, f.service.Delete(context.Background(), sheet.ID, "chef"))

	stored, err := f.service.Get(context.Background(), sheet.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	active, err := f.service.List(context.Background(), "loc-1", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.service.List(context.Background(), "loc-1", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
