package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mohae/deepcopy"
	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/config"
	"kitchenledger/server/internal/metrics"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
)

// CreateSheetDTO - входные данные новой технологической карты.
// Стоимость строк игнорируется и пересчитывается по текущим ценам.
type CreateSheetDTO struct {
	Name         string             `json:"name" validate:"required,max=255"`
	Category     string             `json:"category"`
	Description  string             `json:"description"`
	Portions     int                `json:"portions" validate:"gte=1"`
	Lines        []models.SheetLine `json:"lines" validate:"required,min=1,dive"`
	Steps        []string           `json:"steps"`
	PrepMinutes  int                `json:"prep_minutes" validate:"gte=0"`
	CookMinutes  int                `json:"cook_minutes" validate:"gte=0"`
	Difficulty   string             `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	LaborCost    float64            `json:"labor_cost" validate:"gte=0"`
	EnergyCost   float64            `json:"energy_cost" validate:"gte=0"`
	TargetMargin *float64           `json:"target_margin,omitempty" validate:"omitempty,gte=0,lt=1"` // Доля; nil = из политики
	RecipeBaseID *string            `json:"recipe_base_id,omitempty"`
	LocationID   string             `json:"location_id" validate:"required"`
	Notes        string             `json:"notes"`
}

// UpdateSheetDTO - частичное обновление, nil означает "не менять"
type UpdateSheetDTO struct {
	Name         *string             `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Category     *string             `json:"category,omitempty"`
	Description  *string             `json:"description,omitempty"`
	Portions     *int                `json:"portions,omitempty" validate:"omitempty,gte=1"`
	Lines        *[]models.SheetLine `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
	Steps        *[]string           `json:"steps,omitempty"`
	PrepMinutes  *int                `json:"prep_minutes,omitempty" validate:"omitempty,gte=0"`
	CookMinutes  *int                `json:"cook_minutes,omitempty" validate:"omitempty,gte=0"`
	Difficulty   *string             `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	LaborCost    *float64            `json:"labor_cost,omitempty" validate:"omitempty,gte=0"`
	EnergyCost   *float64            `json:"energy_cost,omitempty" validate:"omitempty,gte=0"`
	TargetMargin *float64            `json:"target_margin,omitempty" validate:"omitempty,gte=0,lt=1"`
	Notes        *string             `json:"notes,omitempty"`
	ChangeNotes  string              `json:"change_notes,omitempty"` // Пишется в снимок версии
}

// ImportedSheet - рецепт, успешно превращенный в карту
type ImportedSheet struct {
	RecipeID string `json:"recipe_id"`
	SheetID  string `json:"sheet_id"`
}

// ImportFailure - рецепт, который не удалось сконвертировать
type ImportFailure struct {
	RecipeID string `json:"recipe_id"`
	Reason   string `json:"reason"`
}

// ImportResult - итог пакетного импорта рецептов
type ImportResult struct {
	Succeeded  []ImportedSheet `json:"succeeded"`
	Failed     []ImportFailure `json:"failed"`
	Duplicates []string        `json:"duplicates"` // У рецепта уже есть активная карта
}

// TechnicalSheetService - технологические карты с историей версий
type TechnicalSheetService struct {
	sheets   repositories.TechnicalSheetRepository
	versions repositories.VersionSnapshotRepository
	recipes  repositories.RecipeRepository
	costs    *CostEngine
	policy   config.CostingPolicy
	validate *validator.Validate
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewTechnicalSheetService(
	sheets repositories.TechnicalSheetRepository,
	versions repositories.VersionSnapshotRepository,
	recipes repositories.RecipeRepository,
	costs *CostEngine,
	policy config.CostingPolicy,
	m *metrics.Collector,
) *TechnicalSheetService {
	return &TechnicalSheetService{
		sheets:   sheets,
		versions: versions,
		recipes:  recipes,
		costs:    costs,
		policy:   policy,
		validate: validator.New(),
		metrics:  m,
		now:      time.Now,
	}
}

// Create считает себестоимость и сохраняет карту версии 1
func (s *TechnicalSheetService) Create(ctx context.Context, dto CreateSheetDTO, userID string) (*models.TechnicalSheet, error) {
	if err := s.validate.Struct(dto); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	margin := s.policy.TargetMargin
	if dto.TargetMargin != nil {
		margin = *dto.TargetMargin
	}

	report, err := s.costs.Compute(ctx, dto.Lines, dto.LaborCost, dto.EnergyCost, dto.Portions)
	if err != nil {
		return nil, err
	}
	pricing, err := s.pricingFor(report.PerPortion, margin)
	if err != nil {
		return nil, err
	}
	if len(report.Missing) > 0 {
		log.Warn().Str("name", dto.Name).Strs("missing", report.Missing).Msg("Карта создана с ингредиентами без цены")
	}

	sheet := &models.TechnicalSheet{
		Version:      1,
		Active:       true,
		Name:         dto.Name,
		Category:     dto.Category,
		Description:  dto.Description,
		Portions:     dto.Portions,
		Lines:        report.Lines,
		Steps:        dto.Steps,
		PrepMinutes:  dto.PrepMinutes,
		CookMinutes:  dto.CookMinutes,
		Difficulty:   dto.Difficulty,
		Costs:        report.Costs(),
		Pricing:      pricing,
		RecipeBaseID: dto.RecipeBaseID,
		LocationID:   dto.LocationID,
		Notes:        dto.Notes,
		CreatedBy:    userID,
		ModifiedBy:   userID,
	}
	if err := s.sheets.Create(ctx, sheet); err != nil {
		return nil, fmt.Errorf("не удалось сохранить технологическую карту: %w", err)
	}

	log.Info().Str("sheet_id", sheet.ID).Str("name", sheet.Name).Float64("total", sheet.Costs.Total).Msg("✅ Технологическая карта создана")
	return sheet, nil
}

// Update применяет изменения. Новая запись полностью собирается и пересчитывается
// до записи снимка; при createVersion снимок текущей версии пишется до того,
// как живая запись перейдет на следующую версию.
func (s *TechnicalSheetService) Update(ctx context.Context, id string, dto UpdateSheetDTO, userID string, createVersion bool) (*models.TechnicalSheet, error) {
	if err := s.validate.Struct(dto); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	sheet, err := s.sheets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("технологическая карта %s: %w", id, err)
	}
	current := deepcopy.Copy(*sheet).(models.TechnicalSheet)

	linesChanged := dto.Lines != nil
	portionsChanged := dto.Portions != nil && *dto.Portions != sheet.Portions
	overheadChanged := dto.LaborCost != nil || dto.EnergyCost != nil
	applyUpdate(sheet, dto)

	labor, energy := sheet.Costs.LaborCost, sheet.Costs.EnergyCost
	if dto.LaborCost != nil {
		labor = *dto.LaborCost
	}
	if dto.EnergyCost != nil {
		energy = *dto.EnergyCost
	}

	costsChanged := false
	switch {
	case linesChanged || portionsChanged:
		report, err := s.costs.Compute(ctx, sheet.Lines, labor, energy, sheet.Portions)
		if err != nil {
			return nil, err
		}
		sheet.Lines = report.Lines
		sheet.Costs = report.Costs()
		costsChanged = true
	case overheadChanged:
		sheet.Costs = s.costs.Totals(sheet.Costs.IngredientCost, labor, energy, sheet.Portions)
		costsChanged = true
	}

	if costsChanged || dto.TargetMargin != nil {
		margin := sheet.Pricing.TargetMargin / 100
		if dto.TargetMargin != nil {
			margin = *dto.TargetMargin
		}
		pricing, err := s.pricingFor(sheet.Costs.PerPortion, margin)
		if err != nil {
			return nil, err
		}
		sheet.Pricing = pricing
	}

	if createVersion {
		if err := s.snapshot(ctx, current, userID, dto.ChangeNotes); err != nil {
			return nil, err
		}
		sheet.Version++
	}
	sheet.ModifiedBy = userID
	sheet.UpdatedAt = s.now().UTC()
	if err := s.sheets.Update(ctx, sheet); err != nil {
		return nil, fmt.Errorf("не удалось обновить технологическую карту %s: %w", id, err)
	}

	if createVersion {
		s.metrics.SheetVersioned()
	}
	log.Info().Str("sheet_id", id).Int("version", sheet.Version).Bool("versioned", createVersion).Msg("Технологическая карта обновлена")
	return sheet, nil
}

// snapshot сохраняет копию карты с ее текущим номером версии.
// Снимок этой версии мог остаться от прерванного обновления: если он расходится
// с живой записью, его заменяет актуальное состояние версии.
func (s *TechnicalSheetService) snapshot(ctx context.Context, sheet models.TechnicalSheet, userID, notes string) error {
	snap := &models.VersionSnapshot{
		SheetID:     sheet.ID,
		Version:     sheet.Version,
		Snapshot:    deepcopy.Copy(sheet).(models.TechnicalSheet),
		ChangeNotes: notes,
		VersionedBy: userID,
	}
	err := s.versions.Create(ctx, snap)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrDuplicateKey) {
		return fmt.Errorf("не удалось сохранить снимок версии %d: %w", sheet.Version, err)
	}

	stored, err := s.storedSnapshot(ctx, sheet.ID, sheet.Version)
	if err != nil {
		return fmt.Errorf("не удалось прочитать снимок версии %d: %w", sheet.Version, err)
	}
	if sameSheetState(stored.Snapshot, sheet) {
		log.Warn().Str("sheet_id", sheet.ID).Int("version", sheet.Version).Msg("Снимок версии уже существует, продолжаем")
		return nil
	}

	log.Warn().Str("sheet_id", sheet.ID).Int("version", sheet.Version).Msg("Снимок версии устарел, перезаписываем")
	if err := s.versions.Replace(ctx, snap); err != nil {
		return fmt.Errorf("не удалось перезаписать снимок версии %d: %w", sheet.Version, err)
	}
	return nil
}

func (s *TechnicalSheetService) storedSnapshot(ctx context.Context, sheetID string, version int) (*models.VersionSnapshot, error) {
	snapshots, err := s.versions.QueryBySheetID(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		if snapshots[i].Version == version {
			return &snapshots[i], nil
		}
	}
	return nil, repositories.ErrNotFound
}

// sameSheetState сравнивает карты в том виде, в каком они хранятся в jsonb
func sameSheetState(a, b models.TechnicalSheet) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(left, right)
}

func applyUpdate(sheet *models.TechnicalSheet, dto UpdateSheetDTO) {
	if dto.Name != nil {
		sheet.Name = *dto.Name
	}
	if dto.Category != nil {
		sheet.Category = *dto.Category
	}
	if dto.Description != nil {
		sheet.Description = *dto.Description
	}
	if dto.Portions != nil {
		sheet.Portions = *dto.Portions
	}
	if dto.Lines != nil {
		sheet.Lines = append([]models.SheetLine(nil), (*dto.Lines)...)
	}
	if dto.Steps != nil {
		sheet.Steps = append([]string(nil), (*dto.Steps)...)
	}
	if dto.PrepMinutes != nil {
		sheet.PrepMinutes = *dto.PrepMinutes
	}
	if dto.CookMinutes != nil {
		sheet.CookMinutes = *dto.CookMinutes
	}
	if dto.Difficulty != nil {
		sheet.Difficulty = *dto.Difficulty
	}
	if dto.Notes != nil {
		sheet.Notes = *dto.Notes
	}
}

func (s *TechnicalSheetService) pricingFor(perPortion, margin float64) (models.SheetPricing, error) {
	suggestion, err := s.costs.SuggestPrice(perPortion, margin)
	if err != nil {
		return models.SheetPricing{}, err
	}
	pricing := models.SheetPricing{
		SuggestedPrice: suggestion.SuggestedPrice,
		TargetMargin:   suggestion.GrossMargin,
	}
	// Фактическая маржа после округления цены
	if suggestion.SuggestedPrice > 0 {
		pricing.GrossMargin = roundTo(suggestion.Profit/suggestion.SuggestedPrice*100, 2)
	}
	return pricing, nil
}

// Duplicate создает новую карту версии 1 из строк исходной, цены считаются заново
func (s *TechnicalSheetService) Duplicate(ctx context.Context, id, newName, userID string) (*models.TechnicalSheet, error) {
	source, err := s.sheets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("технологическая карта %s: %w", id, err)
	}
	if newName == "" {
		newName = source.Name + " (copy)"
	}

	lines := make([]models.SheetLine, 0, len(source.Lines))
	for _, l := range source.Lines {
		lines = append(lines, models.SheetLine{
			IngredientID: l.IngredientID,
			Name:         l.Name,
			Quantity:     l.Quantity,
			Unit:         l.Unit,
			Optional:     l.Optional,
		})
	}
	margin := source.Pricing.TargetMargin / 100

	return s.Create(ctx, CreateSheetDTO{
		Name:         newName,
		Category:     source.Category,
		Description:  source.Description,
		Portions:     source.Portions,
		Lines:        lines,
		Steps:        append([]string(nil), source.Steps...),
		PrepMinutes:  source.PrepMinutes,
		CookMinutes:  source.CookMinutes,
		Difficulty:   source.Difficulty,
		LaborCost:    source.Costs.LaborCost,
		EnergyCost:   source.Costs.EnergyCost,
		TargetMargin: &margin,
		LocationID:   source.LocationID,
		Notes:        "Duplicate of: " + source.Name,
	}, userID)
}

// ConvertFromRecipe строит DTO карты из рецепта: труд и энергия берутся долями
// от стоимости ингредиентов, цена - из целевой маржи политики.
func (s *TechnicalSheetService) ConvertFromRecipe(ctx context.Context, recipeID, locationID string) (*CreateSheetDTO, error) {
	recipe, err := s.recipes.GetByID(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("рецепт %s: %w", recipeID, err)
	}
	if len(recipe.Lines) == 0 {
		return nil, fmt.Errorf("%w: в рецепте %s нет ингредиентов", ErrValidation, recipe.Name)
	}
	if locationID == "" {
		locationID = recipe.LocationID
	}

	lines := make([]models.SheetLine, 0, len(recipe.Lines))
	for _, l := range recipe.Lines {
		lines = append(lines, models.SheetLine{IngredientID: l.IngredientID, Quantity: l.Quantity, Unit: l.Unit})
	}
	portions := recipe.EffectiveYieldPax()

	report, err := s.costs.Compute(ctx, lines, 0, 0, portions)
	if err != nil {
		return nil, fmt.Errorf("рецепт %s: %w", recipe.Name, err)
	}

	margin := s.policy.TargetMargin
	id := recipe.ID
	return &CreateSheetDTO{
		Name:         recipe.Name,
		Category:     recipe.Category,
		Description:  recipe.Description,
		Portions:     portions,
		Lines:        report.Lines,
		Steps:        append([]string(nil), recipe.Steps...),
		LaborCost:    roundTo(report.IngredientCost*s.policy.LaborRatio, 2),
		EnergyCost:   roundTo(report.IngredientCost*s.policy.EnergyRatio, 2),
		TargetMargin: &margin,
		RecipeBaseID: &id,
		LocationID:   locationID,
		Notes:        "Converted from recipe: " + recipe.Name,
	}, nil
}

// CreateFromRecipe = ConvertFromRecipe + Create
func (s *TechnicalSheetService) CreateFromRecipe(ctx context.Context, recipeID, locationID, userID string) (*models.TechnicalSheet, error) {
	dto, err := s.ConvertFromRecipe(ctx, recipeID, locationID)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, *dto, userID)
}

// ImportRecipes конвертирует рецепты по одному. Ошибка одного рецепта не останавливает остальные,
// рецепты с активной картой пропускаются.
func (s *TechnicalSheetService) ImportRecipes(ctx context.Context, recipeIDs []string, locationID, userID string) (*ImportResult, error) {
	result := &ImportResult{
		Succeeded:  []ImportedSheet{},
		Failed:     []ImportFailure{},
		Duplicates: []string{},
	}
	for _, recipeID := range dedupe(recipeIDs) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		existing, err := s.sheets.FindActiveByRecipeBase(ctx, recipeID)
		switch {
		case err == nil:
			result.Duplicates = append(result.Duplicates, recipeID)
			log.Debug().Str("recipe_id", recipeID).Str("sheet_id", existing.ID).Msg("У рецепта уже есть карта")
			continue
		case !errors.Is(err, repositories.ErrNotFound):
			result.Failed = append(result.Failed, ImportFailure{RecipeID: recipeID, Reason: err.Error()})
			continue
		}

		sheet, err := s.CreateFromRecipe(ctx, recipeID, locationID, userID)
		if err != nil {
			result.Failed = append(result.Failed, ImportFailure{RecipeID: recipeID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, ImportedSheet{RecipeID: recipeID, SheetID: sheet.ID})
	}

	log.Info().
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Int("duplicates", len(result.Duplicates)).
		Msg("📥 Импорт рецептов завершен")
	return result, nil
}

// Recalculate обновляет себестоимость по текущим ценам без новой версии
func (s *TechnicalSheetService) Recalculate(ctx context.Context, id, userID string) (*models.TechnicalSheet, error) {
	sheet, err := s.sheets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("технологическая карта %s: %w", id, err)
	}

	report, err := s.costs.Compute(ctx, sheet.Lines, sheet.Costs.LaborCost, sheet.Costs.EnergyCost, sheet.Portions)
	if err != nil {
		return nil, err
	}
	pricing, err := s.pricingFor(report.PerPortion, sheet.Pricing.TargetMargin/100)
	if err != nil {
		return nil, err
	}

	sheet.Lines = report.Lines
	sheet.Costs = report.Costs()
	sheet.Pricing = pricing
	sheet.ModifiedBy = userID
	sheet.UpdatedAt = s.now().UTC()
	if err := s.sheets.Update(ctx, sheet); err != nil {
		return nil, fmt.Errorf("не удалось сохранить пересчет карты %s: %w", id, err)
	}
	return sheet, nil
}

// Delete - мягкое удаление, история версий остается доступной
func (s *TechnicalSheetService) Delete(ctx context.Context, id, userID string) error {
	sheet, err := s.sheets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("технологическая карта %s: %w", id, err)
	}
	if !sheet.Active {
		return nil
	}
	sheet.Active = false
	sheet.ModifiedBy = userID
	sheet.UpdatedAt = s.now().UTC()
	if err := s.sheets.Update(ctx, sheet); err != nil {
		return fmt.Errorf("не удалось деактивировать карту %s: %w", id, err)
	}
	log.Info().Str("sheet_id", id).Msg("Технологическая карта деактивирована")
	return nil
}

func (s *TechnicalSheetService) Get(ctx context.Context, id string) (*models.TechnicalSheet, error) {
	sheet, err := s.sheets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("технологическая карта %s: %w", id, err)
	}
	return sheet, nil
}

func (s *TechnicalSheetService) List(ctx context.Context, locationID string, activeOnly bool) ([]models.TechnicalSheet, error) {
	if locationID == "" {
		return nil, fmt.Errorf("%w: location_id обязателен", ErrValidation)
	}
	return s.sheets.QueryByLocation(ctx, locationID, activeOnly)
}

// Versions - снимки карты по убыванию версии
func (s *TechnicalSheetService) Versions(ctx context.Context, sheetID string) ([]models.VersionSnapshot, error) {
	if _, err := s.Get(ctx, sheetID); err != nil {
		return nil, err
	}
	return s.versions.QueryBySheetID(ctx, sheetID)
}

// GetVersion возвращает карту в состоянии заданной версии; текущая версия берется из живой записи
func (s *TechnicalSheetService) GetVersion(ctx context.Context, sheetID string, version int) (*models.TechnicalSheet, error) {
	current, err := s.Get(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if version == current.Version {
		return current, nil
	}
	snapshots, err := s.versions.QueryBySheetID(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	for _, snap := range snapshots {
		if snap.Version == version {
			sheet := snap.Snapshot
			return &sheet, nil
		}
	}
	return nil, fmt.Errorf("версия %d карты %s: %w", version, sheetID, repositories.ErrNotFound)
}
