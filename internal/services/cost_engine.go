package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/models"
)

// CostReport - результат расчета себестоимости набора строк
type CostReport struct {
	Lines          []models.SheetLine `json:"lines"`
	IngredientCost float64            `json:"ingredient_cost"`
	LaborCost      float64            `json:"labor_cost"`
	EnergyCost     float64            `json:"energy_cost"`
	Total          float64            `json:"total"`
	PerPortion     float64            `json:"per_portion"`
	Missing        []string           `json:"missing,omitempty"` // Ингредиенты, посчитанные по нулевой цене
}

// Costs переносит итоги в модель технологической карты
func (r CostReport) Costs() models.SheetCosts {
	return models.SheetCosts{
		IngredientCost: r.IngredientCost,
		LaborCost:      r.LaborCost,
		EnergyCost:     r.EnergyCost,
		Total:          r.Total,
		PerPortion:     r.PerPortion,
	}
}

// CostEngine считает себестоимость строк с учетом выхода и единиц измерения
type CostEngine struct {
	catalog   *IngredientCatalog
	converter UnitConverter
}

func NewCostEngine(catalog *IngredientCatalog) *CostEngine {
	return &CostEngine{catalog: catalog}
}

// LineCost = quantity * unitCost / yieldFraction
func (e *CostEngine) LineCost(quantity, unitCost, yieldFraction float64) (float64, error) {
	if yieldFraction <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidYield, yieldFraction)
	}
	return quantity * unitCost / yieldFraction, nil
}

// Compute загружает ингредиенты строк и считает себестоимость
func (e *CostEngine) Compute(ctx context.Context, lines []models.SheetLine, labor, energy float64, portions int) (CostReport, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.IngredientID)
	}
	catalog, _ := e.catalog.Lookup(ctx, ids)
	return e.Aggregate(lines, catalog, labor, energy, portions)
}

// Aggregate считает себестоимость по готовому справочнику.
// Строка округляется до 4 знаков, итоги до 2; отсутствующий ингредиент дает нулевую строку.
func (e *CostEngine) Aggregate(lines []models.SheetLine, catalog map[string]models.Ingredient, labor, energy float64, portions int) (CostReport, error) {
	report := CostReport{
		Lines:      make([]models.SheetLine, 0, len(lines)),
		LaborCost:  roundTo(labor, 2),
		EnergyCost: roundTo(energy, 2),
	}
	missing := make(map[string]bool)
	var sum float64

	for i, line := range lines {
		ingredient, ok := catalog[line.IngredientID]
		if !ok {
			log.Warn().Str("ingredient_id", line.IngredientID).Int("line", i).Msg("Ингредиент не найден, строка посчитана по нулевой цене")
			line.UnitCost = 0
			line.LineCost = 0
			report.Lines = append(report.Lines, line)
			if !missing[line.IngredientID] {
				missing[line.IngredientID] = true
				report.Missing = append(report.Missing, line.IngredientID)
			}
			continue
		}

		quantity := line.Quantity
		if line.Unit == "" || strings.EqualFold(line.Unit, ingredient.Unit) {
			line.Unit = ingredient.Unit
		} else {
			converted, err := e.converter.Convert(line.Quantity, line.Unit, ingredient.Unit, ContextFor(ingredient))
			if err != nil {
				return CostReport{}, fmt.Errorf("строка %d (%s): %w", i+1, ingredient.Name, err)
			}
			quantity = converted
		}

		cost, err := e.LineCost(quantity, ingredient.CostPerUnit, ingredient.EffectiveYield())
		if err != nil {
			return CostReport{}, fmt.Errorf("строка %d (%s): %w", i+1, ingredient.Name, err)
		}

		line.Name = ingredient.Name
		line.UnitCost = ingredient.CostPerUnit
		line.LineCost = roundTo(cost, 4)
		sum += line.LineCost
		report.Lines = append(report.Lines, line)
	}

	if portions < 1 {
		portions = 1
	}
	report.IngredientCost = roundTo(sum, 2)
	report.Total = roundTo(report.IngredientCost+report.LaborCost+report.EnergyCost, 2)
	report.PerPortion = roundTo(report.Total/float64(portions), 2)
	return report, nil
}

// Totals пересчитывает итог и стоимость порции при неизменной стоимости ингредиентов
func (e *CostEngine) Totals(ingredientCost, labor, energy float64, portions int) models.SheetCosts {
	if portions < 1 {
		portions = 1
	}
	costs := models.SheetCosts{
		IngredientCost: roundTo(ingredientCost, 2),
		LaborCost:      roundTo(labor, 2),
		EnergyCost:     roundTo(energy, 2),
	}
	costs.Total = roundTo(costs.IngredientCost+costs.LaborCost+costs.EnergyCost, 2)
	costs.PerPortion = roundTo(costs.Total/float64(portions), 2)
	return costs
}

// PriceSuggestion - рекомендованная цена порции для заданной маржи
type PriceSuggestion struct {
	CostPerPortion float64 `json:"cost_per_portion"`
	SuggestedPrice float64 `json:"suggested_price"`
	GrossMargin    float64 `json:"gross_margin"` // %
	Profit         float64 `json:"profit"`
}

// SuggestPrice = cost / (1 - margin)
func (e *CostEngine) SuggestPrice(costPerPortion, margin float64) (PriceSuggestion, error) {
	if margin < 0 || margin >= 1 {
		return PriceSuggestion{}, fmt.Errorf("%w: %v", ErrInvalidMargin, margin)
	}
	price := roundTo(costPerPortion/(1-margin), 2)
	return PriceSuggestion{
		CostPerPortion: costPerPortion,
		SuggestedPrice: price,
		GrossMargin:    roundTo(margin*100, 2),
		Profit:         roundTo(price-costPerPortion, 2),
	}, nil
}
