package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/models"
)

// ReorderLine - позиция, опустившаяся до точки заказа
type ReorderLine struct {
	InventoryItemID string  `json:"inventory_item_id"`
	IngredientID    string  `json:"ingredient_id"`
	Unit            string  `json:"unit"`
	Stock           float64 `json:"stock"`
	ReorderPoint    float64 `json:"reorder_point"`
	OptimalStock    float64 `json:"optimal_stock"`
	SuggestedOrder  float64 `json:"suggested_order"`
}

// Shortage - нехватка остатка под прогноз
type Shortage struct {
	IngredientID string  `json:"ingredient_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	Needed       float64 `json:"needed"`
	Available    float64 `json:"available"`
	Missing      float64 `json:"missing"`
}

// ReorderNeeds: остаток <= точки заказа -> заказать до оптимального уровня.
// Оптимальный уровень по умолчанию - двойная точка заказа.
func ReorderNeeds(items []models.InventoryItem) []ReorderLine {
	var lines []ReorderLine
	for _, item := range items {
		if item.ReorderPoint <= 0 || item.Stock > item.ReorderPoint {
			continue
		}
		optimal := item.OptimalStock
		if optimal <= 0 {
			optimal = item.ReorderPoint * 2
		}
		order := roundTo(optimal-item.Stock, 4)
		if order <= 0 {
			continue
		}
		lines = append(lines, ReorderLine{
			InventoryItemID: item.ID,
			IngredientID:    item.IngredientID,
			Unit:            item.Unit,
			Stock:           item.Stock,
			ReorderPoint:    item.ReorderPoint,
			OptimalStock:    optimal,
			SuggestedOrder:  order,
		})
	}
	return lines
}

// Shortages сравнивает потребность с текущими остатками точки
func Shortages(summary *DemandSummary, items []models.InventoryItem) []Shortage {
	var converter UnitConverter
	byIngredient := make(map[string]models.InventoryItem, len(items))
	for _, item := range items {
		byIngredient[item.IngredientID] = item
	}

	var shortages []Shortage
	for _, demand := range summary.Ingredients {
		available := 0.0
		if item, ok := byIngredient[demand.IngredientID]; ok {
			available = item.Stock
			if item.Unit != "" && demand.Unit != "" && !strings.EqualFold(item.Unit, demand.Unit) {
				converted, err := converter.Convert(item.Stock, item.Unit, demand.Unit, nil)
				if err != nil {
					log.Warn().Err(err).Str("ingredient_id", demand.IngredientID).Msg("Остаток в несовместимой единице, сравнение пропущено")
					continue
				}
				available = converted
			}
		}
		if demand.Quantity > available {
			shortages = append(shortages, Shortage{
				IngredientID: demand.IngredientID,
				Name:         demand.Name,
				Unit:         demand.Unit,
				Needed:       demand.Quantity,
				Available:    available,
				Missing:      roundTo(demand.Quantity-available, 4),
			})
		}
	}
	return shortages
}

// ReorderNeeds по всем позициям точки
func (a *DemandAggregator) ReorderNeeds(ctx context.Context, locationID string) ([]ReorderLine, error) {
	items, err := a.inventory.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки остатков: %w", err)
	}
	return ReorderNeeds(items), nil
}

// CheckAvailability - хватит ли остатков под события ближайших days дней
func (a *DemandAggregator) CheckAvailability(ctx context.Context, locationID string, days int) (*DemandSummary, []Shortage, error) {
	summary, err := a.ForecastNextDays(ctx, locationID, days)
	if err != nil {
		return nil, nil, err
	}
	items, err := a.inventory.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка загрузки остатков: %w", err)
	}
	return summary, Shortages(summary, items), nil
}
