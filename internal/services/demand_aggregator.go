package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
)

const (
	DemandForecast   = "forecast"
	DemandHistorical = "historical"
)

// IngredientDemand - суммарная потребность в ингредиенте за окно
type IngredientDemand struct {
	IngredientID  string  `json:"ingredient_id"`
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	Quantity      float64 `json:"quantity"`
	EventCount    int     `json:"event_count"` // Число разных событий, где ингредиент нужен
	EstimatedCost float64 `json:"estimated_cost"`
}

// SkippedReference - ссылка, которую не удалось разрешить при обходе событий
type SkippedReference struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"` // menu, recipe, unit
	RefID   string `json:"ref_id"`
	Reason  string `json:"reason"`
}

// DemandSummary - потребность в ингредиентах по событиям точки за период
type DemandSummary struct {
	Mode               string             `json:"mode"`
	LocationID         string             `json:"location_id"`
	From               time.Time          `json:"from"`
	To                 time.Time          `json:"to"`
	EventsConsidered   int                `json:"events_considered"`
	TotalPax           int                `json:"total_pax"`
	Ingredients        []IngredientDemand `json:"ingredients"`
	EstimatedCost      float64            `json:"estimated_cost"`
	Skipped            []SkippedReference `json:"skipped,omitempty"`
	MissingIngredients []string           `json:"missing_ingredients,omitempty"`
}

// DemandAggregator сворачивает Event -> Menu -> Recipe -> Ingredient в потребность по ингредиентам.
// Количество строки масштабируется как quantity * pax / yieldPax.
type DemandAggregator struct {
	events    repositories.EventRepository
	menus     repositories.MenuRepository
	recipes   repositories.RecipeRepository
	inventory repositories.InventoryRepository
	catalog   *IngredientCatalog
	costs     *CostEngine
	converter UnitConverter
	now       func() time.Time
}

func NewDemandAggregator(
	events repositories.EventRepository,
	menus repositories.MenuRepository,
	recipes repositories.RecipeRepository,
	inventory repositories.InventoryRepository,
	catalog *IngredientCatalog,
	costs *CostEngine,
	now func() time.Time,
) *DemandAggregator {
	if now == nil {
		now = time.Now
	}
	return &DemandAggregator{
		events:    events,
		menus:     menus,
		recipes:   recipes,
		inventory: inventory,
		catalog:   catalog,
		costs:     costs,
		now:       now,
	}
}

// Forecast - потребность по предстоящим событиям в окне [from, to]
func (a *DemandAggregator) Forecast(ctx context.Context, locationID string, from, to time.Time) (*DemandSummary, error) {
	return a.aggregate(ctx, DemandForecast, locationID, from, to)
}

// Historical - потребность по прошедшим событиям в окне [from, to]
func (a *DemandAggregator) Historical(ctx context.Context, locationID string, from, to time.Time) (*DemandSummary, error) {
	return a.aggregate(ctx, DemandHistorical, locationID, from, to)
}

func (a *DemandAggregator) ForecastNextDays(ctx context.Context, locationID string, days int) (*DemandSummary, error) {
	now := a.now().UTC()
	return a.Forecast(ctx, locationID, now, now.AddDate(0, 0, days))
}

func (a *DemandAggregator) HistoricalLastDays(ctx context.Context, locationID string, days int) (*DemandSummary, error) {
	now := a.now().UTC()
	return a.Historical(ctx, locationID, now.AddDate(0, 0, -days), now)
}

type contribution struct {
	eventID      string
	ingredientID string
	quantity     float64
	unit         string
}

func (a *DemandAggregator) aggregate(ctx context.Context, mode, locationID string, from, to time.Time) (*DemandSummary, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: конец периода раньше начала", ErrValidation)
	}

	events, err := a.events.QueryByLocationAndDateRange(ctx, locationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки событий: %w", err)
	}

	summary := &DemandSummary{
		Mode:             mode,
		LocationID:       locationID,
		From:             from,
		To:               to,
		EventsConsidered: len(events),
		Ingredients:      []IngredientDemand{},
	}

	menuIDs := make([]string, 0, len(events))
	for _, e := range events {
		menuIDs = append(menuIDs, e.MenuID)
	}
	menus, err := a.resolveMenus(ctx, menuIDs)
	if err != nil {
		return nil, err
	}

	var recipeIDs []string
	for _, m := range menus {
		recipeIDs = append(recipeIDs, m.RecipeIDs...)
	}
	recipes, err := a.resolveRecipes(ctx, recipeIDs)
	if err != nil {
		return nil, err
	}

	var contributions []contribution
	for _, event := range events {
		summary.TotalPax += event.Pax
		menu, ok := menus[event.MenuID]
		if !ok {
			summary.Skipped = append(summary.Skipped, SkippedReference{EventID: event.ID, Kind: "menu", RefID: event.MenuID, Reason: "menu not found"})
			continue
		}
		for _, recipeID := range menu.RecipeIDs {
			recipe, ok := recipes[recipeID]
			if !ok {
				summary.Skipped = append(summary.Skipped, SkippedReference{EventID: event.ID, Kind: "recipe", RefID: recipeID, Reason: "recipe not found"})
				continue
			}
			multiplier := float64(event.Pax) / float64(recipe.EffectiveYieldPax())
			for _, line := range recipe.Lines {
				contributions = append(contributions, contribution{
					eventID:      event.ID,
					ingredientID: line.IngredientID,
					quantity:     line.Quantity * multiplier,
					unit:         line.Unit,
				})
			}
		}
	}

	ids := make([]string, 0, len(contributions))
	for _, c := range contributions {
		ids = append(ids, c.ingredientID)
	}
	catalog, missing := a.catalog.Lookup(ctx, ids)
	summary.MissingIngredients = missing

	totals := make(map[string]*IngredientDemand)
	seenEvents := make(map[string]map[string]struct{})
	for _, c := range contributions {
		demand, ok := totals[c.ingredientID]
		ingredient, known := catalog[c.ingredientID]
		if !ok {
			demand = &IngredientDemand{IngredientID: c.ingredientID, Unit: c.unit}
			if known {
				demand.Name = ingredient.Name
				demand.Unit = ingredient.Unit
			}
			totals[c.ingredientID] = demand
			seenEvents[c.ingredientID] = make(map[string]struct{})
		}

		quantity := c.quantity
		if known && c.unit != "" && !strings.EqualFold(c.unit, ingredient.Unit) {
			converted, err := a.converter.Convert(c.quantity, c.unit, ingredient.Unit, ContextFor(ingredient))
			if err != nil {
				summary.Skipped = append(summary.Skipped, SkippedReference{EventID: c.eventID, Kind: "unit", RefID: c.ingredientID, Reason: err.Error()})
				continue
			}
			quantity = converted
		}

		demand.Quantity += quantity
		seenEvents[c.ingredientID][c.eventID] = struct{}{}
	}

	var totalCost float64
	for id, demand := range totals {
		demand.Quantity = roundTo(demand.Quantity, 4)
		demand.EventCount = len(seenEvents[id])
		if ingredient, ok := catalog[id]; ok {
			if cost, err := a.costs.LineCost(demand.Quantity, ingredient.CostPerUnit, ingredient.EffectiveYield()); err == nil {
				demand.EstimatedCost = roundTo(cost, 2)
			} else {
				log.Warn().Err(err).Str("ingredient_id", id).Msg("Не удалось оценить стоимость потребности")
			}
		}
		totalCost += demand.EstimatedCost
		summary.Ingredients = append(summary.Ingredients, *demand)
	}
	sort.Slice(summary.Ingredients, func(i, j int) bool {
		return summary.Ingredients[i].IngredientID < summary.Ingredients[j].IngredientID
	})
	summary.EstimatedCost = roundTo(totalCost, 2)

	if len(summary.Skipped) > 0 {
		log.Warn().
			Str("location_id", locationID).
			Str("mode", mode).
			Int("skipped", len(summary.Skipped)).
			Msg("Часть ссылок событий не разрешена")
	}
	return summary, nil
}

// resolveMenus загружает меню параллельно; ненайденные просто отсутствуют в результате
func (a *DemandAggregator) resolveMenus(ctx context.Context, ids []string) (map[string]models.Menu, error) {
	result := make(map[string]models.Menu)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range dedupe(ids) {
		id := id
		g.Go(func() error {
			menu, err := a.menus.GetByID(gctx, id)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("ошибка загрузки меню %s: %w", id, err)
			}
			mu.Lock()
			result[id] = *menu
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *DemandAggregator) resolveRecipes(ctx context.Context, ids []string) (map[string]models.Recipe, error) {
	result := make(map[string]models.Recipe)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range dedupe(ids) {
		id := id
		g.Go(func() error {
			recipe, err := a.recipes.GetByID(gctx, id)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("ошибка загрузки рецепта %s: %w", id, err)
			}
			mu.Lock()
			result[id] = *recipe
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
