package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/events"
	"kitchenledger/server/internal/metrics"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/utils"
)

// DeductionLine - списание одного ингредиента
type DeductionLine struct {
	IngredientID    string  `json:"ingredient_id"`
	InventoryItemID string  `json:"inventory_item_id"`
	Unit            string  `json:"unit"`
	Requested       float64 `json:"requested"`
	Consumed        float64 `json:"consumed"`
	Shortfall       float64 `json:"shortfall"`
	CostPerUnit     float64 `json:"cost_per_unit"` // Средняя цена списанных партий
	StockAfter      float64 `json:"stock_after"`
}

type SkippedIngredient struct {
	IngredientID string  `json:"ingredient_id"`
	Requested    float64 `json:"requested"`
	Reason       string  `json:"reason"`
}

type FailedIngredient struct {
	IngredientID string `json:"ingredient_id"`
	Error        string `json:"error"`
}

// DeductionReport - что списано, что пропущено и что упало.
// Списание не транзакционно между ингредиентами: отчет показывает частичный прогресс.
type DeductionReport struct {
	EventID       string              `json:"event_id"`
	LocationID    string              `json:"location_id"`
	Abandoned     bool                `json:"abandoned"`
	AbandonReason string              `json:"abandon_reason,omitempty"`
	Deducted      []DeductionLine     `json:"deducted"`
	Skipped       []SkippedIngredient `json:"skipped"`
	Failed        []FailedIngredient  `json:"failed"`
}

// Outcome - итог для метрик
func (r *DeductionReport) Outcome() string {
	switch {
	case r.Abandoned:
		return "abandoned"
	case len(r.Failed) > 0:
		return "partial"
	default:
		return "completed"
	}
}

const (
	skipNoInventoryItem = "no_inventory_item"
	skipNoBatches       = "no_batches"
)

// StockDeductionService списывает со склада ингредиенты, нужные под событие
type StockDeductionService struct {
	events    repositories.EventRepository
	menus     repositories.MenuRepository
	recipes   repositories.RecipeRepository
	inventory repositories.InventoryRepository
	movements repositories.StockMovementRepository
	catalog   *IngredientCatalog
	ledger    *BatchLedger
	locker    utils.Locker
	publisher events.Publisher
	metrics   *metrics.Collector
	converter UnitConverter
	now       func() time.Time
}

type StockDeductionDeps struct {
	Events    repositories.EventRepository
	Menus     repositories.MenuRepository
	Recipes   repositories.RecipeRepository
	Inventory repositories.InventoryRepository
	Movements repositories.StockMovementRepository
	Catalog   *IngredientCatalog
	Ledger    *BatchLedger
	Locker    utils.Locker
	Publisher events.Publisher
	Metrics   *metrics.Collector
	Now       func() time.Time
}

func NewStockDeductionService(deps StockDeductionDeps) *StockDeductionService {
	s := &StockDeductionService{
		events:    deps.Events,
		menus:     deps.Menus,
		recipes:   deps.Recipes,
		inventory: deps.Inventory,
		movements: deps.Movements,
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		now:       deps.Now,
	}
	if s.locker == nil {
		s.locker = utils.NoopLocker{}
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type requirement struct {
	quantity float64
	unit     string
}

// DeductForEvent списывает FIFO все ингредиенты меню события, масштабируя строки на pax / yieldPax.
// Повторный вызов для того же события спишет еще раз.
func (s *StockDeductionService) DeductForEvent(ctx context.Context, eventID, userID string) (*DeductionReport, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("событие %s: %w", eventID, err)
	}
	report := &DeductionReport{
		EventID:    event.ID,
		LocationID: event.LocationID,
		Deducted:   []DeductionLine{},
		Skipped:    []SkippedIngredient{},
		Failed:     []FailedIngredient{},
	}

	needs, abandon, err := s.collectRequirements(ctx, event)
	if err != nil {
		return nil, err
	}
	if abandon != "" {
		report.Abandoned = true
		report.AbandonReason = abandon
		log.Warn().Str("event_id", event.ID).Str("reason", abandon).Msg("Списание по событию отменено")
		s.metrics.DeductionFinished(report.Outcome())
		return report, nil
	}

	ids := make([]string, 0, len(needs))
	for id, reqs := range needs {
		// нулевая потребность (pax = 0, пустая строка рецепта) склад не трогает
		if sumRequirements(reqs) <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	catalog, _ := s.catalog.Lookup(ctx, ids)

	var errs []error
	for _, ingredientID := range ids {
		var cc *ConversionContext
		baseUnit := ""
		if ingredient, ok := catalog[ingredientID]; ok {
			cc = ContextFor(ingredient)
			baseUnit = ingredient.Unit
		}
		line, skip, err := s.deductIngredient(ctx, event, userID, ingredientID, needs[ingredientID], baseUnit, cc)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, FailedIngredient{IngredientID: ingredientID, Error: err.Error()})
			errs = append(errs, fmt.Errorf("ингредиент %s: %w", ingredientID, err))
			log.Error().Err(err).Str("event_id", event.ID).Str("ingredient_id", ingredientID).Msg("Ошибка списания ингредиента")
		case skip != nil:
			report.Skipped = append(report.Skipped, *skip)
			s.metrics.IngredientSkipped(skip.Reason)
			log.Warn().Str("event_id", event.ID).Str("ingredient_id", ingredientID).Str("reason", skip.Reason).Msg("Ингредиент пропущен при списании")
		default:
			report.Deducted = append(report.Deducted, *line)
		}
	}

	s.metrics.DeductionFinished(report.Outcome())
	log.Info().
		Str("event_id", event.ID).
		Int("deducted", len(report.Deducted)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("✅ Списание по событию завершено")
	return report, errors.Join(errs...)
}

// collectRequirements возвращает потребность по ингредиентам или причину отмены
func (s *StockDeductionService) collectRequirements(ctx context.Context, event *models.Event) (map[string][]requirement, string, error) {
	menu, err := s.menus.GetByID(ctx, event.MenuID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Sprintf("меню %s не найдено", event.MenuID), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("ошибка загрузки меню %s: %w", event.MenuID, err)
	}

	needs := make(map[string][]requirement)
	var missing []string
	for _, recipeID := range menu.RecipeIDs {
		recipe, err := s.recipes.GetByID(ctx, recipeID)
		if errors.Is(err, repositories.ErrNotFound) {
			missing = append(missing, recipeID)
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("ошибка загрузки рецепта %s: %w", recipeID, err)
		}
		multiplier := float64(event.Pax) / float64(recipe.EffectiveYieldPax())
		for _, line := range recipe.Lines {
			needs[line.IngredientID] = append(needs[line.IngredientID], requirement{
				quantity: line.Quantity * multiplier,
				unit:     line.Unit,
			})
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Sprintf("рецепты не найдены: %s", strings.Join(missing, ", ")), nil
	}
	return needs, "", nil
}

func (s *StockDeductionService) deductIngredient(
	ctx context.Context,
	event *models.Event,
	userID, ingredientID string,
	reqs []requirement,
	baseUnit string,
	cc *ConversionContext,
) (*DeductionLine, *SkippedIngredient, error) {
	var (
		line  *DeductionLine
		skip  *SkippedIngredient
		total float64
	)

	load := func(ctx context.Context) (*models.InventoryItem, error) {
		return s.inventory.QueryByIngredientAndLocation(ctx, ingredientID, event.LocationID)
	}
	item, err := updateInventoryItem(ctx, s.locker, s.inventory, inventoryLockKey(ingredientID, event.LocationID), load,
		func(item *models.InventoryItem) error {
			var err error
			total, err = s.requiredInItemUnit(reqs, item.Unit, baseUnit, cc)
			if err != nil {
				return err
			}
			if len(item.Batches) == 0 {
				skip = &SkippedIngredient{IngredientID: ingredientID, Requested: total, Reason: skipNoBatches}
				return errNoChange
			}

			result := s.ledger.Consume(item.Batches, total)
			item.Batches = result.Remaining
			item.Stock = TotalStock(result.Remaining)
			if item.TheoreticalStock != nil {
				theoretical := roundTo(*item.TheoreticalStock-total, 6)
				item.TheoreticalStock = &theoretical
			}
			line = &DeductionLine{
				IngredientID:    ingredientID,
				InventoryItemID: item.ID,
				Unit:            item.Unit,
				Requested:       roundTo(total, 6),
				Consumed:        result.Consumed,
				Shortfall:       result.Shortfall(),
				CostPerUnit:     result.AverageCost(),
				StockAfter:      item.Stock,
			}
			return nil
		})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, &SkippedIngredient{IngredientID: ingredientID, Requested: sumRequirements(reqs), Reason: skipNoInventoryItem}, nil
	}
	if errors.Is(err, errNoChange) {
		return nil, skip, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if line.Shortfall > 0 {
		s.metrics.Shortfall(event.LocationID)
		log.Warn().
			Str("event_id", event.ID).
			Str("ingredient_id", ingredientID).
			Float64("requested", line.Requested).
			Float64("consumed", line.Consumed).
			Msg("⚠️ Недостаточно остатка в партиях")
	}
	s.metrics.QuantityDeducted(event.LocationID, line.Consumed)

	if line.Consumed > 0 {
		notes := fmt.Sprintf("Списание под событие %s (%d гостей)", event.Name, event.Pax)
		if line.Shortfall > 0 {
			notes += fmt.Sprintf("; не хватило %.4f %s", line.Shortfall, line.Unit)
		}
		movement := &models.StockMovement{
			IngredientID: ingredientID,
			Type:         models.MovementConsumption,
			Quantity:     -line.Consumed,
			CostPerUnit:  line.CostPerUnit,
			Date:         s.now().UTC(),
			ReferenceID:  event.ID,
			UserID:       userID,
			LocationID:   event.LocationID,
			Notes:        notes,
		}
		if err := s.movements.Append(ctx, movement); err != nil {
			return nil, nil, fmt.Errorf("остаток списан, но движение не записано: %w", err)
		}
	}

	publishStockEvent(ctx, s.publisher, events.StockEvent{
		Type:            events.StockDeducted,
		InventoryItemID: item.ID,
		IngredientID:    ingredientID,
		LocationID:      event.LocationID,
		ReferenceID:     event.ID,
		UserID:          userID,
		Quantity:        -line.Consumed,
		StockAfter:      item.Stock,
		OccurredAt:      s.now().UTC(),
	})
	return line, nil, nil
}

// requiredInItemUnit суммирует потребность в единице складской позиции
func (s *StockDeductionService) requiredInItemUnit(reqs []requirement, itemUnit, baseUnit string, cc *ConversionContext) (float64, error) {
	var total float64
	for _, r := range reqs {
		from := r.unit
		if from == "" {
			from = baseUnit
		}
		if from == "" || itemUnit == "" || strings.EqualFold(from, itemUnit) {
			total += r.quantity
			continue
		}
		converted, err := s.converter.Convert(r.quantity, from, itemUnit, cc)
		if err != nil {
			return 0, err
		}
		total += converted
	}
	return total, nil
}

func sumRequirements(reqs []requirement) float64 {
	var total float64
	for _, r := range reqs {
		total += r.quantity
	}
	return roundTo(total, 6)
}

// publishStockEvent - доставка событий best effort, ошибка только логируется
func publishStockEvent(ctx context.Context, publisher events.Publisher, event events.StockEvent) {
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("type", event.Type).Str("ingredient_id", event.IngredientID).Msg("Не удалось опубликовать событие склада")
	}
}
