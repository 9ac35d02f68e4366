package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/events"
	"kitchenledger/server/internal/metrics"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/utils"
)

// CountResult - итог инвентаризации позиции
type CountResult struct {
	InventoryItemID  string                `json:"inventory_item_id"`
	IngredientID     string                `json:"ingredient_id"`
	Counted          float64               `json:"counted"`
	TheoreticalStock float64               `json:"theoretical_stock"` // Ожидаемый остаток до пересчета
	Variance         float64               `json:"variance"`          // counted - theoretical
	Item             *models.InventoryItem `json:"item"`
}

// PhysicalCountService сверяет фактический пересчет с учетным остатком
type PhysicalCountService struct {
	inventory repositories.InventoryRepository
	movements repositories.StockMovementRepository
	ledger    *BatchLedger
	locker    utils.Locker
	publisher events.Publisher
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewPhysicalCountService(
	inventory repositories.InventoryRepository,
	movements repositories.StockMovementRepository,
	ledger *BatchLedger,
	locker utils.Locker,
	publisher events.Publisher,
	m *metrics.Collector,
	now func() time.Time,
) *PhysicalCountService {
	if locker == nil {
		locker = utils.NoopLocker{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &PhysicalCountService{
		inventory: inventory,
		movements: movements,
		ledger:    ledger,
		locker:    locker,
		publisher: publisher,
		metrics:   m,
		now:       now,
	}
}

// RecordCount фиксирует пересчет: variance = counted - (theoreticalStock ?? stock).
// Остаток, теоретический остаток и последний пересчет становятся равны counted.
// Партии выравниваются: недостача списывается FIFO, излишек заводится отдельной партией.
func (s *PhysicalCountService) RecordCount(ctx context.Context, itemID string, counted float64, userID, notes string) (*CountResult, error) {
	if counted < 0 {
		return nil, fmt.Errorf("%w: фактический остаток не может быть отрицательным", ErrValidation)
	}

	current, err := s.inventory.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("складская позиция %s: %w", itemID, err)
	}

	result := &CountResult{InventoryItemID: itemID, Counted: counted}
	now := s.now().UTC()
	load := func(ctx context.Context) (*models.InventoryItem, error) {
		return s.inventory.GetByID(ctx, itemID)
	}

	item, err := updateInventoryItem(ctx, s.locker, s.inventory, inventoryLockKey(current.IngredientID, current.LocationID), load,
		func(item *models.InventoryItem) error {
			theoretical := item.Stock
			if item.TheoreticalStock != nil {
				theoretical = *item.TheoreticalStock
			}
			result.IngredientID = item.IngredientID
			result.TheoreticalStock = theoretical
			result.Variance = roundTo(counted-theoretical, 6)

			item.Batches = s.alignBatches(*item, counted)
			item.Stock = counted
			c := counted
			item.TheoreticalStock = &c
			last := counted
			item.LastPhysicalCount = &last
			item.LastCountedAt = &now
			return nil
		})
	if err != nil {
		return nil, err
	}
	result.Item = item

	if notes == "" {
		notes = "Инвентаризация"
	}
	movement := &models.StockMovement{
		IngredientID: item.IngredientID,
		Type:         models.MovementAdjustment,
		Quantity:     result.Variance,
		CostPerUnit:  item.CostPerUnit,
		Date:         now,
		ReferenceID:  item.ID,
		UserID:       userID,
		LocationID:   item.LocationID,
		Notes:        notes,
	}
	if err := s.movements.Append(ctx, movement); err != nil {
		return result, fmt.Errorf("остаток обновлен, но корректировка не записана: %w", err)
	}

	s.metrics.CountVariance(item.LocationID, result.Variance)
	publishStockEvent(ctx, s.publisher, events.StockEvent{
		Type:            events.StockAdjusted,
		InventoryItemID: item.ID,
		IngredientID:    item.IngredientID,
		LocationID:      item.LocationID,
		ReferenceID:     item.ID,
		UserID:          userID,
		Quantity:        result.Variance,
		StockAfter:      item.Stock,
		OccurredAt:      now,
	})

	log.Info().
		Str("inventory_item_id", item.ID).
		Float64("counted", counted).
		Float64("theoretical", result.TheoreticalStock).
		Float64("variance", result.Variance).
		Msg("✅ Инвентаризация записана")
	return result, nil
}

// alignBatches приводит сумму партий к counted
func (s *PhysicalCountService) alignBatches(item models.InventoryItem, counted float64) []models.Batch {
	diff := roundTo(counted-TotalStock(item.Batches), 6)
	switch {
	case diff < 0:
		return s.ledger.Consume(item.Batches, -diff).Remaining
	case diff > 0:
		return append(SortFIFO(item.Batches), s.ledger.NewSurplusBatch(item, diff))
	}
	return item.Batches
}

// History - журнал движений ингредиента
func (s *PhysicalCountService) History(ctx context.Context, ingredientID string) ([]models.StockMovement, error) {
	movements, err := s.movements.ListByIngredient(ctx, ingredientID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	return movements, nil
}
