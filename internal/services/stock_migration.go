package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/events"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/utils"
)

// MigrationResult - итог перевода плоского остатка на партии
type MigrationResult struct {
	Migrated bool                  `json:"migrated"` // false, если у позиции уже были партии
	Quantity float64               `json:"quantity"`
	Item     *models.InventoryItem `json:"item"`
}

// StockMigrationService переводит legacy-остаток ингредиента в партионный учет
type StockMigrationService struct {
	ingredients repositories.IngredientRepository
	inventory   repositories.InventoryRepository
	movements   repositories.StockMovementRepository
	ledger      *BatchLedger
	locker      utils.Locker
	publisher   events.Publisher
	now         func() time.Time
}

func NewStockMigrationService(
	ingredients repositories.IngredientRepository,
	inventory repositories.InventoryRepository,
	movements repositories.StockMovementRepository,
	ledger *BatchLedger,
	locker utils.Locker,
	publisher events.Publisher,
	now func() time.Time,
) *StockMigrationService {
	if locker == nil {
		locker = utils.NoopLocker{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &StockMigrationService{
		ingredients: ingredients,
		inventory:   inventory,
		movements:   movements,
		ledger:      ledger,
		locker:      locker,
		publisher:   publisher,
		now:         now,
	}
}

// MigrateIngredient создает одну синтетическую партию из Ingredient.Stock.
// Повторный вызов ничего не меняет: позиция с партиями считается уже переведенной.
func (s *StockMigrationService) MigrateIngredient(ctx context.Context, ingredientID, locationID, userID string) (*MigrationResult, error) {
	ingredient, err := s.ingredients.GetByID(ctx, ingredientID)
	if err != nil {
		return nil, fmt.Errorf("ингредиент %s: %w", ingredientID, err)
	}
	if locationID == "" {
		locationID = ingredient.LocationID
	}

	release, err := s.locker.Acquire(ctx, inventoryLockKey(ingredientID, locationID))
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := s.inventory.QueryByIngredientAndLocation(ctx, ingredientID, locationID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		item = nil
	case err != nil:
		return nil, err
	case len(item.Batches) > 0:
		log.Info().Str("ingredient_id", ingredientID).Msg("Позиция уже на партионном учете, миграция пропущена")
		return &MigrationResult{Item: item}, nil
	}

	batches := s.ledger.BootstrapFromFlatStock(*ingredient, locationID)
	quantity := TotalStock(batches)

	if item == nil {
		item = &models.InventoryItem{
			IngredientID: ingredientID,
			LocationID:   locationID,
			Unit:         ingredient.Unit,
			CostPerUnit:  ingredient.CostPerUnit,
			Batches:      batches,
			Stock:        quantity,
		}
		if err := s.inventory.Create(ctx, item); err != nil {
			return nil, err
		}
	} else {
		item.Batches = batches
		item.Stock = quantity
		if item.CostPerUnit == 0 {
			item.CostPerUnit = ingredient.CostPerUnit
		}
		if err := s.inventory.Update(ctx, item); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if quantity > 0 {
		movement := &models.StockMovement{
			IngredientID: ingredientID,
			Type:         models.MovementMigration,
			Quantity:     quantity,
			CostPerUnit:  ingredient.CostPerUnit,
			Date:         now,
			ReferenceID:  item.ID,
			UserID:       userID,
			LocationID:   locationID,
			Notes:        "Перенос остатка на партионный учет",
		}
		if err := s.movements.Append(ctx, movement); err != nil {
			return nil, fmt.Errorf("партии созданы, но движение не записано: %w", err)
		}
	}

	ingredient.Stock = 0
	if err := s.ingredients.Update(ctx, ingredient); err != nil {
		return nil, fmt.Errorf("партии созданы, но legacy-остаток не обнулен: %w", err)
	}

	publishStockEvent(ctx, s.publisher, events.StockEvent{
		Type:            events.StockMigrated,
		InventoryItemID: item.ID,
		IngredientID:    ingredientID,
		LocationID:      locationID,
		ReferenceID:     item.ID,
		UserID:          userID,
		Quantity:        quantity,
		StockAfter:      item.Stock,
		OccurredAt:      now,
	})

	log.Info().Str("ingredient_id", ingredientID).Float64("quantity", quantity).Msg("📦 Остаток переведен на партии")
	return &MigrationResult{Migrated: true, Quantity: quantity, Item: item}, nil
}

// ExpiringBatches - партии позиции, у которых срок истекает в ближайшие days дней
func (s *StockMigrationService) ExpiringBatches(ctx context.Context, itemID string, days int) ([]models.Batch, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days не может быть отрицательным", ErrValidation)
	}
	item, err := s.inventory.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.ledger.ExpiringWithin(item.Batches, days), nil
}
