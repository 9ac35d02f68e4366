package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/utils"
)

const maxUpdateAttempts = 3

// errNoChange - мутация решила ничего не писать
var errNoChange = errors.New("no change")

func inventoryLockKey(ingredientID, locationID string) string {
	return fmt.Sprintf("inventory:%s:%s", ingredientID, locationID)
}

// updateInventoryItem под блокировкой читает позицию, применяет mutate и сохраняет
// с compare-and-swap. При конфликте ревизий перечитывает и повторяет.
func updateInventoryItem(
	ctx context.Context,
	locker utils.Locker,
	repo repositories.InventoryRepository,
	lockKey string,
	load func(ctx context.Context) (*models.InventoryItem, error),
	mutate func(item *models.InventoryItem) error,
) (*models.InventoryItem, error) {
	release, err := locker.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		item, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := mutate(item); err != nil {
			if errors.Is(err, errNoChange) {
				return item, err
			}
			return nil, err
		}
		err = repo.Update(ctx, item)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, repositories.ErrConflict) {
			return nil, err
		}
		log.Warn().Str("inventory_item_id", item.ID).Int("attempt", attempt).Msg("Конфликт ревизий складской позиции, перечитываем")
	}
	return nil, fmt.Errorf("складская позиция %s: %w после %d попыток", lockKey, repositories.ErrConflict, maxUpdateAttempts)
}
