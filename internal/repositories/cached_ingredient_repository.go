package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/utils"
)

const ingredientCachePrefix = "ingredient:"

// CachedIngredientRepository - read-through кэш справочника ингредиентов в Redis.
// Ошибки кэша не ломают чтение: запрос уходит в нижележащий репозиторий.
type CachedIngredientRepository struct {
	next  IngredientRepository
	cache utils.Cache
	ttl   time.Duration
}

func NewCachedIngredientRepository(next IngredientRepository, cache utils.Cache, ttl time.Duration) *CachedIngredientRepository {
	return &CachedIngredientRepository{next: next, cache: cache, ttl: ttl}
}

func (r *CachedIngredientRepository) GetByID(ctx context.Context, id string) (*models.Ingredient, error) {
	var cached models.Ingredient
	if err := r.cache.GetJSON(ctx, ingredientCachePrefix+id, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, utils.ErrCacheMiss) {
		log.Warn().Err(err).Str("ingredient_id", id).Msg("Кэш ингредиентов недоступен")
	}

	ingredient, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, *ingredient)
	return ingredient, nil
}

func (r *CachedIngredientRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	result := make([]models.Ingredient, 0, len(ids))
	var misses []string
	for _, id := range ids {
		var cached models.Ingredient
		if err := r.cache.GetJSON(ctx, ingredientCachePrefix+id, &cached); err == nil {
			result = append(result, cached)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := r.next.GetByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, ingredient := range fetched {
		r.store(ctx, ingredient)
	}
	return append(result, fetched...), nil
}

func (r *CachedIngredientRepository) Update(ctx context.Context, ingredient *models.Ingredient) error {
	if err := r.next.Update(ctx, ingredient); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, ingredientCachePrefix+ingredient.ID); err != nil {
		log.Warn().Err(err).Str("ingredient_id", ingredient.ID).Msg("Не удалось сбросить кэш ингредиента")
	}
	return nil
}

func (r *CachedIngredientRepository) store(ctx context.Context, ingredient models.Ingredient) {
	if err := r.cache.Set(ctx, ingredientCachePrefix+ingredient.ID, ingredient, r.ttl); err != nil {
		log.Warn().Err(err).Str("ingredient_id", ingredient.ID).Msg("Не удалось записать ингредиент в кэш")
	}
}
