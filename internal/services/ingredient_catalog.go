package services

import (
	"context"
	"errors"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/metrics"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/repositories"
)

// IngredientCatalog загружает ингредиенты пачками не больше limit id на запрос.
// Упавший пакетный запрос деградирует до чтения по одному id; повторов нет.
type IngredientCatalog struct {
	repo    repositories.IngredientRepository
	limit   int
	metrics *metrics.Collector
}

func NewIngredientCatalog(repo repositories.IngredientRepository, limit int, m *metrics.Collector) *IngredientCatalog {
	if limit < 1 {
		limit = 1
	}
	return &IngredientCatalog{repo: repo, limit: limit, metrics: m}
}

// Lookup возвращает найденные ингредиенты и список id, которые разрешить не удалось
func (c *IngredientCatalog) Lookup(ctx context.Context, ids []string) (map[string]models.Ingredient, []string) {
	unique := dedupe(ids)
	found := make(map[string]models.Ingredient, len(unique))
	if len(unique) == 0 {
		return found, nil
	}

	// Новый загрузчик на каждый вызов: кэш загрузчика живет не дольше одного расчета
	loader := dataloader.NewBatchedLoader(
		c.loadChunk,
		dataloader.WithBatchCapacity[string, *models.Ingredient](c.limit),
		dataloader.WithWait[string, *models.Ingredient](time.Millisecond),
	)
	values, errs := loader.LoadMany(ctx, unique)()

	var missing []string
	for i, id := range unique {
		var err error
		if errs != nil {
			err = errs[i]
		}
		if err != nil || values[i] == nil {
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				log.Warn().Err(err).Str("ingredient_id", id).Msg("Не удалось загрузить ингредиент")
			}
			missing = append(missing, id)
			continue
		}
		found[id] = *values[i]
	}
	c.metrics.IngredientMissing(len(missing))
	return found, missing
}

func (c *IngredientCatalog) loadChunk(ctx context.Context, ids []string) []*dataloader.Result[*models.Ingredient] {
	results := make([]*dataloader.Result[*models.Ingredient], len(ids))

	list, err := c.repo.GetByIDs(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int("chunk", len(ids)).Msg("Пакетная загрузка ингредиентов не удалась, читаем по одному")
		c.metrics.LookupFallback()
		for i, id := range ids {
			ingredient, err := c.repo.GetByID(ctx, id)
			results[i] = &dataloader.Result[*models.Ingredient]{Data: ingredient, Error: err}
		}
		return results
	}

	byID := make(map[string]*models.Ingredient, len(list))
	for i := range list {
		byID[list[i].ID] = &list[i]
	}
	for i, id := range ids {
		if ingredient, ok := byID[id]; ok {
			results[i] = &dataloader.Result[*models.Ingredient]{Data: ingredient}
		} else {
			results[i] = &dataloader.Result[*models.Ingredient]{Error: repositories.ErrNotFound}
		}
	}
	return results
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
