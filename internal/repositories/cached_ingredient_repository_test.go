package repositories

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/utils"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return utils.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

type countingIngredientRepo struct {
	IngredientRepository
	getByID  int
	getByIDs int
}

func (r *countingIngredientRepo) GetByID(ctx context.Context, id string) (*models.Ingredient, error) {
	r.getByID++
	return r.IngredientRepository.GetByID(ctx, id)
}

func (r *countingIngredientRepo) GetByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	r.getByIDs++
	return r.IngredientRepository.GetByIDs(ctx, ids)
}

func TestCachedIngredientRepositoryReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := &countingIngredientRepo{IngredientRepository: NewMemoryIngredientRepository(
		models.Ingredient{ID: "tomato", Name: "Tomato", Unit: "kg", CostPerUnit: 2},
	)}
	repo := NewCachedIngredientRepository(backing, newMapCache(), time.Minute)

	first, err := repo.GetByID(ctx, "tomato")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "tomato")
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, 1, backing.getByID)
}

func TestCachedIngredientRepositoryInvalidatesOnUpdate(t *testing.T) {
	ctx := context.Background()
	backing := &countingIngredientRepo{IngredientRepository: NewMemoryIngredientRepository(
		models.Ingredient{ID: "tomato", Name: "Tomato", Unit: "kg", CostPerUnit: 2},
	)}
	repo := NewCachedIngredientRepository(backing, newMapCache(), time.Minute)

	ingredient, err := repo.GetByID(ctx, "tomato")
	require.NoError(t, err)
	ingredient.CostPerUnit = 3
	require.NoError(t, repo.Update(ctx, ingredient))

	fresh, err := repo.GetByID(ctx, "tomato")
	require.NoError(t, err)
	assert.Equal(t, 3.0, fresh.CostPerUnit)
	assert.Equal(t, 2, backing.getByID)
}

func TestCachedIngredientRepositoryBulkFetchesOnlyMisses(t *testing.T) {
	ctx := context.Background()
	backing := &countingIngredientRepo{IngredientRepository: NewMemoryIngredientRepository(
		models.Ingredient{ID: "a", Name: "A"},
		models.Ingredient{ID: "b", Name: "B"},
	)}
	repo := NewCachedIngredientRepository(backing, newMapCache(), time.Minute)

	_, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)

	list, err := repo.GetByIDs(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, backing.getByIDs)

	list, err = repo.GetByIDs(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, backing.getByIDs)
}
