package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"kitchenledger/server/internal/models"
)

// In-memory реализации для тестов и локального запуска без БД.
// Наружу всегда отдаются глубокие копии, как будто запись прочитана из хранилища.

func clone[T any](v T) T {
	return deepcopy.Copy(v).(T)
}

type MemoryIngredientRepository struct {
	mu    sync.RWMutex
	items map[string]models.Ingredient
}

func NewMemoryIngredientRepository(seed ...models.Ingredient) *MemoryIngredientRepository {
	r := &MemoryIngredientRepository{items: make(map[string]models.Ingredient)}
	for _, i := range seed {
		if i.ID == "" {
			i.ID = uuid.New().String()
		}
		r.items[i.ID] = clone(i)
	}
	return r
}

func (r *MemoryIngredientRepository) GetByID(ctx context.Context, id string) (*models.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(i)
	return &c, nil
}

func (r *MemoryIngredientRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]models.Ingredient, 0, len(ids))
	for _, id := range ids {
		if i, ok := r.items[id]; ok {
			result = append(result, clone(i))
		}
	}
	return result, nil
}

func (r *MemoryIngredientRepository) Update(ctx context.Context, ingredient *models.Ingredient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[ingredient.ID]; !ok {
		return ErrNotFound
	}
	ingredient.UpdatedAt = time.Now().UTC()
	r.items[ingredient.ID] = clone(*ingredient)
	return nil
}

type MemoryInventoryRepository struct {
	mu    sync.RWMutex
	items map[string]models.InventoryItem
}

func NewMemoryInventoryRepository(seed ...models.InventoryItem) *MemoryInventoryRepository {
	r := &MemoryInventoryRepository{items: make(map[string]models.InventoryItem)}
	for _, i := range seed {
		if i.ID == "" {
			i.ID = uuid.New().String()
		}
		r.items[i.ID] = clone(i)
	}
	return r
}

func (r *MemoryInventoryRepository) GetByID(ctx context.Context, id string) (*models.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(i)
	return &c, nil
}

func (r *MemoryInventoryRepository) QueryByIngredientAndLocation(ctx context.Context, ingredientID, locationID string) (*models.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.items {
		if i.IngredientID == ingredientID && i.LocationID == locationID {
			c := clone(i)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryInventoryRepository) ListByLocation(ctx context.Context, locationID string) ([]models.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.InventoryItem
	for _, i := range r.items {
		if i.LocationID == locationID {
			result = append(result, clone(i))
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].IngredientID < result[b].IngredientID })
	return result, nil
}

func (r *MemoryInventoryRepository) Create(ctx context.Context, item *models.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.items {
		if i.IngredientID == item.IngredientID && i.LocationID == item.LocationID {
			return ErrDuplicateKey
		}
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	item.Revision = 1
	r.items[item.ID] = clone(*item)
	return nil
}

func (r *MemoryInventoryRepository) Update(ctx context.Context, item *models.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Revision != item.Revision {
		return ErrConflict
	}
	item.Revision++
	item.UpdatedAt = time.Now().UTC()
	r.items[item.ID] = clone(*item)
	return nil
}

type MemoryEventRepository struct {
	mu    sync.RWMutex
	items map[string]models.Event
}

func NewMemoryEventRepository(seed ...models.Event) *MemoryEventRepository {
	r := &MemoryEventRepository{items: make(map[string]models.Event)}
	for _, e := range seed {
		r.items[e.ID] = clone(e)
	}
	return r
}

func (r *MemoryEventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(e)
	return &c, nil
}

func (r *MemoryEventRepository) QueryByLocationAndDateRange(ctx context.Context, locationID string, from, to time.Time) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.Event
	for _, e := range r.items {
		if e.LocationID != locationID || e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		result = append(result, clone(e))
	}
	sort.SliceStable(result, func(a, b int) bool {
		if result[a].Date.Equal(result[b].Date) {
			return result[a].ID < result[b].ID
		}
		return result[a].Date.Before(result[b].Date)
	})
	return result, nil
}

type MemoryMenuRepository struct {
	mu    sync.RWMutex
	items map[string]models.Menu
}

func NewMemoryMenuRepository(seed ...models.Menu) *MemoryMenuRepository {
	r := &MemoryMenuRepository{items: make(map[string]models.Menu)}
	for _, m := range seed {
		r.items[m.ID] = clone(m)
	}
	return r
}

func (r *MemoryMenuRepository) GetByID(ctx context.Context, id string) (*models.Menu, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(m)
	return &c, nil
}

type MemoryRecipeRepository struct {
	mu    sync.RWMutex
	items map[string]models.Recipe
}

func NewMemoryRecipeRepository(seed ...models.Recipe) *MemoryRecipeRepository {
	r := &MemoryRecipeRepository{items: make(map[string]models.Recipe)}
	for _, rec := range seed {
		r.items[rec.ID] = clone(rec)
	}
	return r
}

func (r *MemoryRecipeRepository) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(rec)
	return &c, nil
}

type MemoryStockMovementRepository struct {
	mu        sync.RWMutex
	movements []models.StockMovement
}

func NewMemoryStockMovementRepository() *MemoryStockMovementRepository {
	return &MemoryStockMovementRepository{}
}

func (r *MemoryStockMovementRepository) Append(ctx context.Context, movement *models.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if movement.ID == "" {
		movement.ID = uuid.New().String()
	}
	movement.CreatedAt = time.Now().UTC()
	r.movements = append(r.movements, clone(*movement))
	return nil
}

func (r *MemoryStockMovementRepository) ListByIngredient(ctx context.Context, ingredientID string) ([]models.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.StockMovement
	for _, m := range r.movements {
		if m.IngredientID == ingredientID {
			result = append(result, clone(m))
		}
	}
	return result, nil
}

// All возвращает весь журнал в порядке добавления
func (r *MemoryStockMovementRepository) All() []models.StockMovement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.movements)
}

type MemoryTechnicalSheetRepository struct {
	mu    sync.RWMutex
	items map[string]models.TechnicalSheet
}

func NewMemoryTechnicalSheetRepository(seed ...models.TechnicalSheet) *MemoryTechnicalSheetRepository {
	r := &MemoryTechnicalSheetRepository{items: make(map[string]models.TechnicalSheet)}
	for _, s := range seed {
		r.items[s.ID] = clone(s)
	}
	return r
}

func (r *MemoryTechnicalSheetRepository) GetByID(ctx context.Context, id string) (*models.TechnicalSheet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(s)
	return &c, nil
}

func (r *MemoryTechnicalSheetRepository) Create(ctx context.Context, sheet *models.TechnicalSheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sheet.ID == "" {
		sheet.ID = uuid.New().String()
	}
	if _, exists := r.items[sheet.ID]; exists {
		return ErrDuplicateKey
	}
	r.items[sheet.ID] = clone(*sheet)
	return nil
}

func (r *MemoryTechnicalSheetRepository) Update(ctx context.Context, sheet *models.TechnicalSheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[sheet.ID]; !ok {
		return ErrNotFound
	}
	r.items[sheet.ID] = clone(*sheet)
	return nil
}

func (r *MemoryTechnicalSheetRepository) QueryByLocation(ctx context.Context, locationID string, activeOnly bool) ([]models.TechnicalSheet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.TechnicalSheet
	for _, s := range r.items {
		if s.LocationID != locationID || (activeOnly && !s.Active) {
			continue
		}
		result = append(result, clone(s))
	}
	sort.SliceStable(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return result, nil
}

func (r *MemoryTechnicalSheetRepository) FindActiveByRecipeBase(ctx context.Context, recipeID string) (*models.TechnicalSheet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.items {
		if s.Active && s.RecipeBaseID != nil && *s.RecipeBaseID == recipeID {
			c := clone(s)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

type MemoryVersionSnapshotRepository struct {
	mu        sync.RWMutex
	snapshots []models.VersionSnapshot
}

func NewMemoryVersionSnapshotRepository() *MemoryVersionSnapshotRepository {
	return &MemoryVersionSnapshotRepository{}
}

func (r *MemoryVersionSnapshotRepository) Create(ctx context.Context, snapshot *models.VersionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snapshots {
		if s.SheetID == snapshot.SheetID && s.Version == snapshot.Version {
			return ErrDuplicateKey
		}
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	snapshot.CreatedAt = time.Now().UTC()
	r.snapshots = append(r.snapshots, clone(*snapshot))
	return nil
}

func (r *MemoryVersionSnapshotRepository) Replace(ctx context.Context, snapshot *models.VersionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.snapshots {
		if s.SheetID == snapshot.SheetID && s.Version == snapshot.Version {
			replaced := clone(*snapshot)
			replaced.ID = s.ID
			replaced.CreatedAt = time.Now().UTC()
			r.snapshots[i] = replaced
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryVersionSnapshotRepository) QueryBySheetID(ctx context.Context, sheetID string) ([]models.VersionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.VersionSnapshot
	for _, s := range r.snapshots {
		if s.SheetID == sheetID {
			result = append(result, clone(s))
		}
	}
	sort.SliceStable(result, func(a, b int) bool { return result[a].Version > result[b].Version })
	return result, nil
}
