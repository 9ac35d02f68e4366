package repositories

import (
	"context"

	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// GormIngredientRepository - справочник ингредиентов в PostgreSQL
type GormIngredientRepository struct {
	db *gorm.DB
}

func NewGormIngredientRepository(db *gorm.DB) *GormIngredientRepository {
	return &GormIngredientRepository{db: db}
}

func (r *GormIngredientRepository) GetByID(ctx context.Context, id string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ingredient).Error; err != nil {
		return nil, translateError(err)
	}
	return &ingredient, nil
}

func (r *GormIngredientRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	if len(ids) == 0 {
		return ingredients, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&ingredients).Error; err != nil {
		return nil, translateError(err)
	}
	return ingredients, nil
}

func (r *GormIngredientRepository) Update(ctx context.Context, ingredient *models.Ingredient) error {
	res := r.db.WithContext(ctx).Model(ingredient).Select("*").Omit("created_at").Updates(ingredient)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GormInventoryRepository - складские позиции в PostgreSQL.
// Партии лежат в jsonb той же строки, поэтому остаток и партии обновляются атомарно.
type GormInventoryRepository struct {
	db *gorm.DB
}

func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

func (r *GormInventoryRepository) GetByID(ctx context.Context, id string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (r *GormInventoryRepository) QueryByIngredientAndLocation(ctx context.Context, ingredientID, locationID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("ingredient_id = ? AND location_id = ?", ingredientID, locationID).
		First(&item).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (r *GormInventoryRepository) ListByLocation(ctx context.Context, locationID string) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).Where("location_id = ?", locationID).Order("ingredient_id ASC").Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

func (r *GormInventoryRepository) Create(ctx context.Context, item *models.InventoryItem) error {
	item.Revision = 1
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// Update пишет запись, только если revision в БД совпадает с прочитанной
func (r *GormInventoryRepository) Update(ctx context.Context, item *models.InventoryItem) error {
	expected := item.Revision
	item.Revision = expected + 1

	res := r.db.WithContext(ctx).Model(item).
		Where("revision = ?", expected).
		Select("*").Omit("created_at").
		Updates(item)
	if res.Error != nil {
		item.Revision = expected
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		item.Revision = expected
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.InventoryItem{}).Where("id = ?", item.ID).Count(&count).Error; err != nil {
			return translateError(err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// GormStockMovementRepository - журнал движений
type GormStockMovementRepository struct {
	db *gorm.DB
}

func NewGormStockMovementRepository(db *gorm.DB) *GormStockMovementRepository {
	return &GormStockMovementRepository{db: db}
}

func (r *GormStockMovementRepository) Append(ctx context.Context, movement *models.StockMovement) error {
	if err := r.db.WithContext(ctx).Create(movement).Error; err != nil {
		return translateError(err)
	}
	return nil
}

func (r *GormStockMovementRepository) ListByIngredient(ctx context.Context, ingredientID string) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("ingredient_id = ?", ingredientID).
		Order("date ASC, created_at ASC").
		Find(&movements).Error
	if err != nil {
		return nil, translateError(err)
	}
	return movements, nil
}
