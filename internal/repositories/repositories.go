package repositories

import (
	"context"
	"time"

	"kitchenledger/server/internal/models"
)

// IngredientRepository - справочник ингредиентов
type IngredientRepository interface {
	GetByID(ctx context.Context, id string) (*models.Ingredient, error)
	// GetByIDs возвращает найденные записи; отсутствующие id просто пропускаются.
	// Размер чанка ограничивает вызывающий код.
	GetByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error)
	Update(ctx context.Context, ingredient *models.Ingredient) error
}

// InventoryRepository - складские позиции.
// Update выполняет compare-and-swap по Revision и возвращает ErrConflict,
// если запись была изменена после чтения. При успехе Revision увеличивается.
type InventoryRepository interface {
	GetByID(ctx context.Context, id string) (*models.InventoryItem, error)
	QueryByIngredientAndLocation(ctx context.Context, ingredientID, locationID string) (*models.InventoryItem, error)
	ListByLocation(ctx context.Context, locationID string) ([]models.InventoryItem, error)
	Create(ctx context.Context, item *models.InventoryItem) error
	Update(ctx context.Context, item *models.InventoryItem) error
}

type EventRepository interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	// QueryByLocationAndDateRange возвращает события с from <= date <= to, по возрастанию даты
	QueryByLocationAndDateRange(ctx context.Context, locationID string, from, to time.Time) ([]models.Event, error)
}

type MenuRepository interface {
	GetByID(ctx context.Context, id string) (*models.Menu, error)
}

type RecipeRepository interface {
	GetByID(ctx context.Context, id string) (*models.Recipe, error)
}

// StockMovementRepository - журнал движений, только добавление
type StockMovementRepository interface {
	Append(ctx context.Context, movement *models.StockMovement) error
	ListByIngredient(ctx context.Context, ingredientID string) ([]models.StockMovement, error)
}

type TechnicalSheetRepository interface {
	GetByID(ctx context.Context, id string) (*models.TechnicalSheet, error)
	Create(ctx context.Context, sheet *models.TechnicalSheet) error
	Update(ctx context.Context, sheet *models.TechnicalSheet) error
	// QueryByLocation сортирует по имени
	QueryByLocation(ctx context.Context, locationID string, activeOnly bool) ([]models.TechnicalSheet, error)
	FindActiveByRecipeBase(ctx context.Context, recipeID string) (*models.TechnicalSheet, error)
}

// VersionSnapshotRepository возвращает ErrDuplicateKey при повторном снимке той же версии
type VersionSnapshotRepository interface {
	Create(ctx context.Context, snapshot *models.VersionSnapshot) error
	// Replace перезаписывает содержимое снимка (SheetID, Version); ErrNotFound, если его нет
	Replace(ctx context.Context, snapshot *models.VersionSnapshot) error
	// QueryBySheetID возвращает снимки по убыванию версии
	QueryBySheetID(ctx context.Context, sheetID string) ([]models.VersionSnapshot, error)
}
