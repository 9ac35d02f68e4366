package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, translateError(err)
	}
	return &event, nil
}

func (r *GormEventRepository) QueryByLocationAndDateRange(ctx context.Context, locationID string, from, to time.Time) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("location_id = ? AND date >= ? AND date <= ?", locationID, from, to).
		Order("date ASC").
		Find(&events).Error
	if err != nil {
		return nil, translateError(err)
	}
	return events, nil
}

type GormMenuRepository struct {
	db *gorm.DB
}

func NewGormMenuRepository(db *gorm.DB) *GormMenuRepository {
	return &GormMenuRepository{db: db}
}

func (r *GormMenuRepository) GetByID(ctx context.Context, id string) (*models.Menu, error) {
	var menu models.Menu
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&menu).Error; err != nil {
		return nil, translateError(err)
	}
	return &menu, nil
}

type GormRecipeRepository struct {
	db *gorm.DB
}

func NewGormRecipeRepository(db *gorm.DB) *GormRecipeRepository {
	return &GormRecipeRepository{db: db}
}

func (r *GormRecipeRepository) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	var recipe models.Recipe
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&recipe).Error; err != nil {
		return nil, translateError(err)
	}
	return &recipe, nil
}

// GormTechnicalSheetRepository - технологические карты
type GormTechnicalSheetRepository struct {
	db *gorm.DB
}

func NewGormTechnicalSheetRepository(db *gorm.DB) *GormTechnicalSheetRepository {
	return &GormTechnicalSheetRepository{db: db}
}

func (r *GormTechnicalSheetRepository) GetByID(ctx context.Context, id string) (*models.TechnicalSheet, error) {
	var sheet models.TechnicalSheet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sheet).Error; err != nil {
		return nil, translateError(err)
	}
	return &sheet, nil
}

func (r *GormTechnicalSheetRepository) Create(ctx context.Context, sheet *models.TechnicalSheet) error {
	if err := r.db.WithContext(ctx).Create(sheet).Error; err != nil {
		return translateError(err)
	}
	return nil
}

func (r *GormTechnicalSheetRepository) Update(ctx context.Context, sheet *models.TechnicalSheet) error {
	res := r.db.WithContext(ctx).Model(sheet).Select("*").Omit("created_at").Updates(sheet)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormTechnicalSheetRepository) QueryByLocation(ctx context.Context, locationID string, activeOnly bool) ([]models.TechnicalSheet, error) {
	var sheets []models.TechnicalSheet
	query := r.db.WithContext(ctx).Where("location_id = ?", locationID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Order("name ASC").Find(&sheets).Error; err != nil {
		return nil, translateError(err)
	}
	return sheets, nil
}

func (r *GormTechnicalSheetRepository) FindActiveByRecipeBase(ctx context.Context, recipeID string) (*models.TechnicalSheet, error) {
	var sheet models.TechnicalSheet
	err := r.db.WithContext(ctx).
		Where("recipe_base_id = ? AND active = ?", recipeID, true).
		First(&sheet).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &sheet, nil
}

type GormVersionSnapshotRepository struct {
	db *gorm.DB
}

func NewGormVersionSnapshotRepository(db *gorm.DB) *GormVersionSnapshotRepository {
	return &GormVersionSnapshotRepository{db: db}
}

func (r *GormVersionSnapshotRepository) Create(ctx context.Context, snapshot *models.VersionSnapshot) error {
	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return translateError(err)
	}
	return nil
}

func (r *GormVersionSnapshotRepository) Replace(ctx context.Context, snapshot *models.VersionSnapshot) error {
	res := r.db.WithContext(ctx).Model(&models.VersionSnapshot{}).
		Where("sheet_id = ? AND version = ?", snapshot.SheetID, snapshot.Version).
		Select("snapshot", "change_notes", "versioned_by", "created_at").
		Updates(&models.VersionSnapshot{
			Snapshot:    snapshot.Snapshot,
			ChangeNotes: snapshot.ChangeNotes,
			VersionedBy: snapshot.VersionedBy,
			CreatedAt:   time.Now().UTC(),
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormVersionSnapshotRepository) QueryBySheetID(ctx context.Context, sheetID string) ([]models.VersionSnapshot, error) {
	var snapshots []models.VersionSnapshot
	err := r.db.WithContext(ctx).
		Where("sheet_id = ?", sheetID).
		Order("version DESC").
		Find(&snapshots).Error
	if err != nil {
		return nil, translateError(err)
	}
	return snapshots, nil
}
