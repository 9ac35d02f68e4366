package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SheetLine - строка технологической карты с замороженной ценой на момент расчета
type SheetLine struct {
	IngredientID string  `json:"ingredient_id" validate:"required"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity" validate:"gt=0"`
	Unit         string  `json:"unit,omitempty"` // Пусто = единица ингредиента
	UnitCost     float64 `json:"unit_cost"`
	LineCost     float64 `json:"line_cost"`
	Optional     bool    `json:"optional"`
}

// SheetCosts - себестоимость карты
type SheetCosts struct {
	IngredientCost float64 `json:"ingredient_cost" gorm:"type:decimal(12,2);default:0"`
	LaborCost      float64 `json:"labor_cost" gorm:"type:decimal(12,2);default:0"`
	EnergyCost     float64 `json:"energy_cost" gorm:"type:decimal(12,2);default:0"`
	Total          float64 `json:"total" gorm:"type:decimal(12,2);default:0"`
	PerPortion     float64 `json:"per_portion" gorm:"type:decimal(12,2);default:0"`
}

// SheetPricing - ценообразование
type SheetPricing struct {
	SuggestedPrice float64 `json:"suggested_price" gorm:"type:decimal(12,2);default:0"`
	GrossMargin    float64 `json:"gross_margin" gorm:"type:decimal(6,2);default:0"`  // %
	TargetMargin   float64 `json:"target_margin" gorm:"type:decimal(6,2);default:0"` // %
}

// TechnicalSheet - технологическая карта (ficha técnica) с версионированием
type TechnicalSheet struct {
	ID           string       `json:"id" gorm:"type:uuid;primaryKey"`
	Version      int          `json:"version" gorm:"not null;default:1"`
	Active       bool         `json:"active" gorm:"not null;default:true;index"`
	Name         string       `json:"name" gorm:"type:varchar(255);not null;index"`
	Category     string       `json:"category" gorm:"type:varchar(100)"`
	Description  string       `json:"description" gorm:"type:text"`
	Portions     int          `json:"portions" gorm:"not null;default:1"`
	Lines        []SheetLine  `json:"lines" gorm:"serializer:json;type:jsonb"`
	Steps        []string     `json:"steps" gorm:"serializer:json;type:jsonb"`
	PrepMinutes  int          `json:"prep_minutes" gorm:"default:0"`
	CookMinutes  int          `json:"cook_minutes" gorm:"default:0"`
	Difficulty   string       `json:"difficulty" gorm:"type:varchar(20)"`
	Costs        SheetCosts   `json:"costs" gorm:"embedded;embeddedPrefix:cost_"`
	Pricing      SheetPricing `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	RecipeBaseID *string      `json:"recipe_base_id,omitempty" gorm:"type:uuid;index"` // Рецепт, из которого сконвертирована карта
	LocationID   string       `json:"location_id" gorm:"type:uuid;not null;index"`
	Notes        string       `json:"notes" gorm:"type:text"`
	CreatedBy    string       `json:"created_by" gorm:"type:varchar(255)"`
	ModifiedBy   string       `json:"modified_by" gorm:"type:varchar(255)"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName указывает имя таблицы
func (TechnicalSheet) TableName() string {
	return "technical_sheets"
}

// BeforeCreate генерирует UUID
func (s *TechnicalSheet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// VersionSnapshot - полный снимок карты до перехода на следующую версию
type VersionSnapshot struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey"`
	SheetID     string         `json:"sheet_id" gorm:"type:uuid;not null;uniqueIndex:idx_sheet_version"`
	Version     int            `json:"version" gorm:"not null;uniqueIndex:idx_sheet_version"` // Версия, которую фиксирует снимок
	Snapshot    TechnicalSheet `json:"snapshot" gorm:"serializer:json;type:jsonb"`
	ChangeNotes string         `json:"change_notes" gorm:"type:text"`
	VersionedBy string         `json:"versioned_by" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (VersionSnapshot) TableName() string {
	return "technical_sheet_versions"
}

// BeforeCreate генерирует UUID
func (v *VersionSnapshot) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}
