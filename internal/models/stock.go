package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ingredient - позиция справочника сырья с ценой закупки и коэффициентом выхода
type Ingredient struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string    `json:"name" gorm:"type:varchar(255);not null"`
	Category      string    `json:"category" gorm:"type:varchar(100)"`
	Unit          string    `json:"unit" gorm:"type:varchar(20);not null"`               // Базовая единица (g, kg, ml, l, pcs...)
	CostPerUnit   float64   `json:"cost_per_unit" gorm:"type:decimal(12,4);default:0"`   // Цена за 1 базовую единицу
	YieldFraction float64   `json:"yield_fraction" gorm:"type:decimal(6,4);default:1"`   // Доля полезного выхода после очистки (0, 1]
	Density       *float64  `json:"density,omitempty" gorm:"type:decimal(10,4)"`         // г/мл, нужна для перевода масса <-> объем
	AvgUnitWeight *float64  `json:"avg_unit_weight,omitempty" gorm:"type:decimal(10,4)"` // г на 1 шт
	ShelfLifeDays int       `json:"shelf_life_days" gorm:"default:0"`                    // 0 = срок по умолчанию из конфига
	Stock         float64   `json:"stock" gorm:"type:decimal(12,4);default:0"`           // Плоский остаток до перехода на партии (legacy)
	LocationID    string    `json:"location_id" gorm:"type:uuid;index"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Ingredient) TableName() string {
	return "ingredients"
}

// BeforeCreate генерирует UUID
func (i *Ingredient) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// EffectiveYield возвращает коэффициент выхода; 0 в БД означает "не задан" и читается как 1
func (i Ingredient) EffectiveYield() float64 {
	if i.YieldFraction == 0 {
		return 1
	}
	return i.YieldFraction
}

// BatchStatus статус партии
type BatchStatus string

const (
	BatchActive   BatchStatus = "ACTIVE"
	BatchDepleted BatchStatus = "DEPLETED"
	BatchExpired  BatchStatus = "EXPIRED"
)

// Batch - партия (лот) товара. Хранится внутри InventoryItem (jsonb),
// поэтому остаток и партии всегда пишутся одной операцией.
type Batch struct {
	ID              string      `json:"id"`
	IngredientID    string      `json:"ingredient_id"`
	InitialQuantity float64     `json:"initial_quantity"`
	CurrentQuantity float64     `json:"current_quantity"`
	Unit            string      `json:"unit"`
	LotNumber       string      `json:"lot_number"`
	ReceivedAt      time.Time   `json:"received_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
	CostPerUnit     float64     `json:"cost_per_unit"`
	LocationID      string      `json:"location_id"`
	Status          BatchStatus `json:"status"`
}

// InventoryItem - складская позиция ингредиента на точке
type InventoryItem struct {
	ID                string     `json:"id" gorm:"type:uuid;primaryKey"`
	IngredientID      string     `json:"ingredient_id" gorm:"type:uuid;not null;uniqueIndex:idx_inventory_ingredient_location"`
	LocationID        string     `json:"location_id" gorm:"type:uuid;not null;uniqueIndex:idx_inventory_ingredient_location;index"`
	Unit              string     `json:"unit" gorm:"type:varchar(20);not null"`
	Stock             float64    `json:"stock" gorm:"type:decimal(12,4);not null;default:0"` // Всегда равен сумме остатков партий
	TheoreticalStock  *float64   `json:"theoretical_stock,omitempty" gorm:"type:decimal(12,4)"`
	MinStock          float64    `json:"min_stock" gorm:"type:decimal(12,4);default:0"`
	OptimalStock      float64    `json:"optimal_stock" gorm:"type:decimal(12,4);default:0"`
	ReorderPoint      float64    `json:"reorder_point" gorm:"type:decimal(12,4);default:0"`
	CostPerUnit       float64    `json:"cost_per_unit" gorm:"type:decimal(12,4);default:0"`
	Batches           []Batch    `json:"batches" gorm:"serializer:json;type:jsonb"`
	LastPhysicalCount *float64   `json:"last_physical_count,omitempty" gorm:"type:decimal(12,4)"`
	LastCountedAt     *time.Time `json:"last_counted_at,omitempty"`
	Revision          int64      `json:"revision" gorm:"not null;default:0"` // Счетчик для compare-and-swap обновлений
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// BeforeCreate генерирует UUID
func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// MovementType тип движения по складу
type MovementType string

const (
	MovementAdjustment  MovementType = "ADJUSTMENT"
	MovementConsumption MovementType = "CONSUMPTION"
	MovementMigration   MovementType = "MIGRATION"
)

// StockMovement - запись журнала движений (только добавление)
type StockMovement struct {
	ID           string       `json:"id" gorm:"type:uuid;primaryKey"`
	IngredientID string       `json:"ingredient_id" gorm:"type:uuid;not null;index"`
	Type         MovementType `json:"type" gorm:"type:varchar(20);not null;index"`
	Quantity     float64      `json:"quantity" gorm:"type:decimal(12,4);not null"` // Со знаком: минус = списание
	CostPerUnit  float64      `json:"cost_per_unit" gorm:"type:decimal(12,4);default:0"`
	Date         time.Time    `json:"date" gorm:"not null;index"`
	ReferenceID  string       `json:"reference_id" gorm:"type:varchar(100);index"` // ID события, пересчета и т.д.
	UserID       string       `json:"user_id" gorm:"type:varchar(100)"`
	LocationID   string       `json:"location_id" gorm:"type:uuid;index"`
	Notes        string       `json:"notes" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (StockMovement) TableName() string {
	return "stock_movements"
}

// BeforeCreate генерирует UUID
func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
