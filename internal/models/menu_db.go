package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RecipeLine - строка рецепта: количество на выход рецепта (YieldPax порций)
type RecipeLine struct {
	IngredientID string  `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"` // Пусто = единица ингредиента
}

// Recipe - базовый рецепт
type Recipe struct {
	ID          string       `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string       `json:"name" gorm:"type:varchar(255);not null"`
	Description string       `json:"description" gorm:"type:text"`
	Category    string       `json:"category" gorm:"type:varchar(100)"`
	YieldPax    int          `json:"yield_pax" gorm:"not null;default:1"` // На сколько порций рассчитан рецепт
	Lines       []RecipeLine `json:"lines" gorm:"serializer:json;type:jsonb"`
	Steps       []string     `json:"steps" gorm:"serializer:json;type:jsonb"`
	LocationID  string       `json:"location_id" gorm:"type:uuid;index"`
	CreatedAt   time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Recipe) TableName() string {
	return "recipes"
}

// BeforeCreate генерирует UUID
func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// EffectiveYieldPax возвращает выход рецепта, не меньше 1
func (r Recipe) EffectiveYieldPax() int {
	if r.YieldPax < 1 {
		return 1
	}
	return r.YieldPax
}

// Menu - набор рецептов, подаваемых на мероприятии
type Menu struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null"`
	RecipeIDs  []string  `json:"recipe_ids" gorm:"serializer:json;type:jsonb"`
	LocationID string    `json:"location_id" gorm:"type:uuid;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Menu) TableName() string {
	return "menus"
}

// BeforeCreate генерирует UUID
func (m *Menu) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Event - мероприятие (банкет, кейтеринг) на заданное число гостей
type Event struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null"`
	Date       time.Time `json:"date" gorm:"not null;index:idx_events_location_date,priority:2"`
	Pax        int       `json:"pax" gorm:"not null;default:0"`
	MenuID     string    `json:"menu_id" gorm:"type:uuid"`
	LocationID string    `json:"location_id" gorm:"type:uuid;not null;index:idx_events_location_date,priority:1"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Event) TableName() string {
	return "events"
}

// BeforeCreate генерирует UUID
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// AutoMigrate создает таблицы в БД
func AutoMigrate(db *gorm.DB) error {
	tables := []interface{}{
		&Ingredient{},
		&InventoryItem{},
		&StockMovement{},
		&Recipe{},
		&Menu{},
		&Event{},
		&TechnicalSheet{},
		&VersionSnapshot{},
	}
	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			log.Error().Err(err).Str("table", tableName(table)).Msg("AutoMigrate failed")
			return err
		}
	}
	log.Info().Int("tables", len(tables)).Msg("✅ Таблицы склада и техкарт смигрированы")
	return nil
}

func tableName(model interface{}) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}
