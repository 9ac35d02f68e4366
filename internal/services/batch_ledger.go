package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"kitchenledger/server/internal/models"
)

// BatchDraw - сколько взято из конкретной партии
type BatchDraw struct {
	BatchID     string  `json:"batch_id"`
	LotNumber   string  `json:"lot_number"`
	Quantity    float64 `json:"quantity"`
	CostPerUnit float64 `json:"cost_per_unit"`
}

// ConsumeResult - итог FIFO-списания
type ConsumeResult struct {
	Remaining    []models.Batch `json:"remaining"`
	Requested    float64        `json:"requested"`
	Consumed     float64        `json:"consumed"`
	ConsumedCost float64        `json:"consumed_cost"`
	Draws        []BatchDraw    `json:"draws"`
}

// Shortfall - сколько не удалось списать из-за нехватки партий
func (r ConsumeResult) Shortfall() float64 {
	if r.Consumed >= r.Requested {
		return 0
	}
	return roundTo(r.Requested-r.Consumed, 6)
}

// AverageCost - средняя цена списанного количества
func (r ConsumeResult) AverageCost() float64 {
	if r.Consumed <= 0 {
		return 0
	}
	return roundTo(r.ConsumedCost/r.Consumed, 4)
}

// BatchLedger - FIFO-учет партий. Чистые функции над срезом партий, кроме часов.
type BatchLedger struct {
	now                  func() time.Time
	defaultShelfLifeDays int
}

func NewBatchLedger(defaultShelfLifeDays int, now func() time.Time) *BatchLedger {
	if now == nil {
		now = time.Now
	}
	if defaultShelfLifeDays < 1 {
		defaultShelfLifeDays = 30
	}
	return &BatchLedger{now: now, defaultShelfLifeDays: defaultShelfLifeDays}
}

// SortFIFO сортирует копию партий: срок годности, затем дата поступления, затем id
func SortFIFO(batches []models.Batch) []models.Batch {
	sorted := make([]models.Batch, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.ExpiresAt.Equal(b.ExpiresAt) {
			return a.ExpiresAt.Before(b.ExpiresAt)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
	return sorted
}

// Consume списывает requested начиная с партии с ближайшим сроком.
// Опустевшие партии убираются из результата; нехватка не ошибка и видна по Consumed < Requested.
func (l *BatchLedger) Consume(batches []models.Batch, requested float64) ConsumeResult {
	sorted := SortFIFO(batches)
	result := ConsumeResult{Requested: requested, Remaining: make([]models.Batch, 0, len(sorted))}
	if requested <= 0 {
		result.Requested = 0
		result.Remaining = sorted
		return result
	}

	left := requested
	for _, batch := range sorted {
		if left <= 0 || batch.CurrentQuantity <= 0 {
			if batch.CurrentQuantity > 0 {
				result.Remaining = append(result.Remaining, batch)
			}
			continue
		}

		take := batch.CurrentQuantity
		if take > left {
			take = left
		}
		batch.CurrentQuantity = roundTo(batch.CurrentQuantity-take, 6)
		left = roundTo(left-take, 6)

		result.Consumed += take
		result.ConsumedCost += take * batch.CostPerUnit
		result.Draws = append(result.Draws, BatchDraw{
			BatchID:     batch.ID,
			LotNumber:   batch.LotNumber,
			Quantity:    take,
			CostPerUnit: batch.CostPerUnit,
		})

		if batch.CurrentQuantity > 0 {
			result.Remaining = append(result.Remaining, batch)
		}
	}

	result.Consumed = roundTo(result.Consumed, 6)
	result.ConsumedCost = roundTo(result.ConsumedCost, 4)
	return result
}

// ExpiringWithin возвращает партии со сроком не позже now + days, по возрастанию срока
func (l *BatchLedger) ExpiringWithin(batches []models.Batch, days int) []models.Batch {
	limit := l.now().Add(time.Duration(days) * 24 * time.Hour)
	var result []models.Batch
	for _, batch := range SortFIFO(batches) {
		if !batch.ExpiresAt.After(limit) {
			result = append(result, batch)
		}
	}
	return result
}

// TotalStock - сумма остатков партий
func TotalStock(batches []models.Batch) float64 {
	var total float64
	for _, b := range batches {
		total += b.CurrentQuantity
	}
	return roundTo(total, 6)
}

// BootstrapFromFlatStock превращает плоский остаток ингредиента в одну синтетическую партию.
// При нулевом или отрицательном остатке партий нет.
func (l *BatchLedger) BootstrapFromFlatStock(ingredient models.Ingredient, locationID string) []models.Batch {
	if ingredient.Stock <= 0 {
		return []models.Batch{}
	}
	now := l.now().UTC()
	shelfLife := ingredient.ShelfLifeDays
	if shelfLife < 1 {
		shelfLife = l.defaultShelfLifeDays
	}
	return []models.Batch{{
		ID:              uuid.New().String(),
		IngredientID:    ingredient.ID,
		InitialQuantity: ingredient.Stock,
		CurrentQuantity: ingredient.Stock,
		Unit:            ingredient.Unit,
		LotNumber:       fmt.Sprintf("LOT-%s", now.Format("20060102")),
		ReceivedAt:      now,
		ExpiresAt:       now.AddDate(0, 0, shelfLife),
		CostPerUnit:     ingredient.CostPerUnit,
		LocationID:      locationID,
		Status:          models.BatchActive,
	}}
}

// NewSurplusBatch - партия излишка, найденного при инвентаризации
func (l *BatchLedger) NewSurplusBatch(item models.InventoryItem, quantity float64) models.Batch {
	now := l.now().UTC()
	return models.Batch{
		ID:              uuid.New().String(),
		IngredientID:    item.IngredientID,
		InitialQuantity: quantity,
		CurrentQuantity: quantity,
		Unit:            item.Unit,
		LotNumber:       fmt.Sprintf("COUNT-%s", now.Format("20060102")),
		ReceivedAt:      now,
		ExpiresAt:       now.AddDate(0, 0, l.defaultShelfLifeDays),
		CostPerUnit:     item.CostPerUnit,
		LocationID:      item.LocationID,
		Status:          models.BatchActive,
	}
}
