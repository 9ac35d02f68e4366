package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenledger/server/internal/services"
)

// InventoryController - списание по событиям, инвентаризация и партии
type InventoryController struct {
	deductions       *services.StockDeductionService
	counts           *services.PhysicalCountService
	migration        *services.StockMigrationService
	expiringSoonDays int
}

func NewInventoryController(
	deductions *services.StockDeductionService,
	counts *services.PhysicalCountService,
	migration *services.StockMigrationService,
	expiringSoonDays int,
) *InventoryController {
	return &InventoryController{
		deductions:       deductions,
		counts:           counts,
		migration:        migration,
		expiringSoonDays: expiringSoonDays,
	}
}

// DeductForEvent списывает ингредиенты под мероприятие
// POST /api/v1/inventory/events/:id/deduct
func (ic *InventoryController) DeductForEvent(c *gin.Context) {
	report, err := ic.deductions.DeductForEvent(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil && report == nil {
		respondServiceError(c, err, "Ошибка списания по событию")
		return
	}
	if err != nil {
		// Часть ингредиентов списана, часть нет
		c.JSON(http.StatusMultiStatus, gin.H{
			"report": report,
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

type recordCountRequest struct {
	Counted *float64 `json:"counted" binding:"required,gte=0"`
	Notes   string   `json:"notes"`
}

// RecordCount записывает результат пересчета позиции
// POST /api/v1/inventory/items/:id/count
func (ic *InventoryController) RecordCount(c *gin.Context) {
	var request recordCountRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}

	result, err := ic.counts.RecordCount(c.Request.Context(), c.Param("id"), *request.Counted, userID(c), request.Notes)
	if err != nil {
		respondServiceError(c, err, "Ошибка записи инвентаризации")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetExpiringBatches возвращает партии, срок которых скоро истекает
// GET /api/v1/inventory/items/:id/expiring?days=3
func (ic *InventoryController) GetExpiringBatches(c *gin.Context) {
	days, err := intQuery(c, "days", ic.expiringSoonDays)
	if err != nil {
		badRequest(c, "Неверный параметр days", err)
		return
	}
	batches, err := ic.migration.ExpiringBatches(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		respondServiceError(c, err, "Ошибка получения партий")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
		"count":   len(batches),
		"days":    days,
	})
}

type migrateRequest struct {
	LocationID string `json:"location_id"`
}

// MigrateIngredient переводит плоский остаток ингредиента на партии
// POST /api/v1/inventory/ingredients/:id/migrate
func (ic *InventoryController) MigrateIngredient(c *gin.Context) {
	var request migrateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Неверные параметры запроса", err)
			return
		}
	}

	result, err := ic.migration.MigrateIngredient(c.Request.Context(), c.Param("id"), request.LocationID, userID(c))
	if err != nil {
		respondServiceError(c, err, "Ошибка переноса остатка")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMovements - журнал движений ингредиента
// GET /api/v1/inventory/ingredients/:id/movements
func (ic *InventoryController) GetMovements(c *gin.Context) {
	movements, err := ic.counts.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Ошибка получения движений")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"movements": movements,
		"count":     len(movements),
	})
}
