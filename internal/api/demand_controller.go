package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenledger/server/internal/services"
)

const defaultDemandDays = 7

// DemandController - потребность в ингредиентах по мероприятиям
type DemandController struct {
	aggregator *services.DemandAggregator
}

func NewDemandController(aggregator *services.DemandAggregator) *DemandController {
	return &DemandController{aggregator: aggregator}
}

func demandParams(c *gin.Context) (string, int, error) {
	locationID := c.Query("location_id")
	if locationID == "" {
		return "", 0, errors.New("location_id обязателен")
	}
	days, err := intQuery(c, "days", defaultDemandDays)
	if err != nil {
		return "", 0, err
	}
	return locationID, days, nil
}

// GetForecast - потребность по будущим мероприятиям
// GET /api/v1/demand/forecast?location_id=xxx&days=7
func (dc *DemandController) GetForecast(c *gin.Context) {
	locationID, days, err := demandParams(c)
	if err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}
	summary, err := dc.aggregator.ForecastNextDays(c.Request.Context(), locationID, days)
	if err != nil {
		respondServiceError(c, err, "Ошибка расчета прогноза")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetHistory - фактическое потребление по прошедшим мероприятиям
// GET /api/v1/demand/history?location_id=xxx&days=30
func (dc *DemandController) GetHistory(c *gin.Context) {
	locationID, days, err := demandParams(c)
	if err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}
	summary, err := dc.aggregator.HistoricalLastDays(c.Request.Context(), locationID, days)
	if err != nil {
		respondServiceError(c, err, "Ошибка расчета истории")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetAvailability сравнивает прогноз с остатками
// GET /api/v1/demand/availability?location_id=xxx&days=7
func (dc *DemandController) GetAvailability(c *gin.Context) {
	locationID, days, err := demandParams(c)
	if err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}
	summary, shortages, err := dc.aggregator.CheckAvailability(c.Request.Context(), locationID, days)
	if err != nil {
		respondServiceError(c, err, "Ошибка проверки наличия")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":   summary,
		"shortages": shortages,
		"count":     len(shortages),
	})
}

// GetReorderNeeds - позиции ниже точки заказа
// GET /api/v1/inventory/reorder-needs?location_id=xxx
func (dc *DemandController) GetReorderNeeds(c *gin.Context) {
	locationID := c.Query("location_id")
	if locationID == "" {
		badRequest(c, "Неверные параметры запроса", errors.New("location_id обязателен"))
		return
	}
	lines, err := dc.aggregator.ReorderNeeds(c.Request.Context(), locationID)
	if err != nil {
		respondServiceError(c, err, "Ошибка расчета заказа")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": lines,
		"count": len(lines),
	})
}
