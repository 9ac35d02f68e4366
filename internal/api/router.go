package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Controllers - набор обработчиков API
type Controllers struct {
	Inventory       *InventoryController
	Demand          *DemandController
	TechnicalSheets *TechnicalSheetController
}

// RegisterRoutes вешает обработчики на группу /api/v1
func RegisterRoutes(apiGroup *gin.RouterGroup, ctrl Controllers) {
	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	inventoryGroup := apiGroup.Group("/inventory")
	{
		inventoryGroup.POST("/events/:id/deduct", ctrl.Inventory.DeductForEvent)
		inventoryGroup.POST("/items/:id/count", ctrl.Inventory.RecordCount)
		inventoryGroup.GET("/items/:id/expiring", ctrl.Inventory.GetExpiringBatches)
		inventoryGroup.POST("/ingredients/:id/migrate", ctrl.Inventory.MigrateIngredient)
		inventoryGroup.GET("/ingredients/:id/movements", ctrl.Inventory.GetMovements)
		inventoryGroup.GET("/reorder-needs", ctrl.Demand.GetReorderNeeds)
	}

	demandGroup := apiGroup.Group("/demand")
	{
		demandGroup.GET("/forecast", ctrl.Demand.GetForecast)
		demandGroup.GET("/history", ctrl.Demand.GetHistory)
		demandGroup.GET("/availability", ctrl.Demand.GetAvailability)
	}

	sheetsGroup := apiGroup.Group("/technical-sheets")
	{
		sheetsGroup.POST("", ctrl.TechnicalSheets.CreateSheet)
		sheetsGroup.GET("", ctrl.TechnicalSheets.ListSheets)
		sheetsGroup.POST("/import-recipes", ctrl.TechnicalSheets.ImportRecipes)
		sheetsGroup.POST("/from-recipe/:recipe_id", ctrl.TechnicalSheets.CreateFromRecipe)
		sheetsGroup.GET("/:id", ctrl.TechnicalSheets.GetSheet)
		sheetsGroup.PUT("/:id", ctrl.TechnicalSheets.UpdateSheet)
		sheetsGroup.DELETE("/:id", ctrl.TechnicalSheets.DeleteSheet)
		sheetsGroup.POST("/:id/duplicate", ctrl.TechnicalSheets.DuplicateSheet)
		sheetsGroup.POST("/:id/recalculate", ctrl.TechnicalSheets.RecalculateSheet)
		sheetsGroup.GET("/:id/versions", ctrl.TechnicalSheets.GetVersions)
		sheetsGroup.GET("/:id/versions/:version", ctrl.TechnicalSheets.GetVersion)
		sheetsGroup.GET("/:id/export", ctrl.TechnicalSheets.ExportSheet)
	}
}
