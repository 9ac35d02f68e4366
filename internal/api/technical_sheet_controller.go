package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kitchenledger/server/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TechnicalSheetController - технологические карты и их версии
type TechnicalSheetController struct {
	sheets *services.TechnicalSheetService
}

func NewTechnicalSheetController(sheets *services.TechnicalSheetService) *TechnicalSheetController {
	return &TechnicalSheetController{sheets: sheets}
}

// CreateSheet POST /api/v1/technical-sheets
func (tc *TechnicalSheetController) CreateSheet(c *gin.Context) {
	var dto services.CreateSheetDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}
	sheet, err := tc.sheets.Create(c.Request.Context(), dto, userID(c))
	if err != nil {
		respondServiceError(c, err, "Ошибка создания технологической карты")
		return
	}
	c.JSON(http.StatusCreated, sheet)
}

// ListSheets GET /api/v1/technical-sheets?location_id=xxx&include_inactive=false
func (tc *TechnicalSheetController) ListSheets(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.DefaultQuery("include_inactive", "false"))
	sheets, err := tc.sheets.List(c.Request.Context(), c.Query("location_id"), !includeInactive)
	if err != nil {
		respondServiceError(c, err, "Ошибка получения технологических карт")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sheets": sheets,
		"count":  len(sheets),
	})
}

// GetSheet GET /api/v1/technical-sheets/:id
func (tc *TechnicalSheetController) GetSheet(c *gin.Context) {
	sheet, err := tc.sheets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Технологическая карта не найдена")
		return
	}
	c.JSON(http.StatusOK, sheet)
}

// UpdateSheet PUT /api/v1/technical-sheets/:id?create_version=true
func (tc *TechnicalSheetController) UpdateSheet(c *gin.Context) {
	var dto services.UpdateSheetDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}
	createVersion, err := strconv.ParseBool(c.DefaultQuery("create_version", "true"))
	if err != nil {
		badRequest(c, "Неверный параметр create_version", err)
		return
	}
	sheet, err := tc.sheets.Update(c.Request.Context(), c.Param("id"), dto, userID(c), createVersion)
	if err != nil {
		respondServiceError(c, err, "Ошибка обновления технологической карты")
		return
	}
	c.JSON(http.StatusOK, sheet)
}

// DeleteSheet - мягкое удаление
// DELETE /api/v1/technical-sheets/:id
func (tc *TechnicalSheetController) DeleteSheet(c *gin.Context) {
	if err := tc.sheets.Delete(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		respondServiceError(c, err, "Ошибка удаления технологической карты")
		return
	}
	c.Status(http.StatusNoContent)
}

type duplicateRequest struct {
	Name string `json:"name" binding:"max=255"`
}

// DuplicateSheet POST /api/v1/technical-sheets/:id/duplicate
func (tc *TechnicalSheetController) DuplicateSheet(c *gin.Context) {
	var request duplicateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Неверные параметры запроса", err)
			return
		}
	}
	sheet, err := tc.sheets.Duplicate(c.Request.Context(), c.Param("id"), request.Name, userID(c))
	if err != nil {
		respondServiceError(c, err, "Ошибка копирования технологической карты")
		return
	}
	c.JSON(http.StatusCreated, sheet)
}

// RecalculateSheet POST /api/v1/technical-sheets/:id/recalculate
func (tc *TechnicalSheetController) RecalculateSheet(c *gin.Context) {
	sheet, err := tc.sheets.Recalculate(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		respondServiceError(c, err, "Ошибка пересчета технологической карты")
		return
	}
	c.JSON(http.StatusOK, sheet)
}

// GetVersions GET /api/v1/technical-sheets/:id/versions
func (tc *TechnicalSheetController) GetVersions(c *gin.Context) {
	versions, err := tc.sheets.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Ошибка получения истории версий")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"versions": versions,
		"count":    len(versions),
	})
}

// GetVersion GET /api/v1/technical-sheets/:id/versions/:version
func (tc *TechnicalSheetController) GetVersion(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		badRequest(c, "Неверный номер версии", fmt.Errorf("version: %q", c.Param("version")))
		return
	}
	sheet, err := tc.sheets.GetVersion(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		respondServiceError(c, err, "Версия не найдена")
		return
	}
	c.JSON(http.StatusOK, sheet)
}

// ExportSheet отдает раскладку себестоимости в xlsx
// GET /api/v1/technical-sheets/:id/export
func (tc *TechnicalSheetController) ExportSheet(c *gin.Context) {
	sheet, err := tc.sheets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Технологическая карта не найдена")
		return
	}
	var buf bytes.Buffer
	if err := services.ExportSheetXLSX(*sheet, &buf); err != nil {
		respondServiceError(c, err, "Ошибка формирования файла")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=sheet-%s-v%d.xlsx", sheet.ID, sheet.Version))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

type fromRecipeRequest struct {
	LocationID string `json:"location_id"`
}

// CreateFromRecipe POST /api/v1/technical-sheets/from-recipe/:recipe_id
func (tc *TechnicalSheetController) CreateFromRecipe(c *gin.Context) {
	var request fromRecipeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Неверные параметры запроса", err)
			return
		}
	}
	sheet, err := tc.sheets.CreateFromRecipe(c.Request.Context(), c.Param("recipe_id"), request.LocationID, userID(c))
	if err != nil {
		respondServiceError(c, err, "Ошибка конвертации рецепта")
		return
	}
	c.JSON(http.StatusCreated, sheet)
}

type importRecipesRequest struct {
	RecipeIDs  []string `json:"recipe_ids" binding:"required,min=1"`
	LocationID string   `json:"location_id" binding:"required"`
}

// ImportRecipes POST /api/v1/technical-sheets/import-recipes
func (tc *TechnicalSheetController) ImportRecipes(c *gin.Context) {
	var request importRecipesRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "Неверные параметры запроса", err)
		return
	}
	result, err := tc.sheets.ImportRecipes(c.Request.Context(), request.RecipeIDs, request.LocationID, userID(c))
	if err != nil {
		respondServiceError(c, err, "Ошибка импорта рецептов")
		return
	}
	c.JSON(http.StatusOK, result)
}
