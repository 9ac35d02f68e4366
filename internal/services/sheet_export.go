package services

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"kitchenledger/server/internal/models"
)

const exportSheetName = "Sheet1"

var exportLineHeaders = []string{"Ingredient", "Quantity", "Unit", "Unit cost", "Line cost", "Optional"}

// ExportSheetXLSX пишет раскладку себестоимости карты в xlsx
func ExportSheetXLSX(sheet models.TechnicalSheet, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	set := func(cell string, value interface{}) error {
		return f.SetCellValue(exportSheetName, cell, value)
	}

	header := [][2]interface{}{
		{"Technical sheet", sheet.Name},
		{"Version", sheet.Version},
		{"Portions", sheet.Portions},
		{"Category", sheet.Category},
	}
	for i, h := range header {
		row := i + 1
		if err := set(fmt.Sprintf("A%d", row), h[0]); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("B%d", row), h[1]); err != nil {
			return err
		}
	}

	row := len(header) + 2
	for i, h := range exportLineHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := set(cell, h); err != nil {
			return err
		}
	}

	for _, line := range sheet.Lines {
		row++
		name := line.Name
		if name == "" {
			name = line.IngredientID
		}
		values := []interface{}{name, line.Quantity, line.Unit, line.UnitCost, line.LineCost, line.Optional}
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return err
			}
			if err := set(cell, v); err != nil {
				return err
			}
		}
	}

	row++
	totals := [][2]interface{}{
		{"Ingredient cost", sheet.Costs.IngredientCost},
		{"Labor cost", sheet.Costs.LaborCost},
		{"Energy cost", sheet.Costs.EnergyCost},
		{"Total", sheet.Costs.Total},
		{"Per portion", sheet.Costs.PerPortion},
		{"Suggested price", sheet.Pricing.SuggestedPrice},
		{"Gross margin %", sheet.Pricing.GrossMargin},
	}
	for _, t := range totals {
		row++
		if err := set(fmt.Sprintf("D%d", row), t[0]); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("E%d", row), t[1]); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(exportSheetName, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(exportSheetName, "D", "D", 18); err != nil {
		return err
	}
	return f.Write(w)
}
