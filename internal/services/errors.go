package services

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedConversion - единицы несовместимы или неизвестны
	ErrUnsupportedConversion = errors.New("unsupported unit conversion")
	// ErrInvalidYield - коэффициент выхода должен быть > 0
	ErrInvalidYield = errors.New("yield fraction must be greater than zero")
	// ErrInvalidMargin - маржа должна быть в диапазоне [0, 1)
	ErrInvalidMargin = errors.New("margin must be in range [0, 1)")
	// ErrValidation - входные данные не прошли проверку
	ErrValidation = errors.New("validation failed")
)

// roundTo округляет половину от нуля, работая в десятичной арифметике
func roundTo(value float64, places int32) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return rounded
}
