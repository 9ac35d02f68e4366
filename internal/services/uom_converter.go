package services

import (
	"fmt"
	"strings"

	"kitchenledger/server/internal/models"
)

// UnitFamily - физическая величина единицы
type UnitFamily int

const (
	FamilyUnknown UnitFamily = iota
	FamilyMass
	FamilyVolume
	FamilyCount
)

func (f UnitFamily) String() string {
	switch f {
	case FamilyMass:
		return "mass"
	case FamilyVolume:
		return "volume"
	case FamilyCount:
		return "count"
	}
	return "unknown"
}

type unitDef struct {
	family UnitFamily
	factor float64 // множитель к базовой единице семейства: g, ml, pcs
}

var unitTable = map[string]unitDef{
	"mg":   {FamilyMass, 0.001},
	"g":    {FamilyMass, 1},
	"kg":   {FamilyMass, 1000},
	"lb":   {FamilyMass, 453.592},
	"oz":   {FamilyMass, 28.3495},
	"ml":   {FamilyVolume, 1},
	"cl":   {FamilyVolume, 10},
	"dl":   {FamilyVolume, 100},
	"l":    {FamilyVolume, 1000},
	"tsp":  {FamilyVolume, 4.92892},
	"tbsp": {FamilyVolume, 14.7868},
	"cup":  {FamilyVolume, 236.588},
	"gal":  {FamilyVolume, 3785.41},
	"pcs":  {FamilyCount, 1},
}

var unitAliases = map[string]string{
	"кг": "kg", "килограмм": "kg", "килограммов": "kg", "килограмма": "kg", "kilo": "kg", "kilos": "kg", "kilogram": "kg", "kgs": "kg",
	"г": "g", "гр": "g", "грамм": "g", "граммов": "g", "грамма": "g", "gr": "g", "gram": "g", "grams": "g", "gramo": "g", "gramos": "g",
	"мг": "mg", "miligramo": "mg",
	"lbs": "lb", "pound": "lb", "libra": "lb",
	"onza": "oz", "ounce": "oz",
	"л": "l", "литр": "l", "литров": "l", "литра": "l", "lt": "l", "ltr": "l", "litre": "l", "liter": "l", "litro": "l", "litros": "l",
	"мл": "ml", "миллилитр": "ml", "миллилитров": "ml", "миллилитра": "ml", "mililitro": "ml", "mililitros": "ml",
	"cucharadita": "tsp", "cucharada": "tbsp", "taza": "cup",
	"шт": "pcs", "штук": "pcs", "штука": "pcs", "pc": "pcs", "piece": "pcs", "pieces": "pcs",
	"un": "pcs", "ud": "pcs", "uds": "pcs", "unit": "pcs", "units": "pcs", "unidad": "pcs", "unidades": "pcs",
	"упак": "pcs", "упаковка": "pcs", "box": "pcs",
}

// ConversionContext - свойства ингредиента, разрешающие перевод между семействами
type ConversionContext struct {
	Density    *float64 // г/мл: масса <-> объем
	UnitWeight *float64 // г на 1 шт: штуки <-> масса
}

// ContextFor собирает контекст конвертации из карточки ингредиента
func ContextFor(ingredient models.Ingredient) *ConversionContext {
	return &ConversionContext{Density: ingredient.Density, UnitWeight: ingredient.AvgUnitWeight}
}

// UnitConverter переводит количества между единицами. Не хранит состояния.
type UnitConverter struct{}

// NormalizeUnit приводит обозначение единицы к каноническому виду (kg, g, ml, pcs...)
func NormalizeUnit(unit string) (string, bool) {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	if alias, ok := unitAliases[u]; ok {
		u = alias
	}
	_, ok := unitTable[u]
	return u, ok
}

// Family возвращает семейство единицы или FamilyUnknown
func (UnitConverter) Family(unit string) UnitFamily {
	u, ok := NormalizeUnit(unit)
	if !ok {
		return FamilyUnknown
	}
	return unitTable[u].family
}

// Convert переводит quantity из from в to.
// Перевод между семействами возможен только при заданной плотности или весе штуки.
func (UnitConverter) Convert(quantity float64, from, to string, cc *ConversionContext) (float64, error) {
	fromUnit, ok := NormalizeUnit(from)
	if !ok {
		return 0, fmt.Errorf("%w: неизвестная единица %q", ErrUnsupportedConversion, from)
	}
	toUnit, ok := NormalizeUnit(to)
	if !ok {
		return 0, fmt.Errorf("%w: неизвестная единица %q", ErrUnsupportedConversion, to)
	}
	if fromUnit == toUnit {
		return quantity, nil
	}

	f, t := unitTable[fromUnit], unitTable[toUnit]
	base := quantity * f.factor

	if f.family != t.family {
		grams, err := toGrams(base, f.family, cc)
		if err != nil {
			return 0, fmt.Errorf("%w: %s -> %s (%v)", ErrUnsupportedConversion, from, to, err)
		}
		base, err = fromGrams(grams, t.family, cc)
		if err != nil {
			return 0, fmt.Errorf("%w: %s -> %s (%v)", ErrUnsupportedConversion, from, to, err)
		}
	}

	return roundTo(base/t.factor, 9), nil
}

// toGrams переводит количество в базовой единице семейства в граммы
func toGrams(base float64, family UnitFamily, cc *ConversionContext) (float64, error) {
	switch family {
	case FamilyMass:
		return base, nil
	case FamilyVolume:
		density, ok := cc.density()
		if !ok {
			return 0, fmt.Errorf("не задана плотность")
		}
		return base * density, nil
	case FamilyCount:
		weight, ok := cc.unitWeight()
		if !ok {
			return 0, fmt.Errorf("не задан вес штуки")
		}
		return base * weight, nil
	}
	return 0, fmt.Errorf("неизвестное семейство")
}

func fromGrams(grams float64, family UnitFamily, cc *ConversionContext) (float64, error) {
	switch family {
	case FamilyMass:
		return grams, nil
	case FamilyVolume:
		density, ok := cc.density()
		if !ok {
			return 0, fmt.Errorf("не задана плотность")
		}
		return grams / density, nil
	case FamilyCount:
		weight, ok := cc.unitWeight()
		if !ok {
			return 0, fmt.Errorf("не задан вес штуки")
		}
		return grams / weight, nil
	}
	return 0, fmt.Errorf("неизвестное семейство")
}

func (cc *ConversionContext) density() (float64, bool) {
	if cc == nil || cc.Density == nil || *cc.Density <= 0 {
		return 0, false
	}
	return *cc.Density, true
}

func (cc *ConversionContext) unitWeight() (float64, bool) {
	if cc == nil || cc.UnitWeight == nil || *cc.UnitWeight <= 0 {
		return 0, false
	}
	return *cc.UnitWeight, true
}
