package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector - метрики склада и себестоимости. Методы безопасно вызывать у nil.
type Collector struct {
	registry *prometheus.Registry

	deductions        *prometheus.CounterVec
	deductedQuantity  *prometheus.CounterVec
	shortfalls        *prometheus.CounterVec
	skipped           *prometheus.CounterVec
	countVariance     *prometheus.HistogramVec
	sheetVersions     prometheus.Counter
	lookupFallbacks   prometheus.Counter
	missingIngredient prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		deductions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_event_deductions_total",
				Help: "Event stock deductions by outcome",
			},
			[]string{"outcome"},
		),
		deductedQuantity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_deducted_quantity_total",
				Help: "Quantity consumed from batches, in the inventory item unit",
			},
			[]string{"location_id"},
		),
		shortfalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_shortfalls_total",
				Help: "Consumptions that could not be fully satisfied by batches",
			},
			[]string{"location_id"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_skipped_ingredients_total",
				Help: "Ingredients skipped during deduction",
			},
			[]string{"reason"},
		),
		countVariance: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inventory_count_variance",
				Help:    "Physical count minus theoretical stock",
				Buckets: []float64{-50, -10, -5, -1, 0, 1, 5, 10, 50},
			},
			[]string{"location_id"},
		),
		sheetVersions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "technical_sheet_versions_total",
			Help: "Version snapshots written for technical sheets",
		}),
		lookupFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingredient_bulk_lookup_fallbacks_total",
			Help: "Bulk ingredient lookups that degraded to per-id reads",
		}),
		missingIngredient: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingredient_lookup_missing_total",
			Help: "Ingredient references that could not be resolved",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.deductions,
		c.deductedQuantity,
		c.shortfalls,
		c.skipped,
		c.countVariance,
		c.sheetVersions,
		c.lookupFallbacks,
		c.missingIngredient,
	)
	return c
}

// Registry нужен для promhttp.HandlerFor
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) DeductionFinished(outcome string) {
	if c == nil {
		return
	}
	c.deductions.WithLabelValues(outcome).Inc()
}

func (c *Collector) QuantityDeducted(locationID string, quantity float64) {
	if c == nil || quantity <= 0 {
		return
	}
	c.deductedQuantity.WithLabelValues(locationID).Add(quantity)
}

func (c *Collector) Shortfall(locationID string) {
	if c == nil {
		return
	}
	c.shortfalls.WithLabelValues(locationID).Inc()
}

func (c *Collector) IngredientSkipped(reason string) {
	if c == nil {
		return
	}
	c.skipped.WithLabelValues(reason).Inc()
}

func (c *Collector) CountVariance(locationID string, variance float64) {
	if c == nil {
		return
	}
	c.countVariance.WithLabelValues(locationID).Observe(variance)
}

func (c *Collector) SheetVersioned() {
	if c == nil {
		return
	}
	c.sheetVersions.Inc()
}

func (c *Collector) LookupFallback() {
	if c == nil {
		return
	}
	c.lookupFallbacks.Inc()
}

func (c *Collector) IngredientMissing(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.missingIngredient.Add(float64(n))
}
