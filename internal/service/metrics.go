package service

import "github.com/prometheus/client_golang/prometheus"

var (
	saleLinesCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ashki_sale_lines_committed_total",
			Help: "Sale lines written, by engine path",
		},
		[]string{"kind"},
	)

	saleReversals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ashki_sale_reversals_total",
			Help: "Sale lines edited or deleted",
		},
		[]string{"action"},
	)

	defectsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ashki_defects_registered_total",
		Help: "Defect write-offs recorded",
	})

	stockRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ashki_insufficient_stock_total",
		Help: "Transactions rejected for insufficient stock",
	})
)

// Collectors returns the business metrics for registration by the caller.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{saleLinesCommitted, saleReversals, defectsRegistered, stockRejections}
}
