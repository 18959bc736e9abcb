package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics содержит метрики settlement-конвейера.
type SettlementMetrics struct {
	// Счётчики исходов settlement
	settlementStarted   prometheus.Counter
	settlementCompleted prometheus.Counter
	settlementFailed    prometheus.Counter
	settlementDuplicate prometheus.Counter

	// Гистограммы времени выполнения
	settlementDuration prometheus.Histogram
	stepDuration       *prometheus.HistogramVec

	// Счётчик событий outbox
	outboxEvents prometheus.Counter

	// Gauge для settlement в обработке
	activeSettlements prometheus.Gauge

	// Счётчик расхождений сумм между событием шлюза и пересчётом Pricing Engine
	amountMismatches prometheus.Counter
}

// NewSettlementMetrics создаёт новый экземпляр метрик settlement.
func NewSettlementMetrics() *SettlementMetrics {
	return newSettlementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSettlementMetricsWithRegisterer(registerer prometheus.Registerer) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SettlementMetrics{
		settlementStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_settlement_started_total",
			Help: "Total number of settlement attempts started",
		}),
		settlementCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_settlement_completed_total",
			Help: "Total number of settlements completed successfully",
		}),
		settlementFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_settlement_failed_total",
			Help: "Total number of settlements failed",
		}),
		settlementDuplicate: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_settlement_duplicate_total",
			Help: "Total number of settlement events short-circuited as duplicates",
		}),
		settlementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_settlement_duration_seconds",
			Help:    "Duration of settlement processing in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_settlement_step_duration_seconds",
			Help:    "Duration of individual settlement steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of settlement events enqueued to the outbox",
		}),
		activeSettlements: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_settlements",
			Help: "Number of settlement attempts currently in flight",
		}),
		amountMismatches: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_settlement_amount_mismatch_total",
			Help: "Total number of events whose amount diverged from the re-derived cart total",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSettlementStarted увеличивает счётчик начатых settlement.
func (m *SettlementMetrics) RecordSettlementStarted() {
	m.settlementStarted.Inc()
	m.activeSettlements.Inc()
}

// RecordSettlementFinished уменьшает количество активных settlement.
func (m *SettlementMetrics) RecordSettlementFinished() {
	m.activeSettlements.Dec()
}

// RecordSettlementCompleted увеличивает счётчик успешных settlement.
func (m *SettlementMetrics) RecordSettlementCompleted() {
	m.settlementCompleted.Inc()
}

// RecordSettlementFailed увеличивает счётчик неудачных settlement.
func (m *SettlementMetrics) RecordSettlementFailed() {
	m.settlementFailed.Inc()
}

// RecordSettlementDuplicate увеличивает счётчик повторных доставок.
func (m *SettlementMetrics) RecordSettlementDuplicate() {
	m.settlementDuplicate.Inc()
}

// RecordSettlementDuration записывает время полной обработки события.
func (m *SettlementMetrics) RecordSettlementDuration(duration time.Duration) {
	m.settlementDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага settlement.
func (m *SettlementMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SettlementMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordAmountMismatch увеличивает счётчик расхождений сумм.
func (m *SettlementMetrics) RecordAmountMismatch() {
	m.amountMismatches.Inc()
}
