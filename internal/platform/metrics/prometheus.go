package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// Prometheus collects cache, ledger and settlement metrics.
// It implements CacheCollector, ledger.Observer and settlement.Observer.
type Prometheus struct {
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
	getLatency   *prometheus.HistogramVec
	setLatency   *prometheus.HistogramVec

	movementsAppended  *prometheus.CounterVec
	movementsRetracted *prometheus.CounterVec

	batches      *prometheus.CounterVec
	itemsApplied prometheus.Counter
	itemsFailed  prometheus.Counter

	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec
}

var (
	_ CacheCollector      = (*Prometheus)(nil)
	_ ledger.Observer     = (*Prometheus)(nil)
	_ settlement.Observer = (*Prometheus)(nil)
	_ mcp.Observer        = (*Prometheus)(nil)
)

// NewPrometheus creates the collectors under the given namespace
func NewPrometheus(namespace string) *Prometheus {
	return &Prometheus{
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_cache_hits_total",
				Help:      "Total number of balance cache hits per layer",
			},
			[]string{"layer"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_cache_misses_total",
				Help:      "Total number of balance cache misses per layer",
			},
			[]string{"layer"},
		),
		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_cache_errors_total",
				Help:      "Total number of failed balance cache writes per layer and operation",
			},
			[]string{"layer", "operation"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "balance_cache_circuit_state",
				Help:      "Current circuit breaker state per layer (0=closed, 1=open, 2=half-open)",
			},
			[]string{"layer"},
		),
		getLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "balance_cache_get_duration_seconds",
				Help:      "Balance cache get latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3s
			},
			[]string{"layer"},
		),
		setLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "balance_cache_set_duration_seconds",
				Help:      "Balance cache set latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"layer"},
		),
		movementsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_movements_appended_total",
				Help:      "Total number of ledger movements written per type and currency",
			},
			[]string{"type", "currency"},
		),
		movementsRetracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_movements_retracted_total",
				Help:      "Total number of administratively retracted movements per type",
			},
			[]string{"type"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_batches_total",
				Help:      "Total number of settlement batches per outcome",
			},
			[]string{"status"},
		),
		itemsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_items_applied_total",
				Help:      "Total number of payables settled",
			},
		),
		itemsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_items_failed_total",
				Help:      "Total number of settlement items rejected or failed",
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mcp_tool_calls_total",
				Help:      "Total number of MCP tool calls per tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mcp_tool_duration_seconds",
				Help:      "MCP tool call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (p *Prometheus) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		p.cacheHits,
		p.cacheMisses,
		p.cacheErrors,
		p.circuitState,
		p.getLatency,
		p.setLatency,
		p.movementsAppended,
		p.movementsRetracted,
		p.batches,
		p.itemsApplied,
		p.itemsFailed,
		p.toolCalls,
		p.toolLatency,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordGet implements CacheCollector
func (p *Prometheus) RecordGet(layer string, hit bool, duration time.Duration) {
	if hit {
		p.cacheHits.WithLabelValues(layer).Inc()
	} else {
		p.cacheMisses.WithLabelValues(layer).Inc()
	}
	p.getLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordSet implements CacheCollector
func (p *Prometheus) RecordSet(layer string, success bool, duration time.Duration) {
	if !success {
		p.cacheErrors.WithLabelValues(layer, "set").Inc()
	}
	p.setLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordDelete implements CacheCollector
func (p *Prometheus) RecordDelete(layer string, success bool, duration time.Duration) {
	if !success {
		p.cacheErrors.WithLabelValues(layer, "delete").Inc()
	}
}

// RecordCircuitState implements CacheCollector
func (p *Prometheus) RecordCircuitState(layer string, state CircuitState) {
	p.circuitState.WithLabelValues(layer).Set(float64(state))
}

// MovementAppended implements ledger.Observer
func (p *Prometheus) MovementAppended(movementType ledger.MovementType, currency money.Currency) {
	p.movementsAppended.WithLabelValues(string(movementType), string(currency)).Inc()
}

// MovementRetracted implements ledger.Observer
func (p *Prometheus) MovementRetracted(movementType ledger.MovementType) {
	p.movementsRetracted.WithLabelValues(string(movementType)).Inc()
}

// BatchProcessed implements settlement.Observer
func (p *Prometheus) BatchProcessed(status settlement.Status, applied, failed int) {
	p.batches.WithLabelValues(string(status)).Inc()
	p.itemsApplied.Add(float64(applied))
	p.itemsFailed.Add(float64(failed))
}

// ToolCalled implements mcp.Observer
func (p *Prometheus) ToolCalled(tool string, isError bool, duration time.Duration) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	p.toolCalls.WithLabelValues(tool, outcome).Inc()
	p.toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}
