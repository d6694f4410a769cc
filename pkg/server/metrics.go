package server

import (
	"time"

	"KirveHubBot/pkg/resilience"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// botUpdatesTotal подсчитывает обработанные обновления Telegram
	botUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of processed Telegram updates",
		},
		[]string{"kind", "status"},
	)

	// botUpdateDuration измеряет длительность обработки обновлений
	botUpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Duration of Telegram update handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// dbOperationDuration измеряет длительность операций с хранилищем
	dbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// dbOperationsTotal подсчитывает операции с хранилищем
	dbOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	// cacheOperationsTotal подсчитывает операции с Redis
	cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	// pointsCreditedTotal сумма начисленных баллов по источнику
	pointsCreditedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_credited_total",
			Help: "Total amount of points credited",
		},
		[]string{"source"},
	)

	// platformCallsTotal подсчитывает вызовы Bot API
	platformCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_calls_total",
			Help: "Total number of Telegram Bot API calls",
		},
		[]string{"method", "status"},
	)

	// circuitBreakerState отслеживает состояние circuit breaker
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "State of circuit breaker (0: closed, 1: half-open, 2: open)",
		},
		[]string{"name"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordUpdate записывает метрики обработки обновления
func RecordUpdate(kind string, duration time.Duration, err error) {
	botUpdatesTotal.WithLabelValues(kind, statusLabel(err)).Inc()
	botUpdateDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordDBOperation записывает метрики операции с хранилищем
func RecordDBOperation(operation string, duration time.Duration, err error) {
	status := statusLabel(err)
	dbOperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheOperation записывает метрики операции с кэшем
func RecordCacheOperation(operation string, err error) {
	cacheOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// RecordPointsCredited учитывает начисленные баллы
func RecordPointsCredited(source string, amount float64) {
	if amount <= 0 {
		return
	}
	pointsCreditedTotal.WithLabelValues(source).Add(amount)
}

// RecordPlatformCall записывает результат вызова Bot API
func RecordPlatformCall(method string, err error) {
	platformCallsTotal.WithLabelValues(method, statusLabel(err)).Inc()
}

// RecordCircuitBreakerStateChange записывает изменение состояния circuit breaker.
// Сигнатура совпадает с resilience.BreakerOptions.OnStateChange.
func RecordCircuitBreakerStateChange(name string, state resilience.CircuitState) {
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}
