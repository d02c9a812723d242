package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics содержит метрики бизнес-операций витрины.
type CoreMetrics struct {
	// Счётчики оформления заказа
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    prometheus.Counter

	// Счётчики купонов
	couponRedemptions prometheus.Counter
	couponRejections  *prometheus.CounterVec

	// Счётчики отказов по остаткам и конфликтам версий
	stockRejections    prometheus.Counter
	conflictRejections *prometheus.CounterVec

	// HTTP-слой
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Gauge для заказов в обработке
	activeCheckouts prometheus.Gauge
}

// NewCoreMetrics создаёт новый экземпляр метрик витрины.
func NewCoreMetrics() *CoreMetrics {
	return newCoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCoreMetricsWithRegisterer(registerer prometheus.Registerer) *CoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CoreMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_started_total",
			Help: "Total number of checkout attempts started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_completed_total",
			Help: "Total number of checkouts committed successfully",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of checkouts rejected or failed",
		}),
		couponRedemptions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_coupon_redemptions_total",
			Help: "Total number of coupon uses spent",
		}),
		couponRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_coupon_rejections_total",
			Help: "Total number of coupon rejections grouped by reason",
		}, []string{"reason"}),
		stockRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_rejections_total",
			Help: "Total number of writes rejected for insufficient stock",
		}),
		conflictRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_conflict_rejections_total",
			Help: "Total number of requests rejected after exhausting version conflict retries, grouped by operation",
		}, []string{"op"}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests grouped by route and status code",
		}, []string{"route", "code"}),
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"route"}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of checkout requests currently in flight",
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

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
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

// RecordCheckoutStarted увеличивает счётчик начатых оформлений.
func (m *CoreMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
	m.RecordCheckoutInFlightStarted()
}

// RecordCheckoutCompleted увеличивает счётчик успешных оформлений.
func (m *CoreMetrics) RecordCheckoutCompleted() {
	m.checkoutCompleted.Inc()
}

// RecordCheckoutFailed увеличивает счётчик неудачных оформлений.
func (m *CoreMetrics) RecordCheckoutFailed() {
	m.checkoutFailed.Inc()
}

// RecordCheckoutInFlightStarted увеличивает число заказов в обработке.
func (m *CoreMetrics) RecordCheckoutInFlightStarted() {
	m.activeCheckouts.Inc()
}

// RecordCheckoutInFlightFinished уменьшает число заказов в обработке.
func (m *CoreMetrics) RecordCheckoutInFlightFinished() {
	m.activeCheckouts.Dec()
}

// RecordCouponRedeemed увеличивает счётчик погашений купонов.
func (m *CoreMetrics) RecordCouponRedeemed() {
	m.couponRedemptions.Inc()
}

// RecordCouponRejected увеличивает счётчик отказов по купонам.
func (m *CoreMetrics) RecordCouponRejected(reason string) {
	m.couponRejections.WithLabelValues(reason).Inc()
}

// RecordStockRejection увеличивает счётчик отказов по остатку.
func (m *CoreMetrics) RecordStockRejection() {
	m.stockRejections.Inc()
}

// RecordConflictRejection увеличивает счётчик запросов, отклонённых после
// исчерпания повторов на конфликтах версий.
func (m *CoreMetrics) RecordConflictRejection(op string) {
	m.conflictRejections.WithLabelValues(op).Inc()
}

// RecordHTTPRequest увеличивает счётчик HTTP-запросов.
func (m *CoreMetrics) RecordHTTPRequest(route, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}

// RecordRequestDuration записывает длительность HTTP-запроса.
func (m *CoreMetrics) RecordRequestDuration(route string, duration time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
