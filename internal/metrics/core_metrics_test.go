package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCoreMetrics(t *testing.T) {
	metrics := NewCoreMetrics()

	if metrics == nil {
		t.Fatal("NewCoreMetrics should not return nil")
	}

	if metrics.checkoutStarted == nil {
		t.Error("checkoutStarted counter should not be nil")
	}

	if metrics.checkoutCompleted == nil {
		t.Error("checkoutCompleted counter should not be nil")
	}

	if metrics.checkoutFailed == nil {
		t.Error("checkoutFailed counter should not be nil")
	}

	if metrics.couponRedemptions == nil {
		t.Error("couponRedemptions counter should not be nil")
	}

	if metrics.couponRejections == nil {
		t.Error("couponRejections counter vec should not be nil")
	}

	if metrics.stockRejections == nil {
		t.Error("stockRejections counter should not be nil")
	}

	if metrics.conflictRejections == nil {
		t.Error("conflictRejections counter vec should not be nil")
	}

	if metrics.httpRequests == nil {
		t.Error("httpRequests counter vec should not be nil")
	}

	if metrics.requestDuration == nil {
		t.Error("requestDuration histogram vec should not be nil")
	}

	if metrics.activeCheckouts == nil {
		t.Error("activeCheckouts gauge should not be nil")
	}
}

func TestNewCoreMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newCoreMetricsWithRegisterer(reg)
	second := newCoreMetricsWithRegisterer(reg)

	// Повторная регистрация возвращает уже существующие коллекторы.
	if first.checkoutStarted != second.checkoutStarted {
		t.Error("expected checkoutStarted collector to be reused")
	}
	if first.conflictRejections != second.conflictRejections {
		t.Error("expected conflictRejections collector to be reused")
	}
}

func TestRecordCheckoutStarted(t *testing.T) {
	reg := prometheus.NewRegistry()

	checkoutStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_started_total",
		Help: "Test counter",
	})
	activeCheckouts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_checkouts",
		Help: "Test gauge",
	})

	reg.MustRegister(checkoutStarted, activeCheckouts)

	metrics := &CoreMetrics{
		checkoutStarted: checkoutStarted,
		activeCheckouts: activeCheckouts,
	}

	metrics.RecordCheckoutStarted()

	metric := &dto.Metric{}
	if err := checkoutStarted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	gaugeMetric := &dto.Metric{}
	if err := activeCheckouts.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected active checkouts 1.0, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()

	activeCheckouts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_checkout_lifecycle_active",
		Help: "Test gauge",
	})
	checkoutStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_lifecycle_started",
		Help: "Test counter",
	})
	checkoutCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_lifecycle_completed",
		Help: "Test counter",
	})

	reg.MustRegister(activeCheckouts, checkoutStarted, checkoutCompleted)

	metrics := &CoreMetrics{
		activeCheckouts:   activeCheckouts,
		checkoutStarted:   checkoutStarted,
		checkoutCompleted: checkoutCompleted,
	}

	metrics.RecordCheckoutStarted() // active: 1
	metrics.RecordCheckoutStarted() // active: 2
	metrics.RecordCheckoutStarted() // active: 3

	metrics.RecordCheckoutCompleted()
	metrics.RecordCheckoutInFlightFinished() // active: 2
	metrics.RecordCheckoutCompleted()
	metrics.RecordCheckoutInFlightFinished() // active: 1

	gaugeMetric := &dto.Metric{}
	if err := activeCheckouts.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active checkout, got %f", gaugeMetric.Gauge.GetValue())
	}

	startedMetric := &dto.Metric{}
	if err := checkoutStarted.Write(startedMetric); err != nil {
		t.Fatalf("failed to write started metric: %v", err)
	}

	if startedMetric.Counter.GetValue() != 3.0 {
		t.Errorf("expected 3 started checkouts, got %f", startedMetric.Counter.GetValue())
	}

	completedMetric := &dto.Metric{}
	if err := checkoutCompleted.Write(completedMetric); err != nil {
		t.Fatalf("failed to write completed metric: %v", err)
	}

	if completedMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 completed checkouts, got %f", completedMetric.Counter.GetValue())
	}
}

func TestRecordCouponRejected(t *testing.T) {
	reg := prometheus.NewRegistry()

	couponRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_coupon_rejections_total",
		Help: "Test counter vec",
	}, []string{"reason"})

	reg.MustRegister(couponRejections)

	metrics := &CoreMetrics{
		couponRejections: couponRejections,
	}

	metrics.RecordCouponRejected("expired")
	metrics.RecordCouponRejected("expired")
	metrics.RecordCouponRejected("exhausted")

	metric := &dto.Metric{}
	if err := couponRejections.WithLabelValues("expired").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 expired rejections, got %f", metric.Counter.GetValue())
	}
}

func TestRecordConflictRejection(t *testing.T) {
	reg := prometheus.NewRegistry()

	conflictRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_conflict_rejections_total",
		Help: "Test counter vec",
	}, []string{"op"})

	reg.MustRegister(conflictRejections)

	metrics := &CoreMetrics{
		conflictRejections: conflictRejections,
	}

	metrics.RecordConflictRejection("add_or_merge")
	metrics.RecordConflictRejection("set_default")
	metrics.RecordConflictRejection("add_or_merge")

	metric := &dto.Metric{}
	if err := conflictRejections.WithLabelValues("add_or_merge").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 retries for add_or_merge, got %f", metric.Counter.GetValue())
	}
}

func TestRecordRequestDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_http_request_duration_seconds",
		Help:    "Test histogram vec",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"route"})

	reg.MustRegister(requestDuration)

	metrics := &CoreMetrics{
		requestDuration: requestDuration,
	}

	metrics.RecordRequestDuration("/checkout", 100*time.Millisecond)
	metrics.RecordRequestDuration("/checkout", 500*time.Millisecond)
	metrics.RecordRequestDuration("/cart/items", 25*time.Millisecond)

	metric := &dto.Metric{}
	observer := requestDuration.WithLabelValues("/checkout")
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples for /checkout, got %d", metric.Histogram.GetSampleCount())
	}

	// Sum: 0.1 + 0.5 = 0.6.
	sum := metric.Histogram.GetSampleSum()
	if sum < 0.55 || sum > 0.65 {
		t.Errorf("expected sum around 0.6, got %f", sum)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_http_requests_total",
		Help: "Test counter vec",
	}, []string{"route", "code"})

	reg.MustRegister(httpRequests)

	metrics := &CoreMetrics{
		httpRequests: httpRequests,
	}

	metrics.RecordHTTPRequest("/cart/items", "200")
	metrics.RecordHTTPRequest("/cart/items", "200")
	metrics.RecordHTTPRequest("/cart/items", "409")

	metric := &dto.Metric{}
	if err := httpRequests.WithLabelValues("/cart/items", "200").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 requests with code 200, got %f", metric.Counter.GetValue())
	}
}

func TestRecordStockRejection(t *testing.T) {
	reg := prometheus.NewRegistry()

	stockRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_stock_rejections_total",
		Help: "Test counter",
	})

	reg.MustRegister(stockRejections)

	metrics := &CoreMetrics{
		stockRejections: stockRejections,
	}

	metrics.RecordStockRejection()
	metrics.RecordStockRejection()
	metrics.RecordStockRejection()

	metric := &dto.Metric{}
	if err := stockRejections.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 3.0 {
		t.Errorf("expected counter value 3.0, got %f", metric.Counter.GetValue())
	}
}
