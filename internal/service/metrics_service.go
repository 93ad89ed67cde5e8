package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the confirmation pipeline.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	messagesTotal *prometheus.CounterVec
	emailsTotal   *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	scansTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_scans_total",
		Help: "Mailbox scan runs by result",
	}, []string{"result"})

	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollment_scan_duration_seconds",
		Help:    "Duration of mailbox scan runs",
		Buckets: prometheus.DefBuckets,
	})

	messagesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_messages_total",
		Help: "Inbound confirmation messages by outcome",
	}, []string{"outcome"})

	emailsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_emails_total",
		Help: "Outbound pipeline emails queued, by template",
	}, []string{"template"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, scansTotal, scanDuration, messagesTotal, emailsTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		scansTotal:      scansTotal,
		scanDuration:    scanDuration,
		messagesTotal:   messagesTotal,
		emailsTotal:     emailsTotal,
	}
}

// Handler exposes the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveScan records one finished scan run.
func (s *MetricsService) ObserveScan(result string, duration time.Duration) {
	s.scansTotal.WithLabelValues(result).Inc()
	s.scanDuration.Observe(duration.Seconds())
}

// ObserveMessage records the outcome of one inbound message.
func (s *MetricsService) ObserveMessage(outcome string) {
	s.messagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveEmail records one queued outbound email.
func (s *MetricsService) ObserveEmail(template string) {
	s.emailsTotal.WithLabelValues(template).Inc()
}
