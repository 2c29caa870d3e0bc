package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the UDP request server
type Metrics struct {
	// Datagram metrics
	PackagesReceived prometheus.Counter
	PackagesSent     prometheus.Counter
	PackagesDropped  *prometheus.CounterVec
	ReceiveErrors    prometheus.Counter
	SendErrors       prometheus.Counter

	// Queue metrics
	QueueSize *prometheus.GaugeVec

	// Dispatch metrics
	DecodeErrors    *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec

	// Peer metrics
	ActivePeers   prometheus.Gauge
	PeersRejected prometheus.Counter

	// Lifecycle metrics
	JoinTimeouts *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PackagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_packages_received_total",
			Help: "Total number of datagrams read from the socket",
		}),
		PackagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_packages_sent_total",
			Help: "Total number of datagrams written to the socket",
		}),
		PackagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_packages_dropped_total",
			Help: "Total number of packages dropped before reaching their destination",
		}, []string{"reason"}),
		ReceiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_receive_errors_total",
			Help: "Total number of socket read failures other than timeouts",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_send_errors_total",
			Help: "Total number of socket write failures",
		}),

		QueueSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "udp_queue_size",
			Help: "Current number of packages waiting in a queue",
		}, []string{"queue"}),

		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_decode_errors_total",
			Help: "Total number of packages that could not be decoded",
		}, []string{"kind"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_requests_total",
			Help: "Total number of requests passed to the handler",
		}, []string{"request_type"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_handler_errors_total",
			Help: "Total number of requests the handler failed",
		}, []string{"request_type"}),
		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "udp_handler_duration_seconds",
			Help:    "Time spent inside the request handler",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		}, []string{"request_type"}),

		ActivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "udp_active_peers",
			Help: "Current number of registered peers",
		}),
		PeersRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_peers_rejected_total",
			Help: "Total number of datagrams from new peers refused because max_hosts was reached",
		}),

		JoinTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_worker_join_timeouts_total",
			Help: "Total number of workers that did not stop within the join timeout",
		}, []string{"worker"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "udp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPackageReceived increments the packages received counter
func (m *Metrics) RecordPackageReceived() {
	m.PackagesReceived.Inc()
}

// RecordPackageSent increments the packages sent counter
func (m *Metrics) RecordPackageSent() {
	m.PackagesSent.Inc()
}

// RecordPackageDropped counts a dropped package by reason
func (m *Metrics) RecordPackageDropped(reason string) {
	m.PackagesDropped.WithLabelValues(reason).Inc()
}

// RecordReceiveError increments the receive errors counter
func (m *Metrics) RecordReceiveError() {
	m.ReceiveErrors.Inc()
}

// RecordSendError increments the send errors counter
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// SetQueueSize sets the current size of the named queue
func (m *Metrics) SetQueueSize(queue string, size int) {
	m.QueueSize.WithLabelValues(queue).Set(float64(size))
}

// RecordDecodeError counts a decode failure by kind
func (m *Metrics) RecordDecodeError(kind string) {
	m.DecodeErrors.WithLabelValues(kind).Inc()
}

// RecordRequest records a handled request and its handler latency
func (m *Metrics) RecordRequest(requestType string, durationSeconds float64, failed bool) {
	m.Requests.WithLabelValues(requestType).Inc()
	m.HandlerDuration.WithLabelValues(requestType).Observe(durationSeconds)
	if failed {
		m.HandlerErrors.WithLabelValues(requestType).Inc()
	}
}

// SetActivePeers sets the current number of registered peers
func (m *Metrics) SetActivePeers(count int) {
	m.ActivePeers.Set(float64(count))
}

// RecordPeerRejected increments the rejected peers counter
func (m *Metrics) RecordPeerRejected() {
	m.PeersRejected.Inc()
}

// RecordJoinTimeout counts a worker that failed to stop in time
func (m *Metrics) RecordJoinTimeout(worker string) {
	m.JoinTimeouts.WithLabelValues(worker).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
