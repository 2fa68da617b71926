package core

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds thread-safe monotonic counters (spec §4.14), mirroring the
// Prometheus-backed gauges the teacher exposes in
// core/system_health_logging.go, generalized to the payment-core concerns
// this spec names.
type Metrics struct {
	startedAt time.Time

	handshakeAttempts    atomic.Int64
	handshakeSuccesses   atomic.Int64
	handshakeFailures    atomic.Int64
	handshakeRateLimited atomic.Int64

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64

	connectionsOpen     atomic.Int64
	connectionsClosed   atomic.Int64
	connectionsRejected atomic.Int64
	activeConnections   atomic.Int64

	paymentRequestsSent     atomic.Int64
	paymentRequestsReceived atomic.Int64
	receiptsGenerated       atomic.Int64
	receiptsVerified        atomic.Int64

	encryptionErrors atomic.Int64
	decryptionErrors atomic.Int64
	protocolErrors   atomic.Int64

	registry *prometheus.Registry
	gauge    *prometheus.GaugeVec
}

// NewMetrics builds a Metrics instance and, if registry is non-nil,
// registers a gauge vector so the counters are also exportable over the
// teacher's Prometheus client.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{startedAt: time.Now(), registry: registry}
	m.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "paykit",
		Name:      "counters",
		Help:      "Monotonic paykit core counters.",
	}, []string{"counter"})
	if registry != nil {
		registry.MustRegister(m.gauge)
	}
	return m
}

func (m *Metrics) observe(name string, v *atomic.Int64, delta int64) int64 {
	n := v.Add(delta)
	if m.gauge != nil {
		m.gauge.WithLabelValues(name).Set(float64(n))
	}
	return n
}

func (m *Metrics) IncHandshakeAttempt()    { m.observe("handshake_attempts", &m.handshakeAttempts, 1) }
func (m *Metrics) IncHandshakeSuccess()    { m.observe("handshake_successes", &m.handshakeSuccesses, 1) }
func (m *Metrics) IncHandshakeFailure()    { m.observe("handshake_failures", &m.handshakeFailures, 1) }
func (m *Metrics) IncHandshakeRateLimited() {
	m.observe("handshake_rate_limited", &m.handshakeRateLimited, 1)
}

func (m *Metrics) IncMessageSent(bytes int64) {
	m.observe("messages_sent", &m.messagesSent, 1)
	m.observe("bytes_sent", &m.bytesSent, bytes)
}

func (m *Metrics) IncMessageReceived(bytes int64) {
	m.observe("messages_received", &m.messagesReceived, 1)
	m.observe("bytes_received", &m.bytesReceived, bytes)
}

func (m *Metrics) ConnectionOpened() {
	m.observe("connections_open", &m.connectionsOpen, 1)
	m.observe("active_connections", &m.activeConnections, 1)
}

func (m *Metrics) ConnectionClosed() {
	m.observe("connections_closed", &m.connectionsClosed, 1)
	m.observe("active_connections", &m.activeConnections, -1)
}

func (m *Metrics) ConnectionRejected() { m.observe("connections_rejected", &m.connectionsRejected, 1) }

func (m *Metrics) IncPaymentRequestSent()     { m.observe("payment_requests_sent", &m.paymentRequestsSent, 1) }
func (m *Metrics) IncPaymentRequestReceived() {
	m.observe("payment_requests_received", &m.paymentRequestsReceived, 1)
}
func (m *Metrics) IncReceiptGenerated() { m.observe("receipts_generated", &m.receiptsGenerated, 1) }
func (m *Metrics) IncReceiptVerified()  { m.observe("receipts_verified", &m.receiptsVerified, 1) }

func (m *Metrics) IncEncryptionError() { m.observe("encryption_errors", &m.encryptionErrors, 1) }
func (m *Metrics) IncDecryptionError() { m.observe("decryption_errors", &m.decryptionErrors, 1) }
func (m *Metrics) IncProtocolError()   { m.observe("protocol_errors", &m.protocolErrors, 1) }

// Snapshot is a point-in-time copy of every counter (spec §4.14).
type Snapshot struct {
	HandshakeAttempts, HandshakeSuccesses, HandshakeFailures, HandshakeRateLimited int64
	MessagesSent, MessagesReceived, BytesSent, BytesReceived                      int64
	ConnectionsOpen, ConnectionsClosed, ConnectionsRejected, ActiveConnections    int64
	PaymentRequestsSent, PaymentRequestsReceived, ReceiptsGenerated, ReceiptsVerified int64
	EncryptionErrors, DecryptionErrors, ProtocolErrors                            int64
	UptimeSecs                                                                    int64
}

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		HandshakeAttempts:       m.handshakeAttempts.Load(),
		HandshakeSuccesses:      m.handshakeSuccesses.Load(),
		HandshakeFailures:       m.handshakeFailures.Load(),
		HandshakeRateLimited:    m.handshakeRateLimited.Load(),
		MessagesSent:            m.messagesSent.Load(),
		MessagesReceived:        m.messagesReceived.Load(),
		BytesSent:               m.bytesSent.Load(),
		BytesReceived:           m.bytesReceived.Load(),
		ConnectionsOpen:         m.connectionsOpen.Load(),
		ConnectionsClosed:       m.connectionsClosed.Load(),
		ConnectionsRejected:     m.connectionsRejected.Load(),
		ActiveConnections:       m.activeConnections.Load(),
		PaymentRequestsSent:     m.paymentRequestsSent.Load(),
		PaymentRequestsReceived: m.paymentRequestsReceived.Load(),
		ReceiptsGenerated:       m.receiptsGenerated.Load(),
		ReceiptsVerified:        m.receiptsVerified.Load(),
		EncryptionErrors:        m.encryptionErrors.Load(),
		DecryptionErrors:        m.decryptionErrors.Load(),
		ProtocolErrors:          m.protocolErrors.Load(),
		UptimeSecs:              int64(time.Since(m.startedAt).Seconds()),
	}
}

// Reset zeros every counter except ActiveConnections, which mirrors live
// state rather than accumulating (spec §4.14).
func (m *Metrics) Reset() {
	m.handshakeAttempts.Store(0)
	m.handshakeSuccesses.Store(0)
	m.handshakeFailures.Store(0)
	m.handshakeRateLimited.Store(0)
	m.messagesSent.Store(0)
	m.messagesReceived.Store(0)
	m.bytesSent.Store(0)
	m.bytesReceived.Store(0)
	m.connectionsOpen.Store(0)
	m.connectionsClosed.Store(0)
	m.connectionsRejected.Store(0)
	m.paymentRequestsSent.Store(0)
	m.paymentRequestsReceived.Store(0)
	m.receiptsGenerated.Store(0)
	m.receiptsVerified.Store(0)
	m.encryptionErrors.Store(0)
	m.decryptionErrors.Store(0)
	m.protocolErrors.Store(0)
}
