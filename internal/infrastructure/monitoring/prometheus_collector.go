package monitoring

import (
	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports control-plane lifecycle and traffic metrics.
type PrometheusCollector struct {
	roomsActive    prometheus.Gauge
	roomsTotal     prometheus.Counter
	peersConnected *prometheus.GaugeVec
	peersTotal     *prometheus.CounterVec
	negotiations   *prometheus.CounterVec
	dataSentBytes  prometheus.Counter
}

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamcast_rooms_active",
			Help: "Number of currently active rooms",
		}),

		roomsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_rooms_created_total",
			Help: "Total number of rooms created",
		}),

		peersConnected: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamcast_peers_connected",
			Help: "Number of currently connected peers",
		}, []string{"role"}),

		peersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcast_peers_joined_total",
			Help: "Total number of peers that joined",
		}, []string{"role"}),

		negotiations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcast_negotiations_total",
			Help: "Total number of signaling negotiations by kind",
		}, []string{"kind"}),

		dataSentBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_data_sent_bytes_total",
			Help: "Total bytes accounted through peer data channels",
		}),
	}
}

func (p *PrometheusCollector) RoomCreated() {
	p.roomsActive.Inc()
	p.roomsTotal.Inc()
}

func (p *PrometheusCollector) RoomDeleted() {
	p.roomsActive.Dec()
}

func (p *PrometheusCollector) PeerAdded(role domain.Role) {
	p.peersConnected.WithLabelValues(string(role)).Inc()
	p.peersTotal.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) PeerRemoved(role domain.Role) {
	p.peersConnected.WithLabelValues(string(role)).Dec()
}

func (p *PrometheusCollector) Negotiation(kind string) {
	p.negotiations.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) DataSent(bytes int) {
	p.dataSentBytes.Add(float64(bytes))
}
