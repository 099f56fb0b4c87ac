package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	connections      prometheus.Gauge
	liveRooms        prometheus.Gauge
	signalsRelayed   *prometheus.CounterVec
	signalsDropped   *prometheus.CounterVec
	messagesRelayed  *prometheus.CounterVec
	broadcasterLeft  prometheus.Counter
	requestsRejected prometheus.Counter
}

func NewCollector(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)

	return &Collector{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liverelay_connections",
			Help: "Number of open websocket connections",
		}),
		liveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liverelay_live_rooms",
			Help: "Number of rooms with a registered broadcaster",
		}),
		signalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liverelay_signals_relayed_total",
			Help: "Signals forwarded between viewers and broadcasters",
		}, []string{"direction"}),
		signalsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liverelay_signals_dropped_total",
			Help: "Signals dropped because the target was not reachable",
		}, []string{"direction"}),
		messagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liverelay_channel_messages_total",
			Help: "Channel messages published",
		}, []string{"kind"}),
		broadcasterLeft: factory.NewCounter(prometheus.CounterOpts{
			Name: "liverelay_broadcaster_left_total",
			Help: "broadcaster-left notifications emitted, one per affected room",
		}),
		requestsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "liverelay_requests_rate_limited_total",
			Help: "Requests rejected by the per-connection rate limiter",
		}),
	}
}

func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
}

func (c *Collector) SetLiveRooms(n int) {
	c.liveRooms.Set(float64(n))
}

func (c *Collector) SignalRelayed(direction string) {
	c.signalsRelayed.WithLabelValues(direction).Inc()
}

func (c *Collector) SignalDropped(direction string) {
	c.signalsDropped.WithLabelValues(direction).Inc()
}

func (c *Collector) MessagePublished(kind string) {
	c.messagesRelayed.WithLabelValues(kind).Inc()
}

func (c *Collector) BroadcasterLeft() {
	c.broadcasterLeft.Inc()
}

func (c *Collector) RequestRateLimited() {
	c.requestsRejected.Inc()
}
