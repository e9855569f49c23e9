package mqtt

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stat holds the Prometheus instrumentation for one Client. Unlike a
// broker, a process may run several clients side by side, so each Stat
// carries its own registry and metric instances rather than sharing
// package globals the way the teacher's stat.go does.
type Stat struct {
	Uptime            prometheus.Counter
	ActiveConnections prometheus.Gauge
	ConnectionState   prometheus.Gauge
	PacketReceived    prometheus.Counter
	ByteReceived      prometheus.Counter
	PacketSent        prometheus.Counter
	ByteSent          prometheus.Counter
	ReconnectAttempts prometheus.Counter
	InFlightGauge     prometheus.Gauge

	registry *prometheus.Registry
	stop     chan struct{}
}

func newStat(clientID string) *Stat {
	label := prometheus.Labels{"client_id": clientID}
	return &Stat{
		Uptime: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mqtt_client_uptime_seconds",
			Help:        "Seconds spent connected, counted from each successful Connect until the next disconnect and summed over the client's lifetime.",
			ConstLabels: label,
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mqtt_client_connected",
			Help:        "1 if the client currently holds an open connection, 0 otherwise.",
			ConstLabels: label,
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mqtt_client_connection_state",
			Help:        "Session state: 0=DISCONNECTED 1=CONNECTING 2=CONNECTED 3=DISCONNECTING 4=CLOSED.",
			ConstLabels: label,
		}),
		PacketReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mqtt_client_received_packets",
			Help:        "Total number of control packets received from the broker.",
			ConstLabels: label,
		}),
		ByteReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mqtt_client_received_bytes",
			Help:        "Total number of bytes received from the broker.",
			ConstLabels: label,
		}),
		PacketSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mqtt_client_sent_packets",
			Help:        "Total number of control packets sent to the broker.",
			ConstLabels: label,
		}),
		ByteSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mqtt_client_sent_bytes",
			Help:        "Total number of bytes sent to the broker.",
			ConstLabels: label,
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mqtt_client_reconnect_attempts",
			Help:        "Total number of reconnect attempts made by the reconnect controller.",
			ConstLabels: label,
		}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mqtt_client_inflight",
			Help:        "Current number of outbound QoS>=1 messages occupying the in-flight window.",
			ConstLabels: label,
		}),
	}
}

// Register adds every metric to reg. Callers that don't want Prometheus
// exposition can simply never call it; the counters still work as plain
// in-process values either way.
func (s *Stat) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		s.Uptime, s.ActiveConnections, s.ConnectionState, s.PacketReceived, s.ByteReceived,
		s.PacketSent, s.ByteSent, s.ReconnectAttempts, s.InFlightGauge,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Registry lazily builds and returns a private registry carrying this
// Stat's collectors, for a host application that wants to serve them
// itself instead of calling Serve.
func (s *Stat) Registry() *prometheus.Registry {
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		_ = s.Register(s.registry)
	}
	return s.registry
}

// Handler returns an http.Handler exposing this Stat's registry in the
// Prometheus exposition format.
func (s *Stat) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry(), promhttp.HandlerOpts{})
}

// Serve starts an HTTP listener at addr exposing /metrics, mirroring the
// teacher's Httpd(). It blocks until the listener stops.
func (s *Stat) Serve(addr string) error {
	mux := requests.NewServeMux(requests.URL(addr))
	mux.Route("/metrics", s.Handler())
	srv := requests.NewServer(context.Background(), mux, requests.OnStart(func(hs *http.Server) {
		log.Printf("mqtt stat: http serve %s", hs.Addr)
	}))
	return srv.ListenAndServe()
}

// refreshUptime increments Uptime once a second until stopUptime is
// called. It is started when the session reaches CONNECTED and stopped
// on disconnect, so the counter reflects connected time, not process time.
func (s *Stat) refreshUptime() {
	s.stop = make(chan struct{})
	stop := s.stop
	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				s.Uptime.Inc()
			case <-stop:
				return
			}
		}
	}()
}

func (s *Stat) stopUptime() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
