package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the server. Each server
// owns its own registry.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time
	stats     func() Stats

	sessions         prometheus.Gauge
	players          prometheus.Gauge
	accounts         prometheus.Gauge
	connectionsTotal prometheus.Counter
	rejectedTotal    *prometheus.CounterVec
	commandsTotal    prometheus.Counter
	zmpCommandsTotal *prometheus.CounterVec
	bytesSentTotal   prometheus.Counter
	bytesRecvTotal   prometheus.Counter
	loginFailures    prometheus.Counter
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// Stats is a snapshot of server state for gauge metrics.
type Stats struct {
	Sessions int
	Players  int
	Accounts int
}

// NewMetrics creates and registers Prometheus metrics. stats is called on
// every scrape.
func NewMetrics(startTime time.Time, stats func() Stats) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: startTime,
		stats:     stats,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemud_sessions",
			Help: "Number of open telnet sessions.",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemud_players_connected",
			Help: "Number of characters in the game.",
		}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemud_accounts_total",
			Help: "Number of stored accounts.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcemud_connections_total",
			Help: "Total connections accepted since server start.",
		}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcemud_connections_rejected_total",
			Help: "Connections refused at accept time by reason.",
		}, []string{"reason"}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcemud_commands_processed_total",
			Help: "Total input lines processed since server start.",
		}),
		zmpCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcemud_zmp_commands_total",
			Help: "ZMP commands dispatched by name.",
		}, []string{"command"}),
		bytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcemud_bytes_sent_total",
			Help: "Total bytes sent to clients.",
		}),
		bytesRecvTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcemud_bytes_received_total",
			Help: "Total bytes received from clients.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcemud_login_failures_total",
			Help: "Failed passphrase checks.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemud_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemud_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemud_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.sessions,
		m.players,
		m.accounts,
		m.connectionsTotal,
		m.rejectedTotal,
		m.commandsTotal,
		m.zmpCommandsTotal,
		m.bytesSentTotal,
		m.bytesRecvTotal,
		m.loginFailures,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// Update refreshes all gauge metrics from current server state.
func (m *Metrics) Update() {
	if m.stats != nil {
		st := m.stats()
		m.sessions.Set(float64(st.Sessions))
		m.players.Set(float64(st.Players))
		m.accounts.Set(float64(st.Accounts))
	}

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Connection counts an accepted connection.
func (m *Metrics) Connection() { m.connectionsTotal.Inc() }

// Rejected counts a refused connection.
func (m *Metrics) Rejected(reason string) { m.rejectedTotal.WithLabelValues(reason).Inc() }

// Command counts one processed input line.
func (m *Metrics) Command() { m.commandsTotal.Inc() }

// ZMP counts one dispatched ZMP command.
func (m *Metrics) ZMP(name string) { m.zmpCommandsTotal.WithLabelValues(name).Inc() }

// Traffic adds a closed connection's byte counts.
func (m *Metrics) Traffic(in, out uint64) {
	m.bytesRecvTotal.Add(float64(in))
	m.bytesSentTotal.Add(float64(out))
}

// LoginFailure counts a failed passphrase check.
func (m *Metrics) LoginFailure() { m.loginFailures.Inc() }

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
