// Package sigengine wires the signal engine service: tick intake from Redis
// streams (and optionally a WebSocket feed), the strategy engine, signal
// fan-out to Redis, SQLite and dashboard clients, periodic checkpoints, and
// the HTTP control surface.
package sigengine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/bus"
	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/marketdata/wsfeed"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/strategy"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	tickBuffer      = 5000
	signalBuffer    = 256
	breakerFailures = 5
	breakerReset    = 10 * time.Second
	livenessEvery   = 10 * time.Second
)

// NamedSink is a signal destination with a metrics label.
type NamedSink struct {
	Name string
	Sink model.SignalSink
}

// NamedSnapshotStore is a checkpoint destination with a metrics label.
type NamedSnapshotStore struct {
	Name  string
	Store model.SnapshotStore
}

// SignalHistory serves GET /signals.
type SignalHistory interface {
	ReadSignals(pair string, limit int) ([]model.SignalEvent, error)
}

// Deps are the service's external collaborators. Every field is optional;
// a nil field disables the matching feature.
type Deps struct {
	Consumer   model.TickConsumer
	Feed       *wsfeed.Ingest
	History    model.TickReader
	Recorder   model.TickWriter
	Indicators model.IndicatorWriter
	Signals    SignalHistory

	// Snapshots are read in order on restore; the first usable one wins.
	// Every store receives each checkpoint.
	Snapshots []NamedSnapshotStore
	Sinks     []NamedSink

	// Health probes.
	Redis *goredis.Client
	SQL   *sql.DB

	closers []io.Closer
}

// Close releases every connection opened by Connect.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i].Close()
	}
	d.closers = nil
}

// Connect opens Redis and SQLite for cfg. Redis is required; SQLite
// failures are logged and the service runs without history.
func Connect(cfg *config.Config, m *metrics.Metrics) (*Deps, error) {
	d := &Deps{}

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, reader)
	d.Consumer = reader

	writer, err := redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, writer)
	d.Redis = writer.Client()
	writer.OnWrite = func(dur time.Duration, _ error) { m.RedisWriteDur.Observe(dur.Seconds()) }
	d.Indicators = writer

	alerts := notifiers(cfg)
	for _, n := range alerts {
		d.Sinks = append(d.Sinks, NamedSink{Name: n.name, Sink: notification.NewSink(n.Notifier)})
	}

	cb := redisstore.NewCircuitBreaker(breakerFailures, breakerReset)
	cb.OnStateChange = func(from, to redisstore.State) {
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
			go incident(alerts, "Redis circuit breaker open", "signal publishes are buffered locally until Redis recovers")
		}
		slog.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}
	// Flush runs detached from the service context so a late close still drains.
	pub := redisstore.NewBufferedPublisher(context.Background(), writer, cb, 0)
	pub.OnBuffer = m.RedisBufferedWrites.Inc
	pub.OnDrop = func() { m.FanoutDropsTotal.WithLabelValues("redis-buffer").Inc() }
	pub.OnFlush = func(n int) { slog.Info("redis buffer flushed", "signals", n) }
	d.Sinks = append(d.Sinks, NamedSink{Name: "redis", Sink: pub})
	d.Snapshots = append(d.Snapshots, NamedSnapshotStore{Name: "redis", Store: writer.Snapshots(cfg.SnapshotKey)})

	if cfg.TickWSURL != "" {
		feed, err := wsfeed.New(wsfeed.Config{URL: cfg.TickWSURL})
		if err != nil {
			d.Close()
			return nil, err
		}
		feed.OnInvalid = func(error) { m.InvalidTicks.Inc() }
		d.Feed = feed
	}

	d.openSQLite(cfg, m)
	return d, nil
}

func (d *Deps) openSQLite(cfg *config.Config, m *metrics.Metrics) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Warn("sqlite directory unavailable", "dir", dir, "err", err)
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		slog.Warn("sqlite writer unavailable, continuing without history", "err", err)
		return
	}
	d.closers = append(d.closers, w)
	d.SQL = w.DB()
	w.OnCommit = func(dur time.Duration, _ int, _ error) { m.SQLiteCommitDur.Observe(dur.Seconds()) }
	d.Sinks = append(d.Sinks, NamedSink{Name: "sqlite", Sink: w})
	d.Snapshots = append(d.Snapshots, NamedSnapshotStore{Name: "sqlite", Store: w})
	if cfg.RecordTicks {
		d.Recorder = w
	}

	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		slog.Warn("sqlite reader unavailable, warm-up disabled", "err", err)
		return
	}
	d.closers = append(d.closers, r)
	d.History = r
	d.Signals = r
}

type namedNotifier struct {
	name string
	notification.Notifier
}

func notifiers(cfg *config.Config) []namedNotifier {
	var out []namedNotifier
	if cfg.WebhookURL != "" {
		out = append(out, namedNotifier{"webhook", notification.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret)})
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		out = append(out, namedNotifier{"telegram", notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)})
	}
	return out
}

// incident raises a critical alert on every channel, or logs it when no
// channel is configured.
func incident(alerts []namedNotifier, title, msg string) {
	var all notification.Multi
	for _, n := range alerts {
		all = append(all, n.Notifier)
	}
	if len(all) == 0 {
		all = append(all, notification.NewLogNotifier())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a := notification.Alert{Level: notification.AlertCritical, Title: title, Message: msg}
	if err := all.Send(ctx, a); err != nil {
		slog.Warn("incident alert failed", "title", title, "err", err)
	}
}

// Service runs the signal engine.
type Service struct {
	cfg      *config.Config
	pairs    []config.PairConfig
	deps     *Deps
	engine   *strategy.Engine
	prom     *metrics.Metrics
	gatherer prometheus.Gatherer
	health   *metrics.HealthStatus
	hub      *gateway.Hub
	fan      *bus.FanOut
	log      *slog.Logger

	tickCh   chan model.Tick
	sigCh    chan model.SignalEvent
	recordCh chan model.Tick

	streamMu sync.Mutex
	runCtx   context.Context
	streams  map[string]bool

	wg sync.WaitGroup
}

// Open connects the real backends and builds a Service registered on the
// default Prometheus registry.
func Open(cfg *config.Config, pairs []config.PairConfig) (*Service, error) {
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	deps, err := Connect(cfg, m)
	if err != nil {
		return nil, err
	}
	svc, err := New(cfg, pairs, deps, m, prometheus.DefaultGatherer)
	if err != nil {
		deps.Close()
		return nil, err
	}
	return svc, nil
}

// New builds a Service over deps and restores the strategy engine from the
// first usable snapshot.
func New(cfg *config.Config, pairs []config.PairConfig, deps *Deps, m *metrics.Metrics, g prometheus.Gatherer) (*Service, error) {
	if deps == nil {
		deps = &Deps{}
	}
	svc := &Service{
		cfg:      cfg,
		pairs:    pairs,
		deps:     deps,
		prom:     m,
		gatherer: g,
		health:   metrics.NewHealthStatus(),
		fan:      bus.New(signalBuffer),
		log:      slog.Default().With("component", "sigengine"),
		tickCh:   make(chan model.Tick, tickBuffer),
		sigCh:    make(chan model.SignalEvent, signalBuffer),
		streams:  make(map[string]bool),
	}
	svc.hub = gateway.NewHub(svc.log)
	svc.hub.OnClients = func(n int) { m.WSClients.Set(float64(n)) }
	svc.fan.OnDrop = func(name string) { m.FanoutDropsTotal.WithLabelValues(name).Inc() }

	engine, err := svc.restoreEngine()
	if err != nil {
		return nil, err
	}
	svc.engine = engine
	svc.syncPairGauges()
	return svc, nil
}

// Engine exposes the strategy engine, mainly for tests.
func (svc *Service) Engine() *strategy.Engine { return svc.engine }

// Run starts every loop and blocks until ctx is cancelled, then saves a
// final checkpoint and releases the backends.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting signal engine", "pairs", svc.engine.Pairs())

	svc.warmup(false)

	svc.startFanout(ctx)
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.processLoop(ctx)
	}()
	svc.startRecorder(ctx)
	svc.startIntake(ctx)

	svc.subscribeConfig(ctx)
	go svc.snapshotLoop(ctx)
	if svc.deps.Redis != nil {
		svc.health.CheckRedis(ctx, svc.deps.Redis)
	}
	if svc.deps.SQL != nil {
		svc.health.CheckSQLite(ctx, svc.deps.SQL)
	}
	svc.health.StartLivenessChecker(ctx, svc.deps.Redis, svc.deps.SQL, livenessEvery)

	var metricsSrv *metrics.Server
	if svc.cfg.MetricsAddr != "" && svc.gatherer != nil {
		metricsSrv = metrics.NewServer(svc.cfg.MetricsAddr, svc.gatherer, svc.health)
		metricsSrv.Start()
	}
	var api *http.Server
	if svc.cfg.HTTPAddr != "" {
		api = &http.Server{Addr: svc.cfg.HTTPAddr, Handler: svc.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			svc.log.Info("control API listening", "addr", svc.cfg.HTTPAddr)
			if err := api.ListenAndServe(); err != http.ErrServerClosed {
				svc.log.Error("control API error", "err", err)
			}
		}()
	}

	svc.log.Info("all systems running",
		"snapshot_interval", svc.cfg.SnapshotInterval.String(),
		"record_ticks", svc.deps.Recorder != nil,
		"ws_feed", svc.deps.Feed != nil)

	<-ctx.Done()

	svc.log.Info("shutdown signal received")
	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if api != nil {
		api.Shutdown(shutCtx)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutCtx)
	}
	svc.wg.Wait()
	svc.hub.Close()
	svc.saveSnapshot("shutdown")
	svc.deps.Close()
	svc.log.Info("shutdown complete")
	return nil
}

func (svc *Service) syncPairGauges() {
	names := svc.engine.Pairs()
	svc.health.SetPairs(names)
	for _, st := range svc.engine.Statuses() {
		svc.prom.SetEnabled(st.Name, st.Enabled)
	}
}
