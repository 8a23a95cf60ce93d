package sigengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"signal-systemv1/config"
	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/strategy"
)

// ConfigChannel carries pairs documents for live reload over Redis pub/sub.
const ConfigChannel = "config:pairs"

const maxReloadBody = 1 << 20

// Handler returns the control API:
//
//	GET  /pairs                     status of every pair
//	GET  /pairs/{name}              status of one pair
//	GET  /pairs/{name}/indicators   current indicator values
//	POST /pairs/{name}/enable       resume signal emission
//	POST /pairs/{name}/disable      pause signal emission, state keeps updating
//	POST /reload                    body is a pairs document (YAML or JSON)
//	GET  /signals?pair=&limit=      stored signal history, newest first
//	POST /snapshot                  checkpoint now
//	GET  /stats                     queue depths and client counts
//	GET  /healthz
//
// plus the dashboard routes of the gateway hub.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pairs", func(w http.ResponseWriter, r *http.Request) {
		gateway.WriteJSON(w, http.StatusOK, svc.engine.Statuses())
	})
	mux.HandleFunc("GET /pairs/{name}", svc.handlePair)
	mux.HandleFunc("GET /pairs/{name}/indicators", svc.handleIndicators)
	mux.HandleFunc("POST /pairs/{name}/enable", svc.handleToggle(true))
	mux.HandleFunc("POST /pairs/{name}/disable", svc.handleToggle(false))
	mux.HandleFunc("POST /reload", svc.handleReload)
	mux.HandleFunc("GET /signals", svc.handleSignals)
	mux.HandleFunc("POST /snapshot", svc.handleSnapshot)
	mux.HandleFunc("GET /stats", svc.handleStats)
	mux.Handle("GET /healthz", svc.health)
	svc.hub.RegisterRoutes(mux)
	return mux
}

func (svc *Service) handlePair(w http.ResponseWriter, r *http.Request) {
	st, err := svc.engine.Status(r.PathValue("name"))
	if err != nil {
		gateway.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	gateway.WriteJSON(w, http.StatusOK, st)
}

func (svc *Service) handleIndicators(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := svc.engine.Status(name); err != nil {
		gateway.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	gateway.WriteJSON(w, http.StatusOK, svc.engine.Indicators(name))
}

func (svc *Service) handleToggle(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := svc.engine.SetEnabled(name, on); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, strategy.ErrUnknownPair) {
				code = http.StatusNotFound
			}
			gateway.WriteError(w, code, err.Error())
			return
		}
		svc.prom.SetEnabled(name, on)
		st, _ := svc.engine.Status(name)
		gateway.WriteJSON(w, http.StatusOK, st)
	}
}

func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReloadBody))
	if err != nil {
		gateway.WriteError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	added, err := svc.reloadPairs(body)
	if err != nil {
		gateway.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"pairs":       svc.engine.Pairs(),
		"new_streams": added,
	})
}

// reloadPairs applies a pairs document: the engine keeps unchanged pairs
// warm, cold pairs are warmed from history and new pairs start consuming.
func (svc *Service) reloadPairs(doc []byte) ([]string, error) {
	pairs, err := config.ParsePairs(doc)
	if err != nil {
		return nil, err
	}
	if err := svc.engine.Reload(pairs); err != nil {
		return nil, err
	}
	svc.warmup(true)
	svc.syncPairGauges()
	return svc.addStreams(svc.engine.Pairs()), nil
}

func (svc *Service) handleSignals(w http.ResponseWriter, r *http.Request) {
	if svc.deps.Signals == nil {
		gateway.WriteError(w, http.StatusServiceUnavailable, "signal history unavailable")
		return
	}
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			gateway.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", s))
			return
		}
		limit = n
	}
	sigs, err := svc.deps.Signals.ReadSignals(q.Get("pair"), limit)
	if err != nil {
		gateway.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	gateway.WriteJSON(w, http.StatusOK, sigs)
}

func (svc *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if len(svc.deps.Snapshots) == 0 {
		gateway.WriteError(w, http.StatusServiceUnavailable, "no snapshot store configured")
		return
	}
	saved := svc.saveSnapshot("api")
	code := http.StatusOK
	if saved == 0 {
		code = http.StatusInternalServerError
	}
	gateway.WriteJSON(w, code, map[string]int{"stores": saved})
}

type pendingCounter interface {
	PendingCount() int
}

func (svc *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	pending := make(map[string]int)
	for _, s := range svc.deps.Sinks {
		if p, ok := s.Sink.(pendingCounter); ok {
			pending[s.Name] = p.PendingCount()
		}
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tick_queue":    len(svc.tickCh),
		"signal_queue":  len(svc.sigCh),
		"fanout":        svc.fan.ChannelStats(),
		"sink_pending":  pending,
		"ws_clients":    svc.hub.ClientCount(),
		"signals_total": svc.signalCount(),
	})
}

func (svc *Service) signalCount() uint64 {
	var n uint64
	for _, st := range svc.engine.Statuses() {
		n += st.Signals
	}
	return n
}

// subscribeConfig applies pairs documents published on ConfigChannel.
func (svc *Service) subscribeConfig(ctx context.Context) {
	if svc.deps.Redis == nil {
		return
	}
	go func() {
		ps := svc.deps.Redis.Subscribe(ctx, ConfigChannel)
		defer ps.Close()
		svc.log.Info("subscribed for live reload", "channel", ConfigChannel)

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if _, err := svc.reloadPairs([]byte(msg.Payload)); err != nil {
					svc.log.Warn("config update rejected", "err", err)
				}
			}
		}
	}()
}
