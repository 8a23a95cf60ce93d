package sigengine

import (
	"context"
	"errors"
	"time"

	"signal-systemv1/internal/bus"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
	redisstore "signal-systemv1/internal/store/redis"
)

const recordBuffer = 5000

// restoreEngine loads the first usable snapshot. A corrupt or missing
// snapshot in one store falls through to the next; with none the engine
// starts cold.
func (svc *Service) restoreEngine() (*strategy.Engine, error) {
	opts := strategy.Options{
		Logger: svc.log,
		OnSuppressed: func(pair, action, _ string) {
			svc.prom.SuppressedSignals.WithLabelValues(pair, action).Inc()
		},
	}
	for _, s := range svc.deps.Snapshots {
		data, err := s.Store.ReadLatestSnapshotJSON()
		if err != nil {
			svc.log.Warn("snapshot read failed", "store", s.Name, "err", err)
			continue
		}
		if data == nil {
			continue
		}
		snap, err := strategy.UnmarshalSnapshot(data)
		if err != nil {
			svc.log.Warn("snapshot unusable", "store", s.Name, "err", err)
			continue
		}
		svc.log.Info("restoring from snapshot", "store", s.Name, "taken_at", snap.TakenAt, "pairs", len(snap.Pairs))
		return strategy.RestoreEngine(svc.pairs, snap, opts)
	}
	svc.log.Info("no snapshot found, cold start")
	return strategy.NewEngine(svc.pairs, opts)
}

// warmup replays stored ticks: for cold pairs the newest WarmupTicks, or
// the pair's own warm-up length when that is larger, and everything after the checkpoint for restored ones unless coldOnly is set.
func (svc *Service) warmup(coldOnly bool) {
	if svc.deps.History == nil {
		return
	}
	start := time.Now()
	total := 0
	for _, st := range svc.engine.Statuses() {
		var (
			ticks []model.Tick
			err   error
		)
		switch {
		case st.LastTS.IsZero():
			ticks, err = svc.deps.History.ReadRecentTicks(st.Name, max(svc.cfg.WarmupTicks, st.Warmup))
		case coldOnly:
			continue
		default:
			ticks, err = svc.deps.History.ReadTicks(st.Name, st.LastTS, 0)
		}
		if err != nil {
			svc.log.Warn("warm-up read failed", "pair", st.Name, "err", err)
			continue
		}
		total += svc.engine.Warmup(ticks)
	}
	svc.log.Info("warm-up complete", "ticks", total, "took", time.Since(start).String())
}

// startFanout copies signals to every sink and the dashboard hub. The bus
// and drains outlive ctx so queued signals still reach their sinks; they
// stop once processLoop closes sigCh.
func (svc *Service) startFanout(ctx context.Context) {
	drainCtx := context.WithoutCancel(ctx)
	sinks := append([]NamedSink(nil), svc.deps.Sinks...)
	sinks = append(sinks, NamedSink{Name: "ws", Sink: svc.hub})
	for _, s := range sinks {
		ch := svc.fan.Subscribe(s.Name)
		svc.wg.Add(1)
		go func(s NamedSink) {
			defer svc.wg.Done()
			bus.Drain(drainCtx, s.Name, ch, s.Sink)
		}(s)
	}
	go svc.fan.Run(drainCtx, svc.sigCh)
}

func (svc *Service) startRecorder(ctx context.Context) {
	if svc.deps.Recorder == nil {
		return
	}
	svc.recordCh = make(chan model.Tick, recordBuffer)
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.deps.Recorder.Run(context.WithoutCancel(ctx), svc.recordCh)
	}()
}

// startIntake connects the tick sources to tickCh.
func (svc *Service) startIntake(ctx context.Context) {
	svc.streamMu.Lock()
	svc.runCtx = ctx
	svc.streamMu.Unlock()
	svc.addStreams(svc.engine.Pairs())

	if f := svc.deps.Feed; f != nil {
		go func() {
			if err := f.Start(ctx, svc.tickCh); err != nil && ctx.Err() == nil {
				svc.log.Error("tick feed stopped", "err", err)
			}
		}()
	}
}

// addStreams starts consuming the tick streams of pairs that are not consumed
// yet and returns those streams. It does nothing before Run.
func (svc *Service) addStreams(pairs []string) []string {
	svc.streamMu.Lock()
	ctx := svc.runCtx
	if ctx == nil {
		svc.streamMu.Unlock()
		return nil
	}
	var fresh []string
	for _, s := range redisstore.TickStreams(pairs) {
		if !svc.streams[s] {
			svc.streams[s] = true
			fresh = append(fresh, s)
		}
	}
	svc.streamMu.Unlock()

	c := svc.deps.Consumer
	if c == nil || len(fresh) == 0 {
		return fresh
	}
	if err := c.EnsureConsumerGroup(ctx, fresh); err != nil {
		svc.health.SetConsumerOK(false)
		svc.log.Error("consumer group setup failed", "streams", fresh, "err", err)
		return fresh
	}
	svc.health.SetConsumerOK(true)
	if err := c.RecoverPending(ctx, fresh, svc.tickCh); err != nil {
		svc.log.Warn("pending recovery failed", "err", err)
	}
	go func() {
		if err := c.ConsumeTicks(ctx, fresh, svc.tickCh); err != nil && ctx.Err() == nil {
			svc.health.SetConsumerOK(false)
			svc.log.Error("tick consumer stopped", "err", err)
		}
	}()
	c.StartPELReclaimer(ctx, fresh, svc.cfg.PELInterval, svc.cfg.PELMinIdle, svc.tickCh,
		func(n int) { svc.prom.PELMessagesReclaimed.Add(float64(n)) })
	svc.log.Info("consuming tick streams", "streams", fresh)
	return fresh
}

// processLoop is the single writer to the strategy engine's tick path.
// On exit it closes the downstream channels.
func (svc *Service) processLoop(ctx context.Context) {
	defer func() {
		close(svc.sigCh)
		if svc.recordCh != nil {
			close(svc.recordCh)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-svc.tickCh:
			svc.processTick(ctx, t)
		}
	}
}

func (svc *Service) processTick(ctx context.Context, t model.Tick) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(t.Pair, t.TS))
	log := logger.FromContext(ctx, svc.log)

	start := time.Now()
	out, err := svc.engine.Evaluate(t)
	if err != nil {
		svc.prom.InvalidTicks.Inc()
		if errors.Is(err, strategy.ErrStaleTick) {
			log.Debug("tick skipped", "err", err)
		} else {
			log.Warn("tick rejected", "err", err)
		}
		return
	}
	svc.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	svc.prom.TicksTotal.WithLabelValues(t.Pair).Inc()
	svc.prom.TickLag.Set(time.Since(t.TS).Seconds())
	svc.health.SetLastTickTime(time.Now())

	if svc.recordCh != nil {
		select {
		case svc.recordCh <- t:
		default:
			log.Warn("tick recorder full, dropping tick")
		}
	}

	if inds := svc.engine.Indicators(t.Pair); len(inds) > 0 {
		if svc.deps.Indicators != nil {
			svc.deps.Indicators.WriteIndicatorBatch(ctx, inds)
		}
		svc.hub.PublishIndicators(inds)
		for _, r := range inds {
			if r.Ready {
				svc.prom.IndicatorsPublished.Inc()
			}
		}
	}

	if !out.Emitted {
		return
	}
	svc.prom.SignalsTotal.WithLabelValues(out.Signal.Pair, out.Signal.Action).Inc()
	select {
	case svc.sigCh <- out.Signal:
	case <-ctx.Done():
	}
}
