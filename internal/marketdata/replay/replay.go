// Package replay reads stored ticks and emits them at a configurable speed
// for backtests and for re-feeding the live pipeline.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"signal-systemv1/internal/model"
)

// MaxGap caps the wait between two consecutive ticks.
const MaxGap = 5 * time.Second

// Source is the part of model.TickReader the replayer needs.
type Source interface {
	ReadAllTicks(after time.Time) ([]model.Tick, error)
}

// Options filters and paces a replay.
type Options struct {
	From  time.Time       // only ticks strictly after From; zero means all
	Until time.Time       // only ticks at or before Until; zero means no bound
	Pairs map[string]bool // nil means every pair

	// Speed is the playback rate: 1 is real time, 10 is ten times faster,
	// 0 or less emits as fast as possible.
	Speed float64
}

// Replayer emits stored ticks in timestamp order.
type Replayer struct {
	src   Source
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by src.
func New(src Source) *Replayer {
	return &Replayer{src: src, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Load returns the ticks selected by opts, oldest first.
func (r *Replayer) Load(opts Options) ([]model.Tick, error) {
	all, err := r.src.ReadAllTicks(opts.From)
	if err != nil {
		return nil, err
	}
	ticks := all[:0]
	for _, t := range all {
		if opts.Pairs != nil && !opts.Pairs[t.Pair] {
			continue
		}
		if !opts.Until.IsZero() && t.TS.After(opts.Until) {
			continue
		}
		ticks = append(ticks, t)
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].TS.Before(ticks[j].TS) })
	return ticks, nil
}

// Run sends the selected ticks to out and returns how many were sent.
// It does not close out.
func (r *Replayer) Run(ctx context.Context, opts Options, out chan<- model.Tick) (int, error) {
	ticks, err := r.Load(opts)
	if err != nil {
		return 0, err
	}
	if len(ticks) == 0 {
		log.Println("[replay] no ticks found")
		return 0, nil
	}
	log.Printf("[replay] loaded %d ticks, speed=%.1fx", len(ticks), opts.Speed)

	var prev time.Time
	emitted := 0
	for _, t := range ticks {
		if opts.Speed > 0 && !prev.IsZero() {
			if gap := Scale(t.TS.Sub(prev), opts.Speed); gap > 0 {
				if err := r.sleep(ctx, gap); err != nil {
					log.Printf("[replay] cancelled after %d ticks", emitted)
					return emitted, err
				}
			}
		}
		prev = t.TS

		select {
		case out <- t:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d ticks", emitted)
			return emitted, ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d ticks replayed", emitted)
	return emitted, nil
}

// Scale divides a market-time gap by speed and caps it at MaxGap.
func Scale(gap time.Duration, speed float64) time.Duration {
	if gap <= 0 || speed <= 0 {
		return 0
	}
	d := time.Duration(float64(gap) / speed)
	if d > MaxGap {
		d = MaxGap
	}
	return d
}
