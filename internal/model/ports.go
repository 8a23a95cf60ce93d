package model

import (
	"context"
	"time"
)

// ── Storage and transport ports ──
// These interfaces decouple the signal engine from Redis and SQLite.

// TickConsumer consumes ticks from per-pair streams via consumer groups.
type TickConsumer interface {
	// EnsureConsumerGroup creates the consumer group on each stream.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// RecoverPending re-delivers messages left unacknowledged by a previous run.
	RecoverPending(ctx context.Context, streams []string, out chan<- Tick) error

	// ConsumeTicks blocks until ctx is cancelled.
	ConsumeTicks(ctx context.Context, streams []string, out chan<- Tick) error

	// StartPELReclaimer periodically claims messages idle longer than minIdle.
	StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration,
		out chan<- Tick, onReclaim func(count int))

	Close() error
}

// TickWriter persists ticks for warm-up and backtests.
type TickWriter interface {
	// Run reads ticks from tickCh and writes them until ctx is cancelled or tickCh closes.
	Run(ctx context.Context, tickCh <-chan Tick)
	Close() error
}

// TickReader reads stored ticks in timestamp order.
type TickReader interface {
	ReadTicks(pair string, after time.Time, limit int) ([]Tick, error)

	// ReadRecentTicks returns the newest n ticks of pair, oldest first.
	ReadRecentTicks(pair string, n int) ([]Tick, error)

	ReadAllTicks(after time.Time) ([]Tick, error)
	Close() error
}

// SignalSink receives emitted signals.
type SignalSink interface {
	PublishSignal(ctx context.Context, ev SignalEvent) error
}

// IndicatorWriter publishes per-tick indicator values.
type IndicatorWriter interface {
	WriteIndicatorBatch(ctx context.Context, results []IndicatorResult)
}

// SnapshotStore reads and writes engine snapshots as raw JSON.
// Using []byte keeps model free of strategy imports.
type SnapshotStore interface {
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON returns nil, nil when no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}
