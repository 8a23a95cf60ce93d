package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: signals are rare, ticks and indicators are not.
	signalMaxLen     = 5000
	indicatorMaxLen  = 10000
	tickMaxLen       = 50000
	defaultLatestTTL = 30 * time.Minute
	snapshotTTL      = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes signals, indicator values and ticks to Redis, and
// stores engine snapshots.
type Writer struct {
	client *goredis.Client

	// OnWrite, when set, observes every pipeline round trip.
	OnWrite func(d time.Duration, err error)
}

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client) *Writer {
	return &Writer{client: client}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// signalLatestKey holds the last signal per pair.
func signalLatestKey(pair string) string { return "signal:latest:" + pair }

func indicatorLatestKey(r *model.IndicatorResult) string {
	return "ind:" + r.Name + ":latest:" + r.Pair
}

// pubChannel maps a stream key to its Pub/Sub channel.
func pubChannel(streamKey string) string { return "pub:" + streamKey }

// PublishSignal writes ev with XADD + SET latest + PUBLISH in one pipeline.
func (w *Writer) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	payload := string(data)
	stream := ev.StreamKey()

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: signalMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	})
	pipe.Set(ctx, signalLatestKey(ev.Pair), payload, defaultLatestTTL)
	pipe.Publish(ctx, pubChannel(stream), payload)

	if err := w.exec(ctx, pipe); err != nil {
		return fmt.Errorf("publish signal %s: %w", ev.ID, err)
	}
	return nil
}

// WriteIndicatorBatch writes every ready result in a single pipeline.
// Errors are logged; indicator values are best effort.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	queued := 0
	for i := range results {
		r := &results[i]
		if !r.Ready {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		payload := string(data)
		stream := r.StreamKey()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: indicatorMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Set(ctx, indicatorLatestKey(r), payload, defaultLatestTTL)
		pipe.Publish(ctx, pubChannel(stream), payload)
		queued++
	}
	if queued == 0 {
		return
	}

	if err := w.exec(ctx, pipe); err != nil {
		log.Printf("[redis] indicator batch pipeline error (%d results): %v", queued, err)
	}
}

// PublishTick appends t to its pair's tick stream. Used by the replay feeder.
func (w *Writer) PublishTick(ctx context.Context, t model.Tick) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	return w.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: t.StreamKey(),
		MaxLen: tickMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
}

func (w *Writer) exec(ctx context.Context, pipe goredis.Pipeliner) error {
	start := time.Now()
	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start), err)
	}
	return err
}

// Snapshots returns a model.SnapshotStore backed by a single key.
func (w *Writer) Snapshots(key string) *SnapshotStore {
	return &SnapshotStore{client: w.client, key: key, ttl: snapshotTTL}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

// SnapshotStore keeps the latest engine snapshot under one key. SQLite holds
// the durable history; this copy only speeds up restarts.
type SnapshotStore struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

// SaveSnapshotJSON overwrites the snapshot.
func (s *SnapshotStore) SaveSnapshotJSON(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", s.key, err)
	}
	return nil
}

// ReadLatestSnapshotJSON returns nil, nil when no snapshot is stored.
func (s *SnapshotStore) ReadLatestSnapshotJSON() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", s.key, err)
	}
	return data, nil
}
