package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the tick consumer.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // e.g. "sigengine"
	ConsumerName  string // unique per process, e.g. hostname
}

// Reader consumes per-pair tick streams through a consumer group.
// It implements model.TickConsumer.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

var errNoData = errors.New("message has no data field")

// NewReader creates a Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	r := NewReaderWithClient(client, cfg.ConsumerGroup, cfg.ConsumerName)
	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, r.consumerGroup, r.consumerName)
	return r, nil
}

// NewReaderWithClient wraps an existing client.
func NewReaderWithClient(client *goredis.Client, group, consumer string) *Reader {
	if group == "" {
		group = "sigengine"
	}
	if consumer == "" {
		consumer = "worker-1"
	}
	return &Reader{client: client, consumerGroup: group, consumerName: consumer}
}

// TickStreams returns the stream key for each pair.
func TickStreams(pairs []string) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = model.TickStreamPrefix + p
	}
	return out
}

// EnsureConsumerGroup creates the group on every stream, starting at "$"
// so a fresh group sees only new ticks.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// decodeTick extracts the JSON tick stored under "data".
func decodeTick(msg goredis.XMessage) (model.Tick, error) {
	var t model.Tick
	data, ok := msg.Values["data"].(string)
	if !ok {
		return t, errNoData
	}
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return t, fmt.Errorf("unmarshal tick %s: %w", msg.ID, err)
	}
	return t, nil
}

// deliver sends each decodable message to out and acks it. Undecodable
// messages are acked and skipped so they cannot block the group.
func (r *Reader) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.Tick) (int, error) {
	n := 0
	for _, msg := range msgs {
		t, err := decodeTick(msg)
		if err != nil {
			log.Printf("[redis-reader] %s: dropping %s: %v", stream, msg.ID, err)
			r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
			continue
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return n, ctx.Err()
		}
		r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
		n++
	}
	return n, nil
}

// ConsumeTicks blocks on XREADGROUP and forwards ticks to out until ctx
// is cancelled. Messages are acked after hand-off.
func (r *Reader) ConsumeTicks(ctx context.Context, streams []string, out chan<- model.Tick) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}

		for _, stream := range results {
			if _, err := r.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// RecoverPending re-delivers this group's unacknowledged messages, e.g.
// after a crash between hand-off and ack.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Tick) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}
			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}
			if _, err := r.deliver(ctx, stream, claimed, out); err != nil {
				return err
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// reclaimStale claims entries idle longer than minIdle that belong to
// other consumers of the group.
func (r *Reader) reclaimStale(ctx context.Context, stream string, minIdle time.Duration, batch int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  batch,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var stale []string
	for _, p := range pending {
		if p.Consumer != r.consumerName {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		MinIdle:  minIdle,
		Messages: stale,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}
	return claimed, nil
}

// StartPELReclaimer periodically steals stale entries from dead consumers
// and forwards them to out. It returns when ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration,
	out chan<- model.Tick, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := r.reclaimStale(ctx, stream, minIdle, 50)
				if err != nil {
					log.Printf("[redis-reader] PEL reclaim error on %s: %v", stream, err)
					continue
				}
				n, err := r.deliver(ctx, stream, claimed, out)
				total += n
				if err != nil {
					return
				}
			}
			if total > 0 {
				log.Printf("[redis-reader] reclaimed %d stale ticks", total)
				if onReclaim != nil {
					onReclaim(total)
				}
			}
		}
	}
}

// Client returns the underlying Redis client.
func (r *Reader) Client() *goredis.Client { return r.client }

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
