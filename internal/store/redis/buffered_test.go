package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	got  []string
}

func (f *fakePublisher) PublishSignal(_ context.Context, ev model.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.got = append(f.got, ev.ID)
	return nil
}

func (f *fakePublisher) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakePublisher) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestBufferedPublisher_QueuesWhileOpenAndFlushesOnClose(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	pub := &fakePublisher{fail: true}
	bp := NewBufferedPublisher(context.Background(), pub, cb, 10)

	var flushed int
	var mu sync.Mutex
	bp.OnFlush = func(n int) { mu.Lock(); flushed = n; mu.Unlock() }

	ctx := context.Background()
	// The first failure trips the breaker, so the signal is kept.
	require.NoError(t, bp.PublishSignal(ctx, model.SignalEvent{ID: "a"}))
	require.Equal(t, StateOpen, cb.CurrentState())
	require.NoError(t, bp.PublishSignal(ctx, model.SignalEvent{ID: "b"}))
	assert.Equal(t, 2, bp.PendingCount())

	pub.setFail(false)
	clk.advance(2 * time.Second)
	require.NoError(t, bp.PublishSignal(ctx, model.SignalEvent{ID: "c"}))

	require.Eventually(t, func() bool { return bp.PendingCount() == 0 && len(pub.ids()) == 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"c", "a", "b"}, pub.ids())
	mu.Lock()
	assert.Equal(t, 2, flushed)
	mu.Unlock()
}

func TestBufferedPublisher_ErrorBelowThresholdIsReturned(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	pub := &fakePublisher{fail: true}
	bp := NewBufferedPublisher(context.Background(), pub, cb, 10)

	err := bp.PublishSignal(context.Background(), model.SignalEvent{ID: "a"})
	assert.Error(t, err)
	assert.Equal(t, 0, bp.PendingCount())
}

func TestBufferedPublisher_DropsOldestWhenFull(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	pub := &fakePublisher{fail: true}
	bp := NewBufferedPublisher(context.Background(), pub, cb, 2)
	drops := 0
	bp.OnDrop = func() { drops++ }

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, bp.PublishSignal(context.Background(), model.SignalEvent{ID: id}))
	}
	assert.Equal(t, 2, bp.PendingCount())
	assert.Equal(t, 1, drops)

	pub.setFail(false)
	bp.Flush()
	assert.Equal(t, []string{"b", "c"}, pub.ids())
}

func TestBufferedPublisher_FailedFlushRequeues(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	pub := &fakePublisher{fail: true}
	bp := NewBufferedPublisher(context.Background(), pub, cb, 10)

	require.NoError(t, bp.PublishSignal(context.Background(), model.SignalEvent{ID: "a"}))
	require.NoError(t, bp.PublishSignal(context.Background(), model.SignalEvent{ID: "b"}))

	bp.Flush()
	assert.Equal(t, 2, bp.PendingCount())
	assert.Empty(t, pub.ids())
}

func TestDecodeTick(t *testing.T) {
	msg := goredis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"pair":"BTC-USDT","price":"42000.5","volume":"1.25","ts":"2024-01-01T00:00:00Z"}`,
	}}
	tick, err := decodeTick(msg)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", tick.Pair)
	assert.Equal(t, "42000.5", tick.Price.String())
	assert.Equal(t, "1.25", tick.Volume.String())
	assert.NoError(t, tick.Validate())

	_, err = decodeTick(goredis.XMessage{ID: "2-0", Values: map[string]interface{}{"other": "x"}})
	assert.ErrorIs(t, err, errNoData)

	_, err = decodeTick(goredis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestTickStreams(t *testing.T) {
	assert.Equal(t, []string{"tick:BTC-USDT", "tick:ETH-USDT"}, TickStreams([]string{"BTC-USDT", "ETH-USDT"}))
}
